// Package device manages the IoT wearable registry: registration with a
// per-device API key, authentication of inbound readings, heartbeats,
// and ingestion into the vitals pipeline.
package device

import "time"

// MaxDevicesPerPatient limits how many active devices one patient may
// have registered at a time.
const MaxDevicesPerPatient = 3

// APIKeyPrefix marks issued device keys; the rest is a truncated
// SHA-256 digest.
const APIKeyPrefix = "cck_"

// TypeInfo describes one supported device class.
type TypeInfo struct {
	Label   string   `json:"label"`
	Metrics []string `json:"metrics"`
}

// Types enumerates the supported device classes and the metrics each
// may report.
var Types = map[string]TypeInfo{
	"smartwatch": {Label: "Smart Watch", Metrics: []string{"heart_rate", "spo2", "respiratory_rate", "temperature_f"}},
	"bp_monitor": {Label: "BP Monitor", Metrics: []string{"systolic_bp", "diastolic_bp", "heart_rate"}},
	"oximeter":   {Label: "Pulse Oximeter", Metrics: []string{"spo2", "heart_rate"}},
	"custom":     {Label: "Custom Device", Metrics: []string{"heart_rate", "systolic_bp", "diastolic_bp", "spo2", "temperature_f", "respiratory_rate"}},
}

// Device is one registered wearable. The APIKey is returned once at
// registration and otherwise stripped from listings.
type Device struct {
	ID               string     `json:"id"`
	PatientID        string     `json:"patient_id"`
	DeviceType       string     `json:"device_type"`
	DeviceName       string     `json:"device_name"`
	APIKey           string     `json:"api_key,omitempty"`
	IsActive         bool       `json:"is_active"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
	BatteryPct       int        `json:"battery_pct"`
	Firmware         string     `json:"firmware"`
	RegisteredAt     time.Time  `json:"registered_at"`
	SupportedMetrics []string   `json:"supported_metrics,omitempty"`
}

// Heartbeat is a device check-in. Zero-value fields leave the stored
// values unchanged.
type Heartbeat struct {
	BatteryPct *int   `json:"battery_pct"`
	Firmware   string `json:"firmware"`
}
