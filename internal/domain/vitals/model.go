// Package vitals implements the vitals intelligence pipeline: clinical
// threshold evaluation, statistical outlier detection, temporal trend
// analysis, and risk-flag synthesis. The analysis functions are pure and
// stateless; the Service layers per-patient history and emergency
// hand-off on top of them.
package vitals

import (
	"strings"
	"time"
	"unicode"
)

// Severity classifies a reading against the clinical reference bands.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Direction classifies a metric trend over a reading window.
type Direction string

const (
	DirectionRising           Direction = "rising"
	DirectionFalling          Direction = "falling"
	DirectionStable           Direction = "stable"
	DirectionInsufficientData Direction = "insufficient_data"
)

// Supported metric names.
const (
	MetricHeartRate       = "heart_rate"
	MetricSystolicBP      = "systolic_bp"
	MetricDiastolicBP     = "diastolic_bp"
	MetricSpO2            = "spo2"
	MetricTemperatureF    = "temperature_f"
	MetricRespiratoryRate = "respiratory_rate"
)

// Reading is one timestamped observation of a single metric. Immutable
// once recorded.
type Reading struct {
	Metric  string    `db:"metric" json:"metric"`
	Value   float64   `db:"value" json:"value"`
	TakenAt time.Time `db:"taken_at" json:"timestamp"`
}

// ThresholdResult is the classification of one reading against the
// reference bands. Derived purely from the reading and the band table.
type ThresholdResult struct {
	Metric        string   `json:"metric"`
	Value         float64  `json:"value"`
	Unit          string   `json:"unit"`
	Severity      Severity `json:"severity"`
	Message       string   `json:"message"`
	AutoEmergency bool     `json:"auto_emergency"`
}

// OutlierResult reports whether a reading is statistically anomalous
// relative to the metric's recent history.
type OutlierResult struct {
	IsOutlier    bool    `json:"is_outlier"`
	ZScore       float64 `json:"z_score"`
	DeviationPct float64 `json:"deviation_pct"`
	Message      string  `json:"message"`
}

// TrendResult is the fitted direction of a metric over a reading window.
type TrendResult struct {
	Metric              string    `json:"metric"`
	Direction           Direction `json:"direction"`
	SlopePerReading     float64   `json:"slope_per_reading"`
	ChangePctOverWindow float64   `json:"change_pct_over_window"`
	Message             string    `json:"message"`
}

// RiskFlag is a synthesized, deduplicated, human-actionable alert. Flags
// are advisory text, never a diagnosis.
type RiskFlag struct {
	FlagID         string   `json:"flag_id"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Detail         string   `json:"detail"`
	Recommendation string   `json:"recommendation"`
}

// metricTitle renders "systolic_bp" as "Systolic Bp" for display text.
func metricTitle(metric string) string {
	words := strings.Split(metric, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// metricLabel renders "systolic_bp" as "systolic bp" for inline text.
func metricLabel(metric string) string {
	return strings.ReplaceAll(metric, "_", " ")
}
