package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/connectcare/connectcare/internal/domain/vitals"
)

var (
	ErrUnknownDeviceType  = errors.New("unknown device type")
	ErrDeviceLimitReached = fmt.Errorf("patient already has the maximum (%d) devices registered", MaxDevicesPerPatient)
	ErrUnauthorizedDevice = errors.New("unknown or deactivated device key")
)

// VitalsIngester is the slice of the vitals pipeline device readings
// flow into. Satisfied by *vitals.Service.
type VitalsIngester interface {
	Submit(ctx context.Context, patientID string, takenAt time.Time, current map[string]float64) (*vitals.SubmissionResult, error)
}

// Service manages the device registry and routes authenticated device
// readings into the vitals pipeline.
type Service struct {
	repo      Repository
	ingester  VitalsIngester
	keySecret string
	logger    zerolog.Logger
}

func NewService(repo Repository, ingester VitalsIngester, keySecret string, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		ingester:  ingester,
		keySecret: keySecret,
		logger:    logger.With().Str("component", "device").Logger(),
	}
}

// generateAPIKey derives an unguessable per-device key. The uuid salt
// makes re-registration of the same device id produce a fresh key.
func (s *Service) generateAPIKey(deviceID string) string {
	raw := fmt.Sprintf("%s:%s:%s", deviceID, s.keySecret, uuid.New().String())
	sum := sha256.Sum256([]byte(raw))
	return APIKeyPrefix + hex.EncodeToString(sum[:])[:40]
}

// Register issues a new device record. The returned record carries the
// API key; it is not retrievable afterwards.
func (s *Service) Register(ctx context.Context, patientID, deviceType, deviceName string) (*Device, error) {
	info, ok := Types[deviceType]
	if !ok {
		return nil, ErrUnknownDeviceType
	}

	existing, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, d := range existing {
		if d.IsActive {
			active++
		}
	}
	if active >= MaxDevicesPerPatient {
		return nil, ErrDeviceLimitReached
	}

	if deviceName == "" {
		deviceName = info.Label
	}
	deviceID := fmt.Sprintf("%s_%s_%s", deviceType, patientID, uuid.New().String()[:8])
	d := &Device{
		ID:               deviceID,
		PatientID:        patientID,
		DeviceType:       deviceType,
		DeviceName:       deviceName,
		APIKey:           s.generateAPIKey(deviceID),
		IsActive:         true,
		BatteryPct:       100,
		Firmware:         "1.0.0",
		RegisteredAt:     time.Now().UTC(),
		SupportedMetrics: info.Metrics,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("device_id", d.ID).Str("patient_id", patientID).
		Str("device_type", deviceType).Msg("device registered")
	return d, nil
}

// Authenticate resolves an API key to its active device.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (*Device, error) {
	if apiKey == "" {
		return nil, ErrUnauthorizedDevice
	}
	d, err := s.repo.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrUnauthorizedDevice
	}
	return d, nil
}

// List returns a patient's devices with API keys stripped.
func (s *Service) List(ctx context.Context, patientID string) ([]*Device, error) {
	devices, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		d.APIKey = ""
		if info, ok := Types[d.DeviceType]; ok {
			d.SupportedMetrics = info.Metrics
		}
	}
	return devices, nil
}

// Deregister deactivates a device. Its key stops authenticating on the
// next lookup.
func (s *Service) Deregister(ctx context.Context, deviceID string) error {
	if err := s.repo.Deactivate(ctx, deviceID); err != nil {
		return err
	}
	s.logger.Info().Str("device_id", deviceID).Msg("device deactivated")
	return nil
}

// Ping records a device heartbeat.
func (s *Service) Ping(ctx context.Context, apiKey string, hb Heartbeat) (*Device, error) {
	d, err := s.Authenticate(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Touch(ctx, apiKey, time.Now().UTC(), hb); err != nil {
		return nil, err
	}
	return d, nil
}

// supportedOnly drops metrics the device type cannot produce. A
// compromised or misbehaving device key must not inject readings for
// metrics outside its hardware class.
func (s *Service) supportedOnly(d *Device, reading map[string]float64) map[string]float64 {
	info, ok := Types[d.DeviceType]
	if !ok {
		return map[string]float64{}
	}
	supported := make(map[string]bool, len(info.Metrics))
	for _, m := range info.Metrics {
		supported[m] = true
	}
	filtered := make(map[string]float64, len(reading))
	for metric, value := range reading {
		if !supported[metric] {
			s.logger.Warn().Str("device_id", d.ID).Str("metric", metric).
				Msg("metric not supported by device type, dropped")
			continue
		}
		filtered[metric] = value
	}
	return filtered
}

// Ingest authenticates a device reading, drops metrics the device type
// does not support, records the heartbeat, and runs the remainder
// through the vitals pipeline under the device's patient.
func (s *Service) Ingest(ctx context.Context, apiKey string, reading map[string]float64, hb Heartbeat) (*vitals.SubmissionResult, *Device, error) {
	d, err := s.Authenticate(ctx, apiKey)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.Touch(ctx, apiKey, time.Now().UTC(), hb); err != nil {
		s.logger.Warn().Err(err).Str("device_id", d.ID).Msg("heartbeat update failed")
	}

	filtered := s.supportedOnly(d, reading)

	result, err := s.ingester.Submit(ctx, d.PatientID, time.Time{}, filtered)
	if err != nil {
		return nil, d, err
	}
	return result, d, nil
}
