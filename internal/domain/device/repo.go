package device

import (
	"context"
	"sync"
	"time"
)

// Repository stores the device registry. GetByAPIKey resolves active
// devices only; deactivated keys stop authenticating immediately.
type Repository interface {
	Create(ctx context.Context, d *Device) error
	GetByAPIKey(ctx context.Context, apiKey string) (*Device, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Device, error)
	Deactivate(ctx context.Context, deviceID string) error
	Touch(ctx context.Context, apiKey string, seenAt time.Time, hb Heartbeat) error
}

// MemoryRepo is an in-memory Repository used in tests and single-node
// deployments without a database.
type MemoryRepo struct {
	mu      sync.RWMutex
	byKey   map[string]*Device
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byKey: make(map[string]*Device)}
}

func (r *MemoryRepo) Create(_ context.Context, d *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *d
	r.byKey[d.APIKey] = &clone
	return nil
}

func (r *MemoryRepo) GetByAPIKey(_ context.Context, apiKey string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[apiKey]
	if !ok || !d.IsActive {
		return nil, nil
	}
	clone := *d
	return &clone, nil
}

func (r *MemoryRepo) ListByPatient(_ context.Context, patientID string) ([]*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Device
	for _, d := range r.byKey {
		if d.PatientID == patientID {
			clone := *d
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *MemoryRepo) Deactivate(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.byKey {
		if d.ID == deviceID {
			d.IsActive = false
		}
	}
	return nil
}

func (r *MemoryRepo) Touch(_ context.Context, apiKey string, seenAt time.Time, hb Heartbeat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byKey[apiKey]
	if !ok {
		return nil
	}
	t := seenAt
	d.LastSeen = &t
	if hb.BatteryPct != nil {
		d.BatteryPct = *hb.BatteryPct
	}
	if hb.Firmware != "" {
		d.Firmware = hb.Firmware
	}
	return nil
}
