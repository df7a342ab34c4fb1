package emergency

import (
	"context"
	"sync"
)

// ActiveRepository stores the latest emergency event per patient. It is a
// derived cache of "current event"; the audit ledger remains the source
// of truth for duplicate-trigger detection. Get returns the last event
// for the patient whether or not it is terminal, or nil when the patient
// never had one.
type ActiveRepository interface {
	Get(ctx context.Context, patientID string) (*Event, error)
	Set(ctx context.Context, event *Event) error
}

// MemoryActiveRepo is an in-process ActiveRepository for tests and
// storage-agnostic embeddings.
type MemoryActiveRepo struct {
	mu     sync.RWMutex
	events map[string]*Event
}

func NewMemoryActiveRepo() *MemoryActiveRepo {
	return &MemoryActiveRepo{events: make(map[string]*Event)}
}

func (r *MemoryActiveRepo) Get(_ context.Context, patientID string) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[patientID]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (r *MemoryActiveRepo) Set(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *event
	r.events[event.PatientID] = &cp
	return nil
}
