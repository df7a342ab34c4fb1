package audit

import (
	"context"
	"sync"
	"time"
)

// Ledger is the persistence contract for the audit trail. Append must
// serialize concurrent writers so total order per patient is preserved.
type Ledger interface {
	// Append records one entry, stamping LoggedAt when zero.
	Append(ctx context.Context, e *Entry) error
	// Query returns the most recent entries in append order, optionally
	// filtered by patient. patientID == "" means all patients.
	Query(ctx context.Context, patientID string, limit int) ([]*Entry, error)
	// FindTrigger returns the most recent EMERGENCY_TRIGGERED entry with
	// the given idempotency key, or nil when no such trigger was logged.
	FindTrigger(ctx context.Context, idempotencyKey string) (*Entry, error)
}

// MemoryLedger is an in-process Ledger used in tests and storage-agnostic
// embeddings. Appends are serialized by a mutex; retention keeps the most
// recent RetentionLimit entries.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) Append(_ context.Context, e *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}
	cp := *e
	l.entries = append(l.entries, &cp)
	if len(l.entries) > RetentionLimit {
		l.entries = l.entries[len(l.entries)-RetentionLimit:]
	}
	return nil
}

func (l *MemoryLedger) Query(_ context.Context, patientID string, limit int) ([]*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []*Entry
	for _, e := range l.entries {
		if patientID == "" || e.PatientID == patientID {
			matched = append(matched, e)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]*Entry, len(matched))
	for i, e := range matched {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (l *MemoryLedger) FindTrigger(_ context.Context, idempotencyKey string) (*Entry, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Most recent match wins.
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.EventType == EventTriggered && e.IdempotencyKey == idempotencyKey {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}
