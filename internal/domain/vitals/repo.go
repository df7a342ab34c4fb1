package vitals

import (
	"context"
	"sync"
)

// HistoryLimit is the number of readings retained per patient per
// metric. Older readings are discarded on append.
const HistoryLimit = 200

// HistoryRepository stores per-patient reading series. Series are
// returned oldest first.
type HistoryRepository interface {
	Append(ctx context.Context, patientID string, r Reading) error
	Series(ctx context.Context, patientID, metric string, limit int) ([]Reading, error)
	AllSeries(ctx context.Context, patientID string, limit int) (map[string][]Reading, error)
}

// MemoryHistoryRepo is an in-memory HistoryRepository used in tests and
// single-node deployments without a database.
type MemoryHistoryRepo struct {
	mu     sync.RWMutex
	series map[string]map[string][]Reading // patientID -> metric -> readings
}

func NewMemoryHistoryRepo() *MemoryHistoryRepo {
	return &MemoryHistoryRepo{series: make(map[string]map[string][]Reading)}
}

func (r *MemoryHistoryRepo) Append(_ context.Context, patientID string, reading Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.series[patientID]
	if !ok {
		metrics = make(map[string][]Reading)
		r.series[patientID] = metrics
	}
	s := append(metrics[reading.Metric], reading)
	if len(s) > HistoryLimit {
		s = s[len(s)-HistoryLimit:]
	}
	metrics[reading.Metric] = s
	return nil
}

func (r *MemoryHistoryRepo) Series(_ context.Context, patientID, metric string, limit int) ([]Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.series[patientID][metric]
	return tail(s, limit), nil
}

func (r *MemoryHistoryRepo) AllSeries(_ context.Context, patientID string, limit int) (map[string][]Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]Reading, len(r.series[patientID]))
	for metric, s := range r.series[patientID] {
		out[metric] = tail(s, limit)
	}
	return out, nil
}

func tail(s []Reading, limit int) []Reading {
	if limit > 0 && len(s) > limit {
		s = s[len(s)-limit:]
	}
	out := make([]Reading, len(s))
	copy(out, s)
	return out
}
