package emergency

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type activeRepoPG struct{ pool *pgxpool.Pool }

// NewActiveRepoPG returns a PostgreSQL-backed ActiveRepository. The event
// document is stored as JSONB keyed by patient so the full lifecycle
// state (including recorded actions) survives a process restart intact.
func NewActiveRepoPG(pool *pgxpool.Pool) ActiveRepository { return &activeRepoPG{pool: pool} }

func (r *activeRepoPG) Get(ctx context.Context, patientID string) (*Event, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT event FROM active_emergency WHERE patient_id = $1`, patientID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(doc, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *activeRepoPG) Set(ctx context.Context, event *Event) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO active_emergency (patient_id, event, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (patient_id) DO UPDATE SET event = EXCLUDED.event, updated_at = NOW()`,
		event.PatientID, doc)
	return err
}
