package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ledgerPG struct{ pool *pgxpool.Pool }

// NewLedgerPG returns a PostgreSQL-backed Ledger. Append order is
// serialized by the bigserial sequence on emergency_audit.id.
func NewLedgerPG(pool *pgxpool.Pool) Ledger { return &ledgerPG{pool: pool} }

func (l *ledgerPG) Append(ctx context.Context, e *Entry) error {
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}
	var payload []byte
	if e.Payload != nil {
		var err error
		payload, err = json.Marshal(e.Payload)
		if err != nil {
			return err
		}
	}
	_, err := l.pool.Exec(ctx, `
		INSERT INTO emergency_audit (event_type, event_id, patient_id, idempotency_key, payload, logged_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		string(e.EventType), e.EventID, e.PatientID, e.IdempotencyKey, payload, e.LoggedAt)
	if err != nil {
		return err
	}
	// Bounded retention: drop rows older than the most recent RetentionLimit.
	_, err = l.pool.Exec(ctx, `
		DELETE FROM emergency_audit
		WHERE id < (SELECT COALESCE(MIN(id), 0) FROM (
			SELECT id FROM emergency_audit ORDER BY id DESC LIMIT $1
		) recent)`, RetentionLimit)
	return err
}

const entryCols = `event_type, event_id, patient_id, COALESCE(idempotency_key, '') AS idempotency_key, payload, logged_at`

func scanEntry(row interface {
	Scan(dest ...interface{}) error
}) (*Entry, error) {
	var e Entry
	var eventType string
	var payload []byte
	if err := row.Scan(&eventType, &e.EventID, &e.PatientID, &e.IdempotencyKey, &payload, &e.LoggedAt); err != nil {
		return nil, err
	}
	e.EventType = EventType(eventType)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func (l *ledgerPG) Query(ctx context.Context, patientID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx, `
		SELECT `+entryCols+` FROM (
			SELECT id, `+entryCols+` FROM emergency_audit
			WHERE ($1 = '' OR patient_id = $1)
			ORDER BY id DESC LIMIT $2
		) recent ORDER BY id ASC`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *ledgerPG) FindTrigger(ctx context.Context, idempotencyKey string) (*Entry, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	row := l.pool.QueryRow(ctx, `
		SELECT `+entryCols+` FROM emergency_audit
		WHERE event_type = $1 AND idempotency_key = $2
		ORDER BY id DESC LIMIT 1`, string(EventTriggered), idempotencyKey)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}
