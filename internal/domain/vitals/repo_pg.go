package vitals

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type historyRepoPG struct{ pool *pgxpool.Pool }

// NewHistoryRepoPG returns a PostgreSQL-backed HistoryRepository.
// Insert order is serialized by the bigserial sequence on
// vitals_history.id.
func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) Append(ctx context.Context, patientID string, reading Reading) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO vitals_history (patient_id, metric, value, taken_at)
		VALUES ($1, $2, $3, $4)`,
		patientID, reading.Metric, reading.Value, reading.TakenAt)
	if err != nil {
		return err
	}
	// Bounded retention per patient and metric.
	_, err = r.pool.Exec(ctx, `
		DELETE FROM vitals_history
		WHERE patient_id = $1 AND metric = $2
		AND id < (SELECT COALESCE(MIN(id), 0) FROM (
			SELECT id FROM vitals_history
			WHERE patient_id = $1 AND metric = $2
			ORDER BY id DESC LIMIT $3
		) recent)`, patientID, reading.Metric, HistoryLimit)
	return err
}

func (r *historyRepoPG) Series(ctx context.Context, patientID, metric string, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT metric, value, taken_at FROM (
			SELECT id, metric, value, taken_at FROM vitals_history
			WHERE patient_id = $1 AND metric = $2
			ORDER BY id DESC LIMIT $3
		) recent ORDER BY id ASC`, patientID, metric, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var rd Reading
		if err := rows.Scan(&rd.Metric, &rd.Value, &rd.TakenAt); err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	return readings, rows.Err()
}

func (r *historyRepoPG) AllSeries(ctx context.Context, patientID string, limit int) (map[string][]Reading, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT metric, value, taken_at FROM (
			SELECT id, metric, value, taken_at,
				ROW_NUMBER() OVER (PARTITION BY metric ORDER BY id DESC) AS rn
			FROM vitals_history
			WHERE patient_id = $1
		) ranked WHERE rn <= $2 ORDER BY id ASC`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]Reading)
	for rows.Next() {
		var rd Reading
		if err := rows.Scan(&rd.Metric, &rd.Value, &rd.TakenAt); err != nil {
			return nil, err
		}
		out[rd.Metric] = append(out[rd.Metric], rd)
	}
	return out, rows.Err()
}
