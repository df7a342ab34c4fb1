package device

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const deviceCols = `id, patient_id, device_type, device_name, api_key, is_active, last_seen, battery_pct, firmware, registered_at`

func scanDevice(row interface {
	Scan(dest ...interface{}) error
}) (*Device, error) {
	var d Device
	if err := row.Scan(&d.ID, &d.PatientID, &d.DeviceType, &d.DeviceName, &d.APIKey,
		&d.IsActive, &d.LastSeen, &d.BatteryPct, &d.Firmware, &d.RegisteredAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Device) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO iot_device (id, patient_id, device_type, device_name, api_key, is_active, battery_pct, firmware, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.PatientID, d.DeviceType, d.DeviceName, d.APIKey, d.IsActive, d.BatteryPct, d.Firmware, d.RegisteredAt)
	return err
}

func (r *repoPG) GetByAPIKey(ctx context.Context, apiKey string) (*Device, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+deviceCols+` FROM iot_device
		WHERE api_key = $1 AND is_active`, apiKey)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string) ([]*Device, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deviceCols+` FROM iot_device
		WHERE patient_id = $1 ORDER BY registered_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *repoPG) Deactivate(ctx context.Context, deviceID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE iot_device SET is_active = FALSE WHERE id = $1`, deviceID)
	return err
}

func (r *repoPG) Touch(ctx context.Context, apiKey string, seenAt time.Time, hb Heartbeat) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE iot_device SET
			last_seen = $2,
			battery_pct = COALESCE($3, battery_pct),
			firmware = COALESCE(NULLIF($4, ''), firmware)
		WHERE api_key = $1`, apiKey, seenAt, hb.BatteryPct, hb.Firmware)
	return err
}
