// Package audit implements the append-only emergency audit ledger. The
// ledger owns append order, bounds retention to the most recent entries,
// and is the sole source of truth for duplicate-trigger detection; the
// per-patient active-event table is a derived cache.
package audit

import "time"

// EventType names a lifecycle transition recorded in the ledger.
type EventType string

const (
	EventTriggered EventType = "EMERGENCY_TRIGGERED"
	EventEscalated EventType = "EMERGENCY_ESCALATED"
	EventCancelled EventType = "EMERGENCY_CANCELLED"
	EventResolved  EventType = "EMERGENCY_RESOLVED"
	EventOverride  EventType = "CARETAKER_OVERRIDE"
)

// RetentionLimit bounds the ledger to the most recent N entries. Older
// entries may be pruned; retention beyond this is an external policy.
const RetentionLimit = 2000

// Entry is one immutable audit record. Consumers only read; the ledger
// exclusively owns append order.
type Entry struct {
	EventType      EventType              `db:"event_type" json:"event_type"`
	EventID        string                 `db:"event_id" json:"event_id"`
	PatientID      string                 `db:"patient_id" json:"patient_id"`
	IdempotencyKey string                 `db:"idempotency_key" json:"idempotency_key,omitempty"`
	Payload        map[string]interface{} `db:"payload" json:"payload,omitempty"`
	LoggedAt       time.Time              `db:"logged_at" json:"logged_at"`
}
