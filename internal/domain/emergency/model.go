// Package emergency owns the per-patient emergency lifecycle: trigger,
// confirm window, escalation with recorded side-effects, and the terminal
// resolve/cancel/override transitions. At most one event per patient may
// be non-terminal at any time, and a replayed idempotency key never
// creates a second event.
package emergency

import (
	"time"

	"github.com/connectcare/connectcare/internal/platform/notification"
)

// Status is the lifecycle state of an emergency event.
type Status string

const (
	StatusPendingConfirmation Status = "PENDING_CONFIRMATION"
	StatusEscalated           Status = "ESCALATED"
	StatusResolved            Status = "RESOLVED"
	StatusCancelled           Status = "CANCELLED"
	StatusCaretakerOverride   Status = "CARETAKER_OVERRIDE"
)

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusResolved, StatusCancelled, StatusCaretakerOverride:
		return true
	}
	return false
}

// TriggerSource identifies what initiated an emergency.
type TriggerSource string

const (
	SourceManualSOS      TriggerSource = "MANUAL_SOS"
	SourceFallDetection  TriggerSource = "FALL_DETECTION"
	SourceVitalsCritical TriggerSource = "VITALS_CRITICAL"
	SourceInactivity     TriggerSource = "INACTIVITY"
	SourceCaretakerAlert TriggerSource = "CARETAKER_ALERT"
)

// ConfirmationWindow is how long a patient has to self-cancel a false
// alarm before external parties are contacted. The deadline is advisory
// data on the event; no timer transitions the event automatically.
const ConfirmationWindow = 30 * time.Second

// Escalation action names, performed in this order.
const (
	ActionCaretakerNotified    = "CARETAKER_NOTIFIED"
	ActionDialAmbulance        = "DIAL_108"
	ActionGPSShared            = "GPS_SHARED"
	ActionVoiceAgentDispatched = "VOICE_AGENT_DISPATCHED"
)

// ActionRecord is the outcome of one escalation side-effect. A failed
// action never rolls back the escalation or blocks later actions.
type ActionRecord struct {
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is the unit of the escalation workflow. Created by trigger,
// mutated only through the Service transitions, never deleted; terminal
// events remain queryable through the ledger and the active table.
type Event struct {
	EventID              string                 `json:"event_id"`
	IdempotencyKey       string                 `json:"idempotency_key"`
	PatientID            string                 `json:"patient_id"`
	PatientName          string                 `json:"patient_name"`
	TriggerSource        TriggerSource          `json:"trigger_source"`
	Status               Status                 `json:"status"`
	TriggeredAt          time.Time              `json:"triggered_at"`
	ConfirmationDeadline time.Time              `json:"confirmation_deadline"`
	EscalatedAt          *time.Time             `json:"escalated_at,omitempty"`
	VitalsSnapshot       map[string]float64     `json:"vitals_snapshot,omitempty"`
	Location             *notification.Location `json:"location,omitempty"`
	CaretakerContact     string                 `json:"caretaker_contact,omitempty"`
	MedicalContext       string                 `json:"medical_context,omitempty"`
	ActionsTaken         []ActionRecord         `json:"actions_taken"`
	ResolvedAt           *time.Time             `json:"resolved_at,omitempty"`
	ResolvedBy           string                 `json:"resolved_by,omitempty"`
	OverrideBy           string                 `json:"override_by,omitempty"`
	OverrideAt           *time.Time             `json:"override_at,omitempty"`
}

// TriggerInput carries everything a caller may supply when initiating an
// emergency. Only PatientID and Source are required.
type TriggerInput struct {
	PatientID        string                 `json:"patient_id"`
	PatientName      string                 `json:"patient_name"`
	Source           TriggerSource          `json:"trigger_source"`
	VitalsSnapshot   map[string]float64     `json:"vitals_snapshot"`
	Location         *notification.Location `json:"location"`
	CaretakerContact string                 `json:"caretaker_contact"`
	MedicalContext   string                 `json:"medical_context"`
	IdempotencyKey   string                 `json:"idempotency_key"`
}

// TriggerResult distinguishes a genuinely new event from a benign
// idempotent replay and from a trigger attempted while another emergency
// is already active for the patient.
type TriggerResult struct {
	Event         *Event `json:"event"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	AlreadyActive bool   `json:"already_active,omitempty"`
}
