package emergency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/connectcare/connectcare/internal/domain/audit"
	"github.com/connectcare/connectcare/internal/platform/notification"
)

// ErrNoActiveEmergency is returned by lifecycle transitions when the
// patient has no active (non-terminal) emergency. Callers surface it as a
// client error.
var ErrNoActiveEmergency = errors.New("no active emergency for patient")

// DefaultAmbulanceNumber is the Indian national ambulance line, dialed
// when no deployment-specific number is configured.
const DefaultAmbulanceNumber = "108"

// Options carries the deployment contacts used during escalation.
type Options struct {
	// AmbulanceNumber is the emergency line dialed on escalation.
	AmbulanceNumber string
	// CaretakerContact is the fallback contact for events that carry
	// none of their own.
	CaretakerContact string
}

// Service is the emergency state machine. All transitions for one patient
// are serialized by a per-patient mutex so the at-most-one-active
// invariant holds under concurrent triggers.
type Service struct {
	active   ActiveRepository
	ledger   audit.Ledger
	notifier notification.Notifier
	opts     Options
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(active ActiveRepository, ledger audit.Ledger, notifier notification.Notifier, opts Options, logger zerolog.Logger) *Service {
	if opts.AmbulanceNumber == "" {
		opts.AmbulanceNumber = DefaultAmbulanceNumber
	}
	return &Service{
		active:   active,
		ledger:   ledger,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// patientLock returns the mutex serializing all transitions for one
// patient. Operations on different patients proceed in parallel.
func (s *Service) patientLock(patientID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[patientID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[patientID] = l
	}
	return l
}

// Trigger initiates an emergency event. Replaying an idempotency key
// returns the prior event tagged as a duplicate with no new writes. A
// trigger while another event is active for the patient returns that
// event tagged already-active; a second concurrent event is never
// created. Otherwise the event starts in PENDING_CONFIRMATION with a
// 30-second confirmation deadline, is persisted, and EMERGENCY_TRIGGERED
// is appended to the ledger.
func (s *Service) Trigger(ctx context.Context, in TriggerInput) (*TriggerResult, error) {
	if in.PatientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if in.Source == "" {
		in.Source = SourceManualSOS
	}

	lock := s.patientLock(in.PatientID)
	lock.Lock()
	defer lock.Unlock()

	// The ledger, not the active table, decides whether this key was seen.
	if in.IdempotencyKey != "" {
		prior, err := s.ledger.FindTrigger(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if prior != nil {
			s.logger.Info().Str("idempotency_key", in.IdempotencyKey).Msg("duplicate emergency trigger suppressed")
			return &TriggerResult{Event: s.eventForTrigger(ctx, prior), Duplicate: true}, nil
		}
	}

	existing, err := s.active.Get(ctx, in.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load active emergency: %w", err)
	}
	if existing != nil && !existing.Status.Terminal() {
		s.logger.Warn().
			Str("patient_id", in.PatientID).
			Str("event_id", existing.EventID).
			Msg("emergency already active for patient")
		return &TriggerResult{Event: existing, AlreadyActive: true}, nil
	}

	now := time.Now().UTC()
	eventID := uuid.New().String()
	key := in.IdempotencyKey
	if key == "" {
		key = eventID
	}
	name := in.PatientName
	if name == "" {
		name = "Unknown Patient"
	}
	contact := in.CaretakerContact
	if contact == "" {
		contact = s.opts.CaretakerContact
	}

	event := &Event{
		EventID:              eventID,
		IdempotencyKey:       key,
		PatientID:            in.PatientID,
		PatientName:          name,
		TriggerSource:        in.Source,
		Status:               StatusPendingConfirmation,
		TriggeredAt:          now,
		ConfirmationDeadline: now.Add(ConfirmationWindow),
		VitalsSnapshot:       in.VitalsSnapshot,
		Location:             in.Location,
		CaretakerContact:     contact,
		MedicalContext:       in.MedicalContext,
		ActionsTaken:         []ActionRecord{},
	}

	if err := s.active.Set(ctx, event); err != nil {
		return nil, fmt.Errorf("persist emergency: %w", err)
	}
	if err := s.ledger.Append(ctx, &audit.Entry{
		EventType:      audit.EventTriggered,
		EventID:        eventID,
		PatientID:      in.PatientID,
		IdempotencyKey: key,
		Payload:        map[string]interface{}{"trigger_source": string(in.Source)},
	}); err != nil {
		return nil, fmt.Errorf("audit trigger: %w", err)
	}

	s.logger.Info().
		Str("event_id", eventID).
		Str("patient_id", in.PatientID).
		Str("source", string(in.Source)).
		Msg("emergency triggered")
	return &TriggerResult{Event: event}, nil
}

// eventForTrigger resolves the event behind a replayed trigger entry. The
// active table normally still holds it; when it has been overwritten by a
// later trigger, a stub carrying the original identifiers is returned so
// the caller still sees the same event_id.
func (s *Service) eventForTrigger(ctx context.Context, entry *audit.Entry) *Event {
	if ev, err := s.active.Get(ctx, entry.PatientID); err == nil && ev != nil && ev.EventID == entry.EventID {
		return ev
	}
	return &Event{
		EventID:        entry.EventID,
		IdempotencyKey: entry.IdempotencyKey,
		PatientID:      entry.PatientID,
		TriggeredAt:    entry.LoggedAt,
	}
}

// Escalate moves a PENDING_CONFIRMATION event to ESCALATED and performs
// the four ordered escalation actions, recording each outcome. Any other
// status is a safe no-op returning the current event, so a retried or
// concurrent escalate cannot double-fire the actions. A failed action is
// recorded and never blocks the remaining ones.
func (s *Service) Escalate(ctx context.Context, patientID string, location *notification.Location) (*Event, error) {
	lock := s.patientLock(patientID)
	lock.Lock()
	defer lock.Unlock()

	event, err := s.active.Get(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load active emergency: %w", err)
	}
	if event == nil {
		return nil, ErrNoActiveEmergency
	}
	if event.Status != StatusPendingConfirmation {
		return event, nil
	}

	now := time.Now().UTC()
	event.Status = StatusEscalated
	event.EscalatedAt = &now
	if location != nil {
		event.Location = location
	}

	event.ActionsTaken = append(event.ActionsTaken, s.runEscalationActions(ctx, event)...)

	if err := s.active.Set(ctx, event); err != nil {
		return nil, fmt.Errorf("persist escalation: %w", err)
	}

	names := make([]string, 0, len(event.ActionsTaken))
	for _, a := range event.ActionsTaken {
		names = append(names, a.Action)
	}
	if err := s.ledger.Append(ctx, &audit.Entry{
		EventType: audit.EventEscalated,
		EventID:   event.EventID,
		PatientID: patientID,
		Payload:   map[string]interface{}{"actions": names},
	}); err != nil {
		return nil, fmt.Errorf("audit escalation: %w", err)
	}

	s.logger.Info().Str("event_id", event.EventID).Msg("emergency escalated")
	return event, nil
}

func (s *Service) runEscalationActions(ctx context.Context, event *Event) []ActionRecord {
	var records []ActionRecord
	record := func(action, detail string, success bool) {
		records = append(records, ActionRecord{
			Action:    action,
			Detail:    detail,
			Success:   success,
			Timestamp: time.Now().UTC(),
		})
	}

	message := notification.AlertMessage(event.PatientName, event.Location)
	record(ActionCaretakerNotified, "sms/push/in_app",
		s.notifier.NotifyCaretaker(ctx, event.CaretakerContact, message))

	script := VoiceScript(event)
	record(ActionDialAmbulance, s.opts.AmbulanceNumber,
		s.notifier.DispatchVoice(ctx, s.opts.AmbulanceNumber, script))

	gpsDetail := "location not available"
	if event.Location != nil {
		gpsDetail = event.Location.MapsURL()
	}
	record(ActionGPSShared, gpsDetail,
		s.notifier.ShareLocation(ctx, event.Location))

	record(ActionVoiceAgentDispatched, script, true)

	return records
}

// Cancel transitions an active event to CANCELLED ("I'm OK" within the
// confirmation window, or an operator stand-down).
func (s *Service) Cancel(ctx context.Context, patientID, cancelledBy string) (*Event, error) {
	return s.finish(ctx, patientID, StatusCancelled, cancelledBy, audit.EventCancelled, "cancelled_by")
}

// Resolve transitions an active or escalated event to RESOLVED.
func (s *Service) Resolve(ctx context.Context, patientID, resolvedBy string) (*Event, error) {
	return s.finish(ctx, patientID, StatusResolved, resolvedBy, audit.EventResolved, "resolved_by")
}

func (s *Service) finish(ctx context.Context, patientID string, status Status, actor string, eventType audit.EventType, actorField string) (*Event, error) {
	if actor == "" {
		actor = "PATIENT"
	}

	lock := s.patientLock(patientID)
	lock.Lock()
	defer lock.Unlock()

	event, err := s.active.Get(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load active emergency: %w", err)
	}
	if event == nil || event.Status.Terminal() {
		return nil, ErrNoActiveEmergency
	}

	now := time.Now().UTC()
	event.Status = status
	event.ResolvedAt = &now
	event.ResolvedBy = actor

	if err := s.active.Set(ctx, event); err != nil {
		return nil, fmt.Errorf("persist emergency: %w", err)
	}
	if err := s.ledger.Append(ctx, &audit.Entry{
		EventType: eventType,
		EventID:   event.EventID,
		PatientID: patientID,
		Payload:   map[string]interface{}{actorField: actor},
	}); err != nil {
		return nil, fmt.Errorf("audit transition: %w", err)
	}

	s.logger.Info().
		Str("event_id", event.EventID).
		Str("status", string(status)).
		Str("by", actor).
		Msg("emergency closed")
	return event, nil
}

// Override lets a caretaker take manual control of an active event,
// suppressing further automatic escalation.
func (s *Service) Override(ctx context.Context, patientID, caretakerID string) (*Event, error) {
	lock := s.patientLock(patientID)
	lock.Lock()
	defer lock.Unlock()

	event, err := s.active.Get(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load active emergency: %w", err)
	}
	if event == nil || event.Status.Terminal() {
		return nil, ErrNoActiveEmergency
	}

	now := time.Now().UTC()
	event.Status = StatusCaretakerOverride
	event.OverrideBy = caretakerID
	event.OverrideAt = &now

	if err := s.active.Set(ctx, event); err != nil {
		return nil, fmt.Errorf("persist emergency: %w", err)
	}
	if err := s.ledger.Append(ctx, &audit.Entry{
		EventType: audit.EventOverride,
		EventID:   event.EventID,
		PatientID: patientID,
		Payload:   map[string]interface{}{"caretaker_id": caretakerID},
	}); err != nil {
		return nil, fmt.Errorf("audit override: %w", err)
	}
	return event, nil
}

// Active returns the latest event for a patient (nil when none was ever
// triggered). The boolean reports whether it is still non-terminal.
func (s *Service) Active(ctx context.Context, patientID string) (*Event, bool, error) {
	event, err := s.active.Get(ctx, patientID)
	if err != nil {
		return nil, false, err
	}
	if event == nil {
		return nil, false, nil
	}
	return event, !event.Status.Terminal(), nil
}

// HasActive reports whether the patient has a non-terminal emergency.
// Repository failures degrade to false so vitals ingestion keeps working.
func (s *Service) HasActive(ctx context.Context, patientID string) bool {
	event, err := s.active.Get(ctx, patientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID).Msg("active emergency lookup failed")
		return false
	}
	return event != nil && !event.Status.Terminal()
}

// AuditLog returns ledger entries, optionally filtered by patient.
func (s *Service) AuditLog(ctx context.Context, patientID string, limit int) ([]*audit.Entry, error) {
	return s.ledger.Query(ctx, patientID, limit)
}
