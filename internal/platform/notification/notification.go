// Package notification provides the outbound alert channels used during
// emergency escalation: caretaker SMS, automated voice dispatch, and GPS
// hand-off. Failures are reported as booleans, never as errors that abort
// escalation; retry policy belongs to the upstream provider.
package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Location is a GPS fix attached to an emergency event.
type Location struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AccuracyM int     `json:"accuracy_m,omitempty"`
}

// MapsURL renders the location as a shareable map link.
func (l Location) MapsURL() string {
	return fmt.Sprintf("https://maps.google.com/?q=%v,%v", l.Lat, l.Lon)
}

// Notifier is the collaborator contract the emergency state machine uses
// for escalation side-effects. Implementations must never panic; a failed
// channel returns false and the caller records the outcome.
type Notifier interface {
	// NotifyCaretaker sends an alert message to the caretaker contact.
	NotifyCaretaker(ctx context.Context, contact, message string) bool
	// DispatchVoice initiates an automated voice call that reads the
	// given script payload (or fetches it from a script URL).
	DispatchVoice(ctx context.Context, contact, payload string) bool
	// ShareLocation transmits the GPS fix to the dispatch operator.
	ShareLocation(ctx context.Context, loc *Location) bool
}

// AlertMessage renders the caretaker SMS text for an emergency.
func AlertMessage(patientName string, loc *Location) string {
	locStr := ""
	if loc != nil {
		locStr = " Location: " + loc.MapsURL() + "."
	}
	if patientName == "" {
		patientName = "Patient"
	}
	return fmt.Sprintf(
		"EMERGENCY ALERT: %s may need urgent medical help.%s Connect Care is initiating an emergency call.",
		patientName, locStr)
}

// SimulatedNotifier logs every channel instead of calling a real SMS or
// telephony gateway. It is the default when no provider is configured,
// mirroring production behaviour closely enough for the workflow: the
// caretaker channel and voice dispatch succeed when a contact is present,
// and GPS share succeeds when a location is present.
type SimulatedNotifier struct {
	logger zerolog.Logger
}

func NewSimulatedNotifier(logger zerolog.Logger) *SimulatedNotifier {
	return &SimulatedNotifier{logger: logger}
}

func (n *SimulatedNotifier) NotifyCaretaker(_ context.Context, contact, message string) bool {
	if contact == "" || contact == "unknown" {
		n.logger.Warn().Msg("no caretaker contact for alert")
		return false
	}
	n.logger.Info().Str("to", contact).Str("message", message).Msg("simulated caretaker sms")
	return true
}

func (n *SimulatedNotifier) DispatchVoice(_ context.Context, contact, payload string) bool {
	if contact == "" || contact == "unknown" {
		n.logger.Warn().Msg("no contact for automated voice dispatch")
		return false
	}
	n.logger.Info().Str("to", contact).Str("script", payload).Msg("simulated voice dispatch")
	return true
}

func (n *SimulatedNotifier) ShareLocation(_ context.Context, loc *Location) bool {
	if loc == nil {
		n.logger.Warn().Msg("no location data to share")
		return false
	}
	n.logger.Info().Float64("lat", loc.Lat).Float64("lon", loc.Lon).Msg("simulated gps share")
	return true
}
