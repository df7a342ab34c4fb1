package emergency

import (
	"fmt"
	"sort"
	"strings"
)

// VoiceScript builds the natural-language briefing a voice agent reads to
// the emergency operator: patient name, snapshot vitals, location, and
// the event reference. Plain and factual, never diagnostic.
func VoiceScript(event *Event) string {
	patient := event.PatientName
	if patient == "" {
		patient = "the patient"
	}

	vitalsStr := "not available"
	if len(event.VitalsSnapshot) > 0 {
		metrics := make([]string, 0, len(event.VitalsSnapshot))
		for m := range event.VitalsSnapshot {
			metrics = append(metrics, m)
		}
		sort.Strings(metrics)
		parts := make([]string, 0, len(metrics))
		for _, m := range metrics {
			parts = append(parts, fmt.Sprintf("%s: %v", strings.ReplaceAll(m, "_", " "), event.VitalsSnapshot[m]))
		}
		vitalsStr = strings.Join(parts, ", ")
	}

	locStr := "location not available"
	if event.Location != nil {
		locStr = fmt.Sprintf("GPS coordinates: %.4f N, %.4f E", event.Location.Lat, event.Location.Lon)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello, this is the Connect Care automated emergency system. ")
	fmt.Fprintf(&b, "We are calling on behalf of %s, who requires immediate medical assistance. ", patient)
	fmt.Fprintf(&b, "Current vitals: %s. %s. ", vitalsStr, locStr)
	if event.MedicalContext != "" {
		fmt.Fprintf(&b, "Background: %s. ", event.MedicalContext)
	}
	fmt.Fprintf(&b, "Please dispatch an ambulance immediately. The caretaker has been notified. ")
	fmt.Fprintf(&b, "Emergency reference: %s.", event.EventID)
	return b.String()
}
