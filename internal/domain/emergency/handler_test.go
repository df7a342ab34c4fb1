package emergency

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	t.Helper()
	svc, _, _ := newTestService(t)
	return NewHandler(svc, nil), echo.New()
}

func postJSON(e *echo.Echo, body, idempotencyKey string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Trigger(t *testing.T) {
	h, e := newTestHandler(t)

	c, rec := postJSON(e, `{"patient_id":"p1","trigger_source":"MANUAL_SOS"}`, "")
	if err := h.Trigger(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var result TriggerResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Event.Status != StatusPendingConfirmation {
		t.Errorf("status = %s, want PENDING_CONFIRMATION", result.Event.Status)
	}
}

func TestHandler_Trigger_ReplayReturns200(t *testing.T) {
	h, e := newTestHandler(t)
	body := `{"patient_id":"p1","trigger_source":"MANUAL_SOS"}`

	c, rec := postJSON(e, body, "sos-1")
	if err := h.Trigger(c); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", rec.Code)
	}

	c, rec = postJSON(e, body, "sos-1")
	if err := h.Trigger(c); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("replay status = %d, want 200", rec.Code)
	}
	var result TriggerResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.Duplicate {
		t.Error("replay must be tagged duplicate")
	}
}

func TestHandler_Trigger_SecondActiveReturns409(t *testing.T) {
	h, e := newTestHandler(t)

	c, _ := postJSON(e, `{"patient_id":"p1","trigger_source":"MANUAL_SOS"}`, "a")
	if err := h.Trigger(c); err != nil {
		t.Fatalf("first trigger: %v", err)
	}

	c, rec := postJSON(e, `{"patient_id":"p1","trigger_source":"FALL_DETECTION"}`, "b")
	if err := h.Trigger(c); err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("second status = %d, want 409", rec.Code)
	}
}

func TestHandler_Trigger_MissingFields(t *testing.T) {
	h, e := newTestHandler(t)

	c, _ := postJSON(e, `{"trigger_source":"MANUAL_SOS"}`, "")
	err := h.Trigger(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("missing patient err = %v, want 400", err)
	}

	c, _ = postJSON(e, `{"patient_id":"p1"}`, "")
	err = h.Trigger(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("missing source err = %v, want 400", err)
	}
}

func TestHandler_EscalateThenResolve(t *testing.T) {
	h, e := newTestHandler(t)

	c, _ := postJSON(e, `{"patient_id":"p1","trigger_source":"MANUAL_SOS"}`, "")
	if err := h.Trigger(c); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	c, rec := postJSON(e, `{"patient_id":"p1","location":{"lat":12.9716,"lon":77.5946}}`, "")
	if err := h.Escalate(c); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("escalate status = %d, want 200", rec.Code)
	}
	var event Event
	if err := json.Unmarshal(rec.Body.Bytes(), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Status != StatusEscalated || len(event.ActionsTaken) != 4 {
		t.Errorf("event = %s with %d actions, want ESCALATED with 4", event.Status, len(event.ActionsTaken))
	}

	c, rec = postJSON(e, `{"patient_id":"p1","actor":"caretaker-1"}`, "")
	if err := h.Resolve(c); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", rec.Code)
	}
}

func TestHandler_TransitionWithoutEmergencyReturns404(t *testing.T) {
	h, e := newTestHandler(t)

	for name, fn := range map[string]echo.HandlerFunc{
		"escalate": h.Escalate,
		"cancel":   h.Cancel,
		"resolve":  h.Resolve,
		"override": h.Override,
	} {
		c, _ := postJSON(e, `{"patient_id":"nobody"}`, "")
		err := fn(c)
		if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
			t.Errorf("%s err = %v, want 404", name, err)
		}
	}
}

func TestHandler_Status(t *testing.T) {
	h, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patientID")
	c.SetParamValues("p1")
	if err := h.Status(c); err != nil {
		t.Fatalf("status: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["active"] != false {
		t.Errorf("active = %v, want false with no emergency", out["active"])
	}

	tc, _ := postJSON(e, `{"patient_id":"p1","trigger_source":"MANUAL_SOS"}`, "")
	if err := h.Trigger(tc); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("patientID")
	c.SetParamValues("p1")
	if err := h.Status(c); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["active"] != true {
		t.Errorf("active = %v, want true after trigger", out["active"])
	}
}

func TestHandler_AuditLog(t *testing.T) {
	h, e := newTestHandler(t)

	tc, _ := postJSON(e, `{"patient_id":"p1","trigger_source":"MANUAL_SOS"}`, "")
	if err := h.Trigger(tc); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	cc, _ := postJSON(e, `{"patient_id":"p1","actor":"p1"}`, "")
	if err := h.Cancel(cc); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	auditPage := func(query string) (entries []map[string]interface{}, total int, hasMore bool) {
		t.Helper()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+query, nil), rec)
		c.SetParamNames("patientID")
		c.SetParamValues("p1")
		if err := h.AuditLog(c); err != nil {
			t.Fatalf("audit log: %v", err)
		}
		var out struct {
			Data    []map[string]interface{} `json:"data"`
			Total   int                      `json:"total"`
			HasMore bool                     `json:"has_more"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out.Data, out.Total, out.HasMore
	}

	entries, total, hasMore := auditPage("")
	if total != 2 || len(entries) != 2 {
		t.Errorf("total = %d, entries = %d, want 2 and 2", total, len(entries))
	}
	if hasMore {
		t.Error("has_more = true, want false with the whole ledger on one page")
	}

	page, _, hasMore := auditPage("?limit=1")
	if len(page) != 1 || page[0]["event_type"] != "EMERGENCY_CANCELLED" {
		t.Errorf("page = %v, want the most recent entry only", page)
	}
	if !hasMore {
		t.Error("has_more = false, want true with an older page remaining")
	}

	page, _, hasMore = auditPage("?limit=1&offset=1")
	if len(page) != 1 || page[0]["event_type"] != "EMERGENCY_TRIGGERED" {
		t.Errorf("page = %v, want the older entry", page)
	}
	if hasMore {
		t.Error("has_more = true, want false on the oldest page")
	}
}

func TestHandler_VoiceScript(t *testing.T) {
	h, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("patientID")
	c.SetParamValues("p1")
	err := h.VoiceScript(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 with no emergency", err)
	}

	tc, _ := postJSON(e, `{"patient_id":"p1","patient_name":"Asha","trigger_source":"MANUAL_SOS"}`, "")
	if err := h.Trigger(tc); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("patientID")
	c.SetParamValues("p1")
	if err := h.VoiceScript(c); err != nil {
		t.Fatalf("voice script: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out["script"], "Asha") {
		t.Errorf("script = %q, want the patient named", out["script"])
	}
}
