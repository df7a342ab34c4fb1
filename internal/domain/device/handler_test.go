package device

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
	return NewHandler(svc), echo.New()
}

func registerDevice(t *testing.T, h *Handler, e *echo.Echo, patientID, deviceType string) *Device {
	t.Helper()
	body := `{"patient_id":"` + patientID + `","device_type":"` + deviceType + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", rec.Code)
	}
	var out struct {
		Device Device `json:"device"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &out.Device
}

func TestHandler_Register(t *testing.T) {
	h, e := newTestHandler(t)
	d := registerDevice(t, h, e, "p1", "oximeter")
	if d.APIKey == "" {
		t.Error("registration response must carry the api key")
	}
	if d.DeviceType != "oximeter" {
		t.Errorf("device_type = %q, want oximeter", d.DeviceType)
	}
}

func TestHandler_Register_UnknownType(t *testing.T) {
	h, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"patient_id":"p1","device_type":"toaster"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	err := h.Register(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestHandler_List(t *testing.T) {
	h, e := newTestHandler(t)
	registerDevice(t, h, e, "p1", "smartwatch")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("patientID")
	c.SetParamValues("p1")
	if err := h.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var out struct {
		Devices []Device `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(out.Devices))
	}
	if out.Devices[0].APIKey != "" {
		t.Error("listing must not expose api keys")
	}
}

func TestHandler_Ingest(t *testing.T) {
	h, e := newTestHandler(t)
	d := registerDevice(t, h, e, "p1", "oximeter")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"spo2":97,"heart_rate":74,"battery_pct":80}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(DeviceKeyHeader, d.APIKey)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Ingest(c); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out struct {
		DeviceID string `json:"device_id"`
		Source   string `json:"source"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.DeviceID != d.ID || out.Source != "iot_oximeter" {
		t.Errorf("response = %+v, want the device echoed", out)
	}
}

func TestHandler_Ingest_MissingKey(t *testing.T) {
	h, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"spo2":97}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	err := h.Ingest(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
}

func TestHandler_Ping(t *testing.T) {
	h, e := newTestHandler(t)
	d := registerDevice(t, h, e, "p1", "bp_monitor")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"battery_pct":55}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(DeviceKeyHeader, d.APIKey)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Ping(c); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandler_Deregister(t *testing.T) {
	h, e := newTestHandler(t)
	d := registerDevice(t, h, e, "p1", "smartwatch")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("deviceID")
	c.SetParamValues(d.ID)
	if err := h.Deregister(c); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"spo2":97}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(DeviceKeyHeader, d.APIKey)
	c = e.NewContext(req, httptest.NewRecorder())
	err := h.Ingest(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 after deregistration", err)
	}
}
