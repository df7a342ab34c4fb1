package device

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/connectcare/connectcare/internal/domain/vitals"
)

// DeviceKeyHeader carries the per-device API key on ingest requests.
const DeviceKeyHeader = "X-Device-Key"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the device routes. The data and ping routes
// authenticate by device key, not by user token, so they belong on the
// unauthenticated group.
func (h *Handler) RegisterRoutes(api, open *echo.Group) {
	api.POST("/devices", h.Register)
	api.GET("/devices/:patientID", h.List)
	api.DELETE("/devices/:deviceID", h.Deregister)

	open.POST("/devices/data", h.Ingest)
	open.POST("/devices/ping", h.Ping)
}

type registerRequest struct {
	PatientID  string `json:"patient_id"`
	DeviceType string `json:"device_type"`
	DeviceName string `json:"device_name"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	if req.DeviceType == "" {
		req.DeviceType = "smartwatch"
	}

	d, err := h.svc.Register(c.Request().Context(), req.PatientID, req.DeviceType, req.DeviceName)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownDeviceType), errors.Is(err, ErrDeviceLimitReached):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"device":  d,
		"message": "Save the api_key now; it is not shown again.",
	})
}

func (h *Handler) List(c echo.Context) error {
	devices, err := h.svc.List(c.Request().Context(), c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"devices":      devices,
		"device_types": Types,
	})
}

func (h *Handler) Deregister(c echo.Context) error {
	deviceID := c.Param("deviceID")
	if err := h.svc.Deregister(c.Request().Context(), deviceID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "device " + deviceID + " deactivated"})
}

type ingestRequest struct {
	HeartRate       *float64 `json:"heart_rate"`
	SystolicBP      *float64 `json:"systolic_bp"`
	DiastolicBP     *float64 `json:"diastolic_bp"`
	SpO2            *float64 `json:"spo2"`
	TemperatureF    *float64 `json:"temperature_f"`
	RespiratoryRate *float64 `json:"respiratory_rate"`
	BatteryPct      *int     `json:"battery_pct"`
	Firmware        string   `json:"firmware"`
}

func (r ingestRequest) metrics() map[string]float64 {
	out := make(map[string]float64, 6)
	put := func(metric string, v *float64) {
		if v != nil {
			out[metric] = *v
		}
	}
	put(vitals.MetricHeartRate, r.HeartRate)
	put(vitals.MetricSystolicBP, r.SystolicBP)
	put(vitals.MetricDiastolicBP, r.DiastolicBP)
	put(vitals.MetricSpO2, r.SpO2)
	put(vitals.MetricTemperatureF, r.TemperatureF)
	put(vitals.MetricRespiratoryRate, r.RespiratoryRate)
	return out
}

func (h *Handler) Ingest(c echo.Context) error {
	apiKey := c.Request().Header.Get(DeviceKeyHeader)
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	hb := Heartbeat{BatteryPct: req.BatteryPct, Firmware: req.Firmware}
	result, d, err := h.svc.Ingest(c.Request().Context(), apiKey, req.metrics(), hb)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthorizedDevice):
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		case errors.Is(err, vitals.ErrNoMetrics):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"device_id": d.ID,
		"source":    "iot_" + d.DeviceType,
		"result":    result,
	})
}

func (h *Handler) Ping(c echo.Context) error {
	apiKey := c.Request().Header.Get(DeviceKeyHeader)
	var hb Heartbeat
	if err := c.Bind(&hb); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Ping(c.Request().Context(), apiKey, hb)
	if err != nil {
		if errors.Is(err, ErrUnauthorizedDevice) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"device_id": d.ID,
		"status":    "ok",
	})
}
