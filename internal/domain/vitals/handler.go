package vitals

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/connectcare/connectcare/internal/platform/auth"
	"github.com/connectcare/connectcare/internal/platform/websocket"
)

type Handler struct {
	svc *Service
	pub websocket.Publisher
}

// NewHandler wires the vitals routes. pub may be nil when no real-time
// stream is configured.
func NewHandler(svc *Service, pub websocket.Publisher) *Handler {
	return &Handler{svc: svc, pub: pub}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Caretakers read vitals; they never write them.
	api.POST("/vitals", h.Submit, auth.ForbidRole(auth.RoleCaretaker))
	api.GET("/vitals/:patientID/history", h.History)
	api.GET("/vitals/:patientID/analytics", h.Analytics)
}

type submitRequest struct {
	PatientID       string   `json:"patient_id"`
	Timestamp       string   `json:"timestamp"`
	HeartRate       *float64 `json:"heart_rate"`
	SystolicBP      *float64 `json:"systolic_bp"`
	DiastolicBP     *float64 `json:"diastolic_bp"`
	SpO2            *float64 `json:"spo2"`
	TemperatureF    *float64 `json:"temperature_f"`
	RespiratoryRate *float64 `json:"respiratory_rate"`
}

func (r submitRequest) metrics() map[string]float64 {
	out := make(map[string]float64, 6)
	put := func(metric string, v *float64) {
		if v != nil {
			out[metric] = *v
		}
	}
	put(MetricHeartRate, r.HeartRate)
	put(MetricSystolicBP, r.SystolicBP)
	put(MetricDiastolicBP, r.DiastolicBP)
	put(MetricSpO2, r.SpO2)
	put(MetricTemperatureF, r.TemperatureF)
	put(MetricRespiratoryRate, r.RespiratoryRate)
	return out
}

func (h *Handler) Submit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	patientID := req.PatientID
	if patientID == "" {
		patientID = auth.UserIDFromContext(c.Request().Context())
	}
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}

	var takenAt time.Time
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "timestamp must be RFC 3339")
		}
		takenAt = parsed.UTC()
	}

	result, err := h.svc.Submit(c.Request().Context(), patientID, takenAt, req.metrics())
	if err != nil {
		if errors.Is(err, ErrNoMetrics) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if h.pub != nil {
		ev := websocket.NewEvent("vitals.accepted", websocket.VitalsTopic(patientID), patientID, result)
		_ = h.pub.Publish(c.Request().Context(), ev)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *Handler) History(c echo.Context) error {
	patientID := c.Param("patientID")
	result, err := h.svc.History(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Analytics(c echo.Context) error {
	patientID := c.Param("patientID")
	period := c.QueryParam("period")
	result, err := h.svc.Analytics(c.Request().Context(), patientID, period)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
