package emergency

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/connectcare/connectcare/internal/platform/auth"
	"github.com/connectcare/connectcare/internal/platform/notification"
	"github.com/connectcare/connectcare/internal/platform/websocket"
	"github.com/connectcare/connectcare/pkg/pagination"
)

type Handler struct {
	svc *Service
	pub websocket.Publisher
}

// NewHandler wires the emergency routes. pub may be nil when no
// real-time stream is configured.
func NewHandler(svc *Service, pub websocket.Publisher) *Handler {
	return &Handler{svc: svc, pub: pub}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/emergencies/trigger", h.Trigger)
	api.POST("/emergencies/escalate", h.Escalate)
	api.POST("/emergencies/cancel", h.Cancel)
	api.POST("/emergencies/resolve", h.Resolve)
	api.POST("/emergencies/override", h.Override, auth.RequireRole(auth.RoleCaretaker, auth.RoleAdmin))

	api.GET("/emergencies/:patientID", h.Status)
	api.GET("/emergencies/:patientID/audit", h.AuditLog)
	api.GET("/emergencies/:patientID/voice-script", h.VoiceScript)
}

func (h *Handler) broadcast(c echo.Context, eventType string, event *Event) {
	if h.pub == nil || event == nil {
		return
	}
	ev := websocket.NewEvent(eventType, websocket.EmergencyTopic(event.PatientID), event.PatientID, event)
	_ = h.pub.Publish(c.Request().Context(), ev)
}

func (h *Handler) Trigger(c echo.Context) error {
	var in TriggerInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	if in.Source == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "trigger_source is required")
	}
	if key := c.Request().Header.Get("Idempotency-Key"); key != "" {
		in.IdempotencyKey = key
	}

	result, err := h.svc.Trigger(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch {
	case result.Duplicate:
		return c.JSON(http.StatusOK, result)
	case result.AlreadyActive:
		return c.JSON(http.StatusConflict, result)
	}
	h.broadcast(c, "emergency.triggered", result.Event)
	return c.JSON(http.StatusCreated, result)
}

type transitionRequest struct {
	PatientID   string                 `json:"patient_id"`
	Actor       string                 `json:"actor"`
	CaretakerID string                 `json:"caretaker_id"`
	Location    *notification.Location `json:"location"`
}

func bindTransition(c echo.Context) (*transitionRequest, error) {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	return &req, nil
}

func transitionError(err error) error {
	if errors.Is(err, ErrNoActiveEmergency) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) Escalate(c echo.Context) error {
	req, err := bindTransition(c)
	if err != nil {
		return err
	}
	event, err := h.svc.Escalate(c.Request().Context(), req.PatientID, req.Location)
	if err != nil {
		return transitionError(err)
	}
	if event.Status == StatusEscalated {
		h.broadcast(c, "emergency.escalated", event)
	}
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) Cancel(c echo.Context) error {
	req, err := bindTransition(c)
	if err != nil {
		return err
	}
	actor := req.Actor
	if actor == "" {
		actor = auth.UserIDFromContext(c.Request().Context())
	}
	event, err := h.svc.Cancel(c.Request().Context(), req.PatientID, actor)
	if err != nil {
		return transitionError(err)
	}
	h.broadcast(c, "emergency.cancelled", event)
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) Resolve(c echo.Context) error {
	req, err := bindTransition(c)
	if err != nil {
		return err
	}
	actor := req.Actor
	if actor == "" {
		actor = auth.UserIDFromContext(c.Request().Context())
	}
	event, err := h.svc.Resolve(c.Request().Context(), req.PatientID, actor)
	if err != nil {
		return transitionError(err)
	}
	h.broadcast(c, "emergency.resolved", event)
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) Override(c echo.Context) error {
	req, err := bindTransition(c)
	if err != nil {
		return err
	}
	caretakerID := req.CaretakerID
	if caretakerID == "" {
		caretakerID = auth.UserIDFromContext(c.Request().Context())
	}
	event, err := h.svc.Override(c.Request().Context(), req.PatientID, caretakerID)
	if err != nil {
		return transitionError(err)
	}
	h.broadcast(c, "emergency.override", event)
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) Status(c echo.Context) error {
	patientID := c.Param("patientID")
	event, active, err := h.svc.Active(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if event == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"patient_id": patientID, "active": false})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"active":     active,
		"event":      event,
	})
}

// AuditLog pages backward through the patient's ledger: offset 0 is the
// most recent page, each page oldest-first. One extra entry is fetched
// so has_more reflects whether older pages remain.
func (h *Handler) AuditLog(c echo.Context) error {
	patientID := c.Param("patientID")
	pg := pagination.FromContext(c)
	window, err := h.svc.AuditLog(c.Request().Context(), patientID, pg.Offset+pg.Limit+1)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	total := len(window)
	end := total - pg.Offset
	if end < 0 {
		end = 0
	}
	start := end - pg.Limit
	if start < 0 {
		start = 0
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(window[start:end], total, pg.Limit, pg.Offset))
}

func (h *Handler) VoiceScript(c echo.Context) error {
	patientID := c.Param("patientID")
	event, _, err := h.svc.Active(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if event == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no emergency on record for patient")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"event_id": event.EventID,
		"script":   VoiceScript(event),
	})
}
