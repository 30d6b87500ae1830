package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"github.com/TheeGreenGenie/ticket-leader/internal/status"
	"github.com/TheeGreenGenie/ticket-leader/models"
	"github.com/TheeGreenGenie/ticket-leader/realtime"
	"github.com/TheeGreenGenie/ticket-leader/services"
	"github.com/TheeGreenGenie/ticket-leader/utils"
)

type QueueHandler struct {
	queue     *services.QueueService
	admission *services.AdmissionService
	hub       *realtime.Hub
	notifier  *realtime.Notifier
}

func NewQueueHandler(queue *services.QueueService, admission *services.AdmissionService, hub *realtime.Hub, notifier *realtime.Notifier) *QueueHandler {
	return &QueueHandler{
		queue:     queue,
		admission: admission,
		hub:       hub,
		notifier:  notifier,
	}
}

// mapDomainError turns the typed domain errors into their HTTP shapes.
// Infrastructure failures fall through as a generic 400.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, status.ErrEventNotFound):
		return apis.NewNotFoundError("Event not found", err)
	case errors.Is(err, status.ErrSessionNotFound):
		return apis.NewNotFoundError("Session not found", err)
	case errors.Is(err, status.ErrQuestionNotFound):
		return apis.NewNotFoundError("Question not found", err)
	case errors.Is(err, status.ErrEventInactive):
		return apis.NewBadRequestError("Event is not active", err)
	case errors.Is(err, status.ErrQueueAtCapacity):
		return apis.NewBadRequestError("Queue is full", err)
	case errors.Is(err, status.ErrInvalidAnswer):
		return apis.NewBadRequestError("Invalid submission", err)
	default:
		return apis.NewBadRequestError("Request failed", err)
	}
}

// GetChallenge - Issue an admission challenge question
func (h *QueueHandler) GetChallenge(e *core.RequestEvent) error {
	eventID := e.Request.URL.Query().Get("event_id")
	if eventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	question, err := h.admission.IssueChallenge(e.Request.Context(), eventID, e.RealIP())
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"challenge": question})
}

// JoinQueue - Pass the admission gate and enter the waiting queue
func (h *QueueHandler) JoinQueue(e *core.RequestEvent) error {
	var req struct {
		EventID    string `json:"event_id"`
		UserID     string `json:"user_id"`
		QuestionID string `json:"question_id"`
		Answer     string `json:"answer"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	ctx := e.Request.Context()
	ip := e.RealIP()

	decision, err := h.admission.TryAdmit(ctx, req.EventID, req.QuestionID, req.Answer, ip)
	if err != nil {
		// a failed or missing challenge still returns a fresh question so
		// the client retries without a second round trip
		switch {
		case errors.Is(err, status.ErrChallengeRequired):
			return e.JSON(http.StatusForbidden, map[string]any{
				"error":     "Challenge required",
				"challenge": decision.FreshChallenge,
			})
		case errors.Is(err, status.ErrChallengeFailed):
			return e.JSON(http.StatusForbidden, map[string]any{
				"error":     "Challenge failed",
				"challenge": decision.FreshChallenge,
			})
		default:
			return mapDomainError(err)
		}
	}

	result, err := h.queue.Join(ctx, req.EventID, req.UserID, ip, decision.Flagged)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, result)
}

// GetStatus - Current position, trust and event snapshot for a session
func (h *QueueHandler) GetStatus(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("sessionId")
	if !utils.IsValidSessionID(sessionID) {
		return apis.NewBadRequestError("Session ID required", nil)
	}

	result, err := h.queue.GetStatus(e.Request.Context(), sessionID)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, result)
}

// LeaveQueue - Abandon a waiting session
func (h *QueueHandler) LeaveQueue(e *core.RequestEvent) error {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if !utils.IsValidSessionID(req.SessionID) {
		return apis.NewBadRequestError("Session ID required", nil)
	}

	if err := h.queue.Leave(e.Request.Context(), req.SessionID); err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Successfully left queue"})
}

// SaveLocation - Attach passthrough location metadata to a session
func (h *QueueHandler) SaveLocation(e *core.RequestEvent) error {
	var req struct {
		SessionID string                 `json:"session_id"`
		Location  models.LocationContext `json:"location"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if !utils.IsValidSessionID(req.SessionID) {
		return apis.NewBadRequestError("Session ID required", nil)
	}

	if err := h.queue.SaveLocationContext(e.Request.Context(), req.SessionID, req.Location); err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Location saved"})
}

// ServeWS - Upgrade to a realtime connection for position/trust pushes
func (h *QueueHandler) ServeWS(e *core.RequestEvent) error {
	if h.hub == nil {
		return apis.NewBadRequestError("Realtime transport is not websocket-backed", nil)
	}

	sessionID := e.Request.URL.Query().Get("session_id")
	if !utils.IsValidSessionID(sessionID) {
		return apis.NewBadRequestError("Session ID required", nil)
	}

	if err := h.hub.Serve(e.Response, e.Request, sessionID, h.notifier); err != nil {
		slog.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return err
	}
	return nil
}
