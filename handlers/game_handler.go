package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"github.com/TheeGreenGenie/ticket-leader/models"
	"github.com/TheeGreenGenie/ticket-leader/services"
	"github.com/TheeGreenGenie/ticket-leader/store"
	"github.com/TheeGreenGenie/ticket-leader/utils"
)

const gameHistoryLimit = 50

type GameHandler struct {
	store store.Store
	queue *services.QueueService
	trust *services.TrustService
}

func NewGameHandler(st store.Store, queue *services.QueueService, trust *services.TrustService) *GameHandler {
	return &GameHandler{store: st, queue: queue, trust: trust}
}

// SubmitAnswer - Score one trivia or poll answer
func (h *GameHandler) SubmitAnswer(e *core.RequestEvent) error {
	var req services.GameSubmission
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	outcome, err := h.queue.SubmitGameAnswer(e.Request.Context(), req)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, outcome)
}

// GetHistory - Recent game results plus an aggregate summary
func (h *GameHandler) GetHistory(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("sessionId")
	if !utils.IsValidSessionID(sessionID) {
		return apis.NewBadRequestError("Session ID required", nil)
	}
	ctx := e.Request.Context()

	session, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return mapDomainError(err)
	}

	results, err := h.store.GameResultsBySession(ctx, sessionID, gameHistoryLimit)
	if err != nil {
		return mapDomainError(err)
	}

	triviaCorrect, triviaTotal, pollsCompleted := 0, 0, 0
	for _, result := range results {
		switch result.GameType {
		case models.GameTrivia:
			triviaTotal++
			if result.IsCorrect != nil && *result.IsCorrect {
				triviaCorrect++
			}
		case models.GamePoll:
			pollsCompleted++
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"games": results,
		"summary": map[string]any{
			"total_games":     len(results),
			"trivia_correct":  triviaCorrect,
			"trivia_total":    triviaTotal,
			"polls_completed": pollsCompleted,
			"trust_score":     session.TrustScore,
			"trust_level":     session.TrustLevel,
		},
	})
}

// RecordBehavior - Ingest a batch of client interaction events
func (h *GameHandler) RecordBehavior(e *core.RequestEvent) error {
	var req struct {
		SessionID string                     `json:"session_id"`
		Events    []services.BehavioralInput `json:"events"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if !utils.IsValidSessionID(req.SessionID) {
		return apis.NewBadRequestError("Session ID required", nil)
	}

	recorded, err := h.queue.RecordBehavior(e.Request.Context(), req.SessionID, req.Events)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"recorded": recorded})
}

// GetTrustBreakdown - Rebuild the trust score from first principles
func (h *GameHandler) GetTrustBreakdown(e *core.RequestEvent) error {
	sessionID := e.Request.PathValue("sessionId")
	if !utils.IsValidSessionID(sessionID) {
		return apis.NewBadRequestError("Session ID required", nil)
	}

	breakdown, err := h.trust.Recalculate(e.Request.Context(), sessionID)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, breakdown)
}
