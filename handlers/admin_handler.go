package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"

	"github.com/TheeGreenGenie/ticket-leader/services"
	"github.com/TheeGreenGenie/ticket-leader/store"
	"github.com/TheeGreenGenie/ticket-leader/utils"
)

type AdminHandler struct {
	store        store.Store
	queue        *services.QueueService
	trust        *services.TrustService
	adminKeyHash string
	advanceBatch int
}

func NewAdminHandler(st store.Store, queue *services.QueueService, trust *services.TrustService, adminKeyHash string, advanceBatch int) *AdminHandler {
	return &AdminHandler{
		store:        st,
		queue:        queue,
		trust:        trust,
		adminKeyHash: adminKeyHash,
		advanceBatch: advanceBatch,
	}
}

// advanceCount falls back to the configured batch size when the request
// does not name one.
func (h *AdminHandler) advanceCount(requested int) int {
	if requested >= 1 {
		return requested
	}
	if h.advanceBatch >= 1 {
		return h.advanceBatch
	}
	return 1
}

func (h *AdminHandler) authorize(e *core.RequestEvent) error {
	if h.adminKeyHash == "" {
		return apis.NewUnauthorizedError("Admin access is not configured", nil)
	}
	key := e.Request.Header.Get("X-Admin-Key")
	if key == "" {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.adminKeyHash), []byte(key)); err != nil {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}
	return nil
}

// ReorderQueue - Force a trust-based re-rank for one event
func (h *AdminHandler) ReorderQueue(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	var req struct {
		EventID string `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	count, err := h.queue.ReorderByTrust(e.Request.Context(), req.EventID)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"reordered": count})
}

// AdvanceQueue - Move the front of the queue to active
func (h *AdminHandler) AdvanceQueue(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	var req struct {
		EventID string `json:"event_id"`
		Count   int    `json:"count"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	advanced, err := h.queue.Advance(e.Request.Context(), req.EventID, h.advanceCount(req.Count))
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"advanced":    len(advanced),
		"session_ids": advanced,
	})
}

// DetectSuspicious - Run the bot-pattern scan against one session
func (h *AdminHandler) DetectSuspicious(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	sessionID := e.Request.PathValue("sessionId")
	if !utils.IsValidSessionID(sessionID) {
		return apis.NewBadRequestError("Session ID required", nil)
	}

	report, err := h.trust.DetectSuspicious(e.Request.Context(), sessionID)
	if err != nil {
		return mapDomainError(err)
	}

	return e.JSON(http.StatusOK, report)
}

// GetDashboard - Per-event queue totals and trust distribution
func (h *AdminHandler) GetDashboard(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}
	ctx := e.Request.Context()

	waiting, err := h.store.ListAllWaiting(ctx)
	if err != nil {
		return mapDomainError(err)
	}

	type eventStats struct {
		Waiting    int            `json:"waiting"`
		Flagged    int            `json:"flagged"`
		TrustTotal int            `json:"-"`
		ByLevel    map[string]int `json:"by_level"`
	}

	stats := make(map[string]*eventStats)
	for _, session := range waiting {
		entry, ok := stats[session.EventID]
		if !ok {
			entry = &eventStats{ByLevel: make(map[string]int)}
			stats[session.EventID] = entry
		}
		entry.Waiting++
		entry.TrustTotal += session.TrustScore
		entry.ByLevel[string(session.TrustLevel)]++
		if session.IsFlagged {
			entry.Flagged++
		}
	}

	dashboard := make([]map[string]any, 0, len(stats))
	for eventID, entry := range stats {
		avgTrust := 0
		if entry.Waiting > 0 {
			avgTrust = entry.TrustTotal / entry.Waiting
		}
		row := map[string]any{
			"event_id":  eventID,
			"waiting":   entry.Waiting,
			"flagged":   entry.Flagged,
			"avg_trust": avgTrust,
			"by_level":  entry.ByLevel,
		}
		if event, err := h.store.FindEventByID(ctx, eventID); err == nil {
			row["event_name"] = event.Name
			row["queue_capacity"] = event.QueueCapacity
		}
		dashboard = append(dashboard, row)
	}

	return e.JSON(http.StatusOK, map[string]any{"events": dashboard})
}
