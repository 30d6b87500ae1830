package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/TheeGreenGenie/ticket-leader/models"
	"github.com/TheeGreenGenie/ticket-leader/store"
	"github.com/TheeGreenGenie/ticket-leader/utils"
)

// Notifier pushes queue state to connected clients. Every emit goes
// through a circuit breaker so a failing transport degrades to dropped
// pushes instead of blocking queue mutations; the 30 second sweep
// re-delivers positions that were missed.
type Notifier struct {
	transport Transport
	sessions  store.Sessions
	breaker   *utils.CircuitBreaker
	monitor   PushMonitor
}

// PushMonitor counts delivered pushes. Nil disables counting.
type PushMonitor interface {
	TrackPush(event string)
}

func NewNotifier(transport Transport, sessions store.Sessions) *Notifier {
	return &Notifier{
		transport: transport,
		sessions:  sessions,
		breaker:   utils.NewCircuitBreaker("realtime-emit"),
	}
}

func (n *Notifier) SetMonitor(monitor PushMonitor) {
	n.monitor = monitor
}

// Connect joins a client connection to its session-private channel and to
// the shared channel of the session's event.
func (n *Notifier) Connect(ctx context.Context, connectionID, sessionID string) error {
	session, err := n.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := n.transport.JoinChannel(connectionID, SessionChannel(sessionID)); err != nil {
		return err
	}
	return n.transport.JoinChannel(connectionID, EventChannel(session.EventID))
}

// Heartbeat bumps the session's last activity. It never advances the
// queue; silence just makes the session eligible for the expiry sweep.
func (n *Notifier) Heartbeat(ctx context.Context, sessionID string) {
	if err := n.sessions.TouchSession(ctx, sessionID, time.Now()); err != nil {
		slog.Warn("heartbeat touch failed", "session_id", sessionID, "error", err)
	}
}

func (n *Notifier) PositionUpdate(sessionID string, position int, estimatedWait string) {
	n.emit(SessionChannel(sessionID), EventPositionUpdate, map[string]any{
		"position":      position,
		"estimatedWait": estimatedWait,
	})
}

func (n *Notifier) TrustUpdate(sessionID string, trustScore int, trustLevel models.TrustLevel) {
	n.emit(SessionChannel(sessionID), EventTrustUpdate, map[string]any{
		"trustScore": trustScore,
		"trustLevel": string(trustLevel),
	})
}

func (n *Notifier) Advance(sessionID string) {
	n.emit(SessionChannel(sessionID), EventAdvance, map[string]any{
		"message": "You can now purchase tickets!",
	})
}

func (n *Notifier) QueueSize(eventID string, queueSize int) {
	n.emit(EventChannel(eventID), EventSizeUpdate, map[string]any{
		"queueSize": queueSize,
	})
}

func (n *Notifier) emit(channel, event string, payload map[string]any) {
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	err := n.breaker.Do(func() error {
		return n.transport.Emit(channel, event, payload)
	})
	if err != nil {
		slog.Warn("realtime push dropped", "channel", channel, "event", event, "error", err)
		return
	}
	if n.monitor != nil {
		n.monitor.TrackPush(event)
	}
}
