package realtime

import "fmt"

// Transport is the minimal pub/sub surface the notifier needs. Anything
// that can subscribe a connection to a named channel and emit a typed
// payload to that channel can carry queue updates.
type Transport interface {
	JoinChannel(connectionID, channel string) error
	Emit(channel, event string, payload map[string]any) error
}

// Event names pushed over the wire.
const (
	EventPositionUpdate = "queue:position-update"
	EventTrustUpdate    = "queue:trust-update"
	EventAdvance        = "queue:advance"
	EventSizeUpdate     = "queue:size-update"
)

// SessionChannel is the private channel for targeted pushes to one session.
func SessionChannel(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// EventChannel is the shared channel for broadcasts to everyone waiting
// on an event.
func EventChannel(eventID string) string {
	return fmt.Sprintf("event:%s", eventID)
}
