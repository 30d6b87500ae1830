package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheeGreenGenie/ticket-leader/models"
	"github.com/TheeGreenGenie/ticket-leader/store"
)

type capturedEmit struct {
	channel string
	event   string
	payload map[string]any
}

type fakeTransport struct {
	mu      sync.Mutex
	joins   map[string][]string
	emits   []capturedEmit
	emitErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{joins: make(map[string][]string)}
}

func (f *fakeTransport) JoinChannel(connectionID, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins[connectionID] = append(f.joins[connectionID], channel)
	return nil
}

func (f *fakeTransport) Emit(channel, event string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emits = append(f.emits, capturedEmit{channel: channel, event: event, payload: payload})
	return nil
}

func TestConnectJoinsSessionAndEventChannels(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.PutSession(ctx, &models.QueueSession{
		SessionID: "session_abc",
		EventID:   "event1",
		Status:    models.StatusWaiting,
	}))

	transport := newFakeTransport()
	notifier := NewNotifier(transport, st)

	require.NoError(t, notifier.Connect(ctx, "conn1", "session_abc"))

	assert.Equal(t, []string{"session:session_abc", "event:event1"}, transport.joins["conn1"])
}

func TestConnectUnknownSession(t *testing.T) {
	transport := newFakeTransport()
	notifier := NewNotifier(transport, store.NewMemory())

	err := notifier.Connect(context.Background(), "conn1", "session_missing")
	assert.Error(t, err)
	assert.Empty(t, transport.joins["conn1"])
}

func TestPositionUpdateEmit(t *testing.T) {
	transport := newFakeTransport()
	notifier := NewNotifier(transport, store.NewMemory())

	notifier.PositionUpdate("session_abc", 4, "2 minutes")

	require.Len(t, transport.emits, 1)
	emit := transport.emits[0]
	assert.Equal(t, "session:session_abc", emit.channel)
	assert.Equal(t, EventPositionUpdate, emit.event)
	assert.Equal(t, 4, emit.payload["position"])
	assert.Equal(t, "2 minutes", emit.payload["estimatedWait"])
	assert.NotEmpty(t, emit.payload["timestamp"])
}

func TestTrustUpdateEmit(t *testing.T) {
	transport := newFakeTransport()
	notifier := NewNotifier(transport, store.NewMemory())

	notifier.TrustUpdate("session_abc", 72, models.TrustGold)

	require.Len(t, transport.emits, 1)
	emit := transport.emits[0]
	assert.Equal(t, EventTrustUpdate, emit.event)
	assert.Equal(t, 72, emit.payload["trustScore"])
	assert.Equal(t, "gold", emit.payload["trustLevel"])
}

func TestAdvanceAndQueueSizeEmit(t *testing.T) {
	transport := newFakeTransport()
	notifier := NewNotifier(transport, store.NewMemory())

	notifier.Advance("session_abc")
	notifier.QueueSize("event1", 12)

	require.Len(t, transport.emits, 2)
	assert.Equal(t, EventAdvance, transport.emits[0].event)
	assert.Equal(t, "session:session_abc", transport.emits[0].channel)
	assert.Equal(t, EventSizeUpdate, transport.emits[1].event)
	assert.Equal(t, "event:event1", transport.emits[1].channel)
	assert.Equal(t, 12, transport.emits[1].payload["queueSize"])
}

func TestEmitFailureIsDroppedNotPropagated(t *testing.T) {
	transport := newFakeTransport()
	transport.emitErr = errors.New("transport down")
	notifier := NewNotifier(transport, store.NewMemory())

	// a failing transport must never panic or block the caller
	notifier.PositionUpdate("session_abc", 1, "Less than 1 minute")
	notifier.QueueSize("event1", 3)

	assert.Empty(t, transport.emits)
}

func TestHeartbeatTouchesSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, st.PutSession(ctx, &models.QueueSession{
		SessionID:    "session_abc",
		EventID:      "event1",
		Status:       models.StatusWaiting,
		LastActivity: stale,
	}))

	notifier := NewNotifier(newFakeTransport(), st)
	notifier.Heartbeat(ctx, "session_abc")

	session, err := st.GetSession(ctx, "session_abc")
	require.NoError(t, err)
	assert.True(t, session.LastActivity.After(stale))
}
