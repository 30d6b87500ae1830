package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheeGreenGenie/ticket-leader/internal/status"
	"github.com/TheeGreenGenie/ticket-leader/models"
)

func TestMemorySessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	_, err := st.GetSession(ctx, "session_missing")
	assert.ErrorIs(t, err, status.ErrSessionNotFound)

	session := &models.QueueSession{
		SessionID:       "session_a",
		EventID:         "event1",
		UserID:          "user1",
		CurrentPosition: 1,
		TrustScore:      50,
		Status:          models.StatusWaiting,
	}
	require.NoError(t, st.PutSession(ctx, session))

	got, err := st.GetSession(ctx, "session_a")
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, got.SessionID)

	// the store hands back copies, not aliases
	got.TrustScore = 99
	again, err := st.GetSession(ctx, "session_a")
	require.NoError(t, err)
	assert.Equal(t, 50, again.TrustScore)
}

func TestMemoryCommitQueueState(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	event := &models.Event{ID: "event1", QueueCapacity: 10, CurrentQueueSize: 2, IsActive: true}
	a := &models.QueueSession{SessionID: "session_a", EventID: "event1", CurrentPosition: 1, Status: models.StatusWaiting}
	b := &models.QueueSession{SessionID: "session_b", EventID: "event1", CurrentPosition: 2, Status: models.StatusWaiting}

	require.NoError(t, st.CommitQueueState(ctx, event, a, b))

	got, err := st.FindEventByID(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentQueueSize)

	waiting, err := st.ListWaiting(ctx, "event1")
	require.NoError(t, err)
	assert.Len(t, waiting, 2)
}

func TestMemoryFindWaitingByUser(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	found, err := st.FindWaitingByUser(ctx, "event1", "user1")
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, st.PutSession(ctx, &models.QueueSession{
		SessionID: "session_a", EventID: "event1", UserID: "user1", Status: models.StatusWaiting,
	}))

	found, err = st.FindWaitingByUser(ctx, "event1", "user1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "session_a", found.SessionID)

	// non-waiting sessions are invisible to the idempotency lookup
	require.NoError(t, st.PutSession(ctx, &models.QueueSession{
		SessionID: "session_a", EventID: "event1", UserID: "user1", Status: models.StatusActive,
	}))
	found, err = st.FindWaitingByUser(ctx, "event1", "user1")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMemoryBehaviorWindowTrim(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	var events []*models.BehavioralEvent
	for i := 0; i < BehaviorWindow+25; i++ {
		events = append(events, &models.BehavioralEvent{
			ID:        fmt.Sprintf("b%d", i),
			SessionID: "session_a",
			EventType: models.BehaviorMouseMove,
		})
	}
	require.NoError(t, st.AppendBehavioralEvents(ctx, events))

	stream, err := st.BehavioralEventsBySession(ctx, "session_a", 0)
	require.NoError(t, err)
	require.Len(t, stream, BehaviorWindow)
	// oldest entries fell off the front
	assert.Equal(t, "b25", stream[0].ID)
}

func TestMemoryGameResultsLimit(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	for i := 0; i < 60; i++ {
		require.NoError(t, st.AppendGameResult(ctx, &models.GameResult{
			ID:        fmt.Sprintf("g%d", i),
			SessionID: "session_a",
		}))
	}

	results, err := st.GameResultsBySession(ctx, "session_a", 50)
	require.NoError(t, err)
	require.Len(t, results, 50)
	assert.Equal(t, "g10", results[0].ID)
}

func TestMemoryPurgeFinished(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, st.PutSession(ctx, &models.QueueSession{
		SessionID: "session_done", Status: models.StatusExpired, LastActivity: old,
	}))
	require.NoError(t, st.PutSession(ctx, &models.QueueSession{
		SessionID: "session_fresh", Status: models.StatusExpired, LastActivity: time.Now(),
	}))
	require.NoError(t, st.PutSession(ctx, &models.QueueSession{
		SessionID: "session_live", Status: models.StatusWaiting, LastActivity: old,
	}))

	purged, err := st.PurgeFinished(ctx, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = st.GetSession(ctx, "session_done")
	assert.ErrorIs(t, err, status.ErrSessionNotFound)
	_, err = st.GetSession(ctx, "session_fresh")
	assert.NoError(t, err)
	// waiting sessions are never purged, only expired by the sweep
	_, err = st.GetSession(ctx, "session_live")
	assert.NoError(t, err)
}

func TestMemoryFindRandomQuestionExclusion(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()

	require.NoError(t, st.SaveQuestion(ctx, &models.ChallengeQuestion{ID: "q1", ArtistID: "artist1"}))
	require.NoError(t, st.SaveQuestion(ctx, &models.ChallengeQuestion{ID: "q2", ArtistID: "artist1"}))
	require.NoError(t, st.SaveQuestion(ctx, &models.ChallengeQuestion{ID: "q3", ArtistID: "artist2"}))

	for i := 0; i < 10; i++ {
		question, err := st.FindRandomQuestion(ctx, "artist1", []string{"q1"})
		require.NoError(t, err)
		assert.Equal(t, "q2", question.ID)
	}

	// excluding the whole pool surfaces the miss instead of silently
	// handing back an excluded question
	_, err := st.FindRandomQuestion(ctx, "artist1", []string{"q1", "q2"})
	assert.ErrorIs(t, err, status.ErrQuestionNotFound)

	_, err = st.FindRandomQuestion(ctx, "artist_unknown", nil)
	assert.ErrorIs(t, err, status.ErrQuestionNotFound)
}
