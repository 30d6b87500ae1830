package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheeGreenGenie/ticket-leader/internal/status"
	"github.com/TheeGreenGenie/ticket-leader/models"
	"github.com/TheeGreenGenie/ticket-leader/store"
)

func newTestAdmission(t *testing.T) (*AdmissionService, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.SaveEvent(ctx, &models.Event{
		ID:            "event1",
		ArtistID:      "artist1",
		QueueCapacity: 100,
		IsActive:      true,
	}))
	for _, q := range []*models.ChallengeQuestion{
		{ID: "q1", ArtistID: "artist1", CorrectAnswer: 0, Difficulty: models.DifficultyEasy},
		{ID: "q2", ArtistID: "artist1", CorrectAnswer: 1, Difficulty: models.DifficultyMedium},
		{ID: "q3", ArtistID: "artist1", CorrectAnswer: 2, Difficulty: models.DifficultyHard},
	} {
		require.NoError(t, st.SaveQuestion(ctx, q))
	}

	return NewAdmissionService(st, 15*time.Minute, 3), st
}

func TestIssueChallengeNeverRepeatsConsecutively(t *testing.T) {
	ctx := context.Background()
	admission, _ := newTestAdmission(t)

	previous := ""
	for i := 0; i < 20; i++ {
		question, err := admission.IssueChallenge(ctx, "event1", "1.1.1.1")
		require.NoError(t, err)
		if previous != "" {
			assert.NotEqual(t, previous, question.ID)
		}
		previous = question.ID
	}
}

func TestTryAdmitRequiresChallenge(t *testing.T) {
	ctx := context.Background()
	admission, _ := newTestAdmission(t)

	decision, err := admission.TryAdmit(ctx, "event1", "", "", "1.1.1.1")
	assert.ErrorIs(t, err, status.ErrChallengeRequired)
	require.NotNil(t, decision)
	assert.NotNil(t, decision.FreshChallenge)

	decision, err = admission.TryAdmit(ctx, "event1", "q1", "", "1.1.1.1")
	assert.ErrorIs(t, err, status.ErrChallengeRequired)
	assert.NotNil(t, decision.FreshChallenge)
}

func TestTryAdmitChallengeFailed(t *testing.T) {
	ctx := context.Background()
	admission, _ := newTestAdmission(t)

	decision, err := admission.TryAdmit(ctx, "event1", "q1", "3", "1.1.1.1")
	assert.ErrorIs(t, err, status.ErrChallengeFailed)
	require.NotNil(t, decision)
	require.NotNil(t, decision.FreshChallenge)
	// the reissued question is never the one just failed
	assert.NotEqual(t, "q1", decision.FreshChallenge.ID)

	// a non-numeric answer fails the same way
	decision, err = admission.TryAdmit(ctx, "event1", "q1", "zero", "1.1.1.1")
	assert.ErrorIs(t, err, status.ErrChallengeFailed)
	assert.NotNil(t, decision.FreshChallenge)
}

func TestTryAdmitCorrectAnswer(t *testing.T) {
	ctx := context.Background()
	admission, _ := newTestAdmission(t)

	decision, err := admission.TryAdmit(ctx, "event1", "q2", "1", "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, decision.Flagged)
	assert.Nil(t, decision.FreshChallenge)
}

func TestTryAdmitFlagsRepeatedIP(t *testing.T) {
	ctx := context.Background()
	admission, st := newTestAdmission(t)

	// three live sessions already waiting from the same address
	now := time.Now()
	for i, sessionID := range []string{"session_a", "session_b", "session_c"} {
		require.NoError(t, st.PutSession(ctx, &models.QueueSession{
			SessionID:       sessionID,
			EventID:         "event1",
			JoinedAt:        now.Add(-time.Duration(i) * time.Minute),
			CurrentPosition: i + 1,
			TrustScore:      50,
			Status:          models.StatusWaiting,
			IPAddress:       "9.9.9.9",
		}))
	}

	decision, err := admission.TryAdmit(ctx, "event1", "q2", "1", "9.9.9.9")
	require.NoError(t, err)
	assert.True(t, decision.Flagged)

	// a different address is unaffected
	decision, err = admission.TryAdmit(ctx, "event1", "q2", "1", "8.8.8.8")
	require.NoError(t, err)
	assert.False(t, decision.Flagged)
}

func TestTryAdmitIgnoresOldSessionsForIPSignal(t *testing.T) {
	ctx := context.Background()
	admission, st := newTestAdmission(t)

	// sessions joined outside the trailing window do not count
	old := time.Now().Add(-time.Hour)
	for i, sessionID := range []string{"session_a", "session_b", "session_c"} {
		require.NoError(t, st.PutSession(ctx, &models.QueueSession{
			SessionID:       sessionID,
			EventID:         "event1",
			JoinedAt:        old,
			CurrentPosition: i + 1,
			Status:          models.StatusWaiting,
			IPAddress:       "9.9.9.9",
		}))
	}

	decision, err := admission.TryAdmit(ctx, "event1", "q2", "1", "9.9.9.9")
	require.NoError(t, err)
	assert.False(t, decision.Flagged)
}

func TestRepeatedFailureHook(t *testing.T) {
	ctx := context.Background()
	admission, _ := newTestAdmission(t)

	var fired []RepeatedFailureContext
	admission.OnRepeatedFailure(func(fc RepeatedFailureContext) {
		fired = append(fired, fc)
	})

	for i := 0; i < 3; i++ {
		_, err := admission.TryAdmit(ctx, "event1", "q1", "3", "1.1.1.1")
		assert.ErrorIs(t, err, status.ErrChallengeFailed)
	}

	require.Len(t, fired, 1)
	assert.Equal(t, "event1", fired[0].EventID)
	assert.Equal(t, "1.1.1.1", fired[0].IP)
	assert.Equal(t, 3, fired[0].Failures)

	// a pass resets the failure counter
	_, err := admission.TryAdmit(ctx, "event1", "q2", "1", "1.1.1.1")
	require.NoError(t, err)

	_, err = admission.TryAdmit(ctx, "event1", "q1", "3", "1.1.1.1")
	assert.ErrorIs(t, err, status.ErrChallengeFailed)
	assert.Len(t, fired, 1)
}

func TestChallengeSingleQuestionArtistReissues(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.SaveEvent(ctx, &models.Event{
		ID:            "event_solo",
		ArtistID:      "artist_solo",
		QueueCapacity: 100,
		IsActive:      true,
	}))
	require.NoError(t, st.SaveQuestion(ctx, &models.ChallengeQuestion{
		ID: "only", ArtistID: "artist_solo", CorrectAnswer: 0, Difficulty: models.DifficultyEasy,
	}))
	admission := NewAdmissionService(st, 15*time.Minute, 3)

	first, err := admission.IssueChallenge(ctx, "event_solo", "1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, "only", first.ID)

	// with one question the no-repeat preference cannot hold; the gate
	// reissues rather than locking the event behind a missing question
	second, err := admission.IssueChallenge(ctx, "event_solo", "1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, "only", second.ID)

	decision, err := admission.TryAdmit(ctx, "event_solo", "only", "3", "1.1.1.1")
	assert.ErrorIs(t, err, status.ErrChallengeFailed)
	require.NotNil(t, decision)
	require.NotNil(t, decision.FreshChallenge)
	assert.Equal(t, "only", decision.FreshChallenge.ID)
}
