package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheeGreenGenie/ticket-leader/internal/status"
	"github.com/TheeGreenGenie/ticket-leader/models"
	"github.com/TheeGreenGenie/ticket-leader/monitoring"
	"github.com/TheeGreenGenie/ticket-leader/store"
)

type fakeNotifier struct {
	mu          sync.Mutex
	positions   map[string][]int
	trustScores map[string][]int
	advanced    []string
	queueSizes  map[string][]int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		positions:   make(map[string][]int),
		trustScores: make(map[string][]int),
		queueSizes:  make(map[string][]int),
	}
}

func (f *fakeNotifier) PositionUpdate(sessionID string, position int, estimatedWait string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[sessionID] = append(f.positions[sessionID], position)
}

func (f *fakeNotifier) TrustUpdate(sessionID string, trustScore int, trustLevel models.TrustLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trustScores[sessionID] = append(f.trustScores[sessionID], trustScore)
}

func (f *fakeNotifier) Advance(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanced = append(f.advanced, sessionID)
}

func (f *fakeNotifier) QueueSize(eventID string, queueSize int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queueSizes[eventID] = append(f.queueSizes[eventID], queueSize)
}

func newTestQueue(t *testing.T, capacity int) (*QueueService, *store.Memory, *fakeNotifier) {
	t.Helper()
	st := store.NewMemory()
	notifier := newFakeNotifier()
	queue := NewQueueService(st, notifier, monitoring.NewMonitor(), NewEventLocks())

	require.NoError(t, st.SaveEvent(context.Background(), &models.Event{
		ID:            "event1",
		ArtistID:      "artist1",
		Name:          "Arena Night",
		QueueCapacity: capacity,
		IsActive:      true,
	}))
	return queue, st, notifier
}

// assertContiguous checks that waiting positions for the event form
// exactly 1..N with no gaps or duplicates.
func assertContiguous(t *testing.T, st *store.Memory, eventID string) {
	t.Helper()
	waiting, err := st.ListWaiting(context.Background(), eventID)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, session := range waiting {
		assert.GreaterOrEqual(t, session.CurrentPosition, 1)
		assert.LessOrEqual(t, session.CurrentPosition, len(waiting))
		assert.False(t, seen[session.CurrentPosition], "duplicate position %d", session.CurrentPosition)
		seen[session.CurrentPosition] = true
	}
}

func TestJoinAssignsTailPosition(t *testing.T) {
	ctx := context.Background()
	queue, st, notifier := newTestQueue(t, 100)

	first, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)
	second, err := queue.Join(ctx, "event1", "user2", "1.1.1.2", false)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, second.Position)
	assert.Equal(t, 50, first.TrustScore)
	assert.Equal(t, models.TrustSilver, first.TrustLevel)
	assert.False(t, first.IsFlagged)

	event, err := st.FindEventByID(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 2, event.CurrentQueueSize)
	assert.Equal(t, []int{1, 2}, notifier.queueSizes["event1"])
	assertContiguous(t, st, "event1")
}

func TestJoinIsIdempotentPerUser(t *testing.T) {
	ctx := context.Background()
	queue, st, _ := newTestQueue(t, 100)

	first, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)
	retry, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, retry.SessionID)
	assert.Equal(t, first.Position, retry.Position)

	event, err := st.FindEventByID(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.CurrentQueueSize)
}

func TestJoinRejectsWhenFull(t *testing.T) {
	ctx := context.Background()
	queue, _, _ := newTestQueue(t, 2)

	_, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)
	_, err = queue.Join(ctx, "event1", "user2", "1.1.1.2", false)
	require.NoError(t, err)

	_, err = queue.Join(ctx, "event1", "user3", "1.1.1.3", false)
	assert.ErrorIs(t, err, status.ErrQueueAtCapacity)
}

func TestJoinInactiveEvent(t *testing.T) {
	ctx := context.Background()
	queue, st, _ := newTestQueue(t, 100)
	require.NoError(t, st.SaveEvent(ctx, &models.Event{
		ID: "event2", QueueCapacity: 10, IsActive: false,
	}))

	_, err := queue.Join(ctx, "event2", "user1", "1.1.1.1", false)
	assert.ErrorIs(t, err, status.ErrEventInactive)

	_, err = queue.Join(ctx, "missing", "user1", "1.1.1.1", false)
	assert.ErrorIs(t, err, status.ErrEventNotFound)
}

func TestJoinFlaggedSession(t *testing.T) {
	ctx := context.Background()
	queue, st, _ := newTestQueue(t, 100)

	result, err := queue.Join(ctx, "event1", "user1", "9.9.9.9", true)
	require.NoError(t, err)

	assert.True(t, result.IsFlagged)
	assert.Equal(t, 30, result.TrustScore)
	assert.Equal(t, models.TrustBronze, result.TrustLevel)

	session, err := st.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Contains(t, session.FlagReasons, FlagReasonSameIP)
}

func TestLeaveCompactsPositions(t *testing.T) {
	ctx := context.Background()
	queue, st, notifier := newTestQueue(t, 100)

	var sessions []*JoinResult
	for _, user := range []string{"user1", "user2", "user3", "user4"} {
		result, err := queue.Join(ctx, "event1", user, "1.1.1.1", false)
		require.NoError(t, err)
		sessions = append(sessions, result)
	}

	// user2 at position 2 leaves; 3 and 4 shift up, 1 stays
	require.NoError(t, queue.Leave(ctx, sessions[1].SessionID))

	left, err := st.GetSession(ctx, sessions[1].SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, left.Status)

	s1, _ := st.GetSession(ctx, sessions[0].SessionID)
	s3, _ := st.GetSession(ctx, sessions[2].SessionID)
	s4, _ := st.GetSession(ctx, sessions[3].SessionID)
	assert.Equal(t, 1, s1.CurrentPosition)
	assert.Equal(t, 2, s3.CurrentPosition)
	assert.Equal(t, 3, s4.CurrentPosition)

	event, err := st.FindEventByID(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 3, event.CurrentQueueSize)
	assertContiguous(t, st, "event1")

	// only the shifted sessions got a position push
	assert.Empty(t, notifier.positions[sessions[0].SessionID])
	assert.Equal(t, []int{2}, notifier.positions[sessions[2].SessionID])
	assert.Equal(t, []int{3}, notifier.positions[sessions[3].SessionID])
}

func TestLeaveNonWaitingIsNoop(t *testing.T) {
	ctx := context.Background()
	queue, st, _ := newTestQueue(t, 100)

	result, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)

	require.NoError(t, queue.Leave(ctx, result.SessionID))
	require.NoError(t, queue.Leave(ctx, result.SessionID))

	event, err := st.FindEventByID(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 0, event.CurrentQueueSize)
}

func TestReorderByTrust(t *testing.T) {
	ctx := context.Background()
	queue, st, _ := newTestQueue(t, 100)

	base := time.Now().Add(-time.Hour)
	for i, tc := range []struct {
		sessionID string
		trust     int
		joined    time.Time
	}{
		{"session_low", 30, base},
		{"session_high", 90, base.Add(time.Minute)},
		{"session_mid_early", 60, base.Add(2 * time.Minute)},
		{"session_mid_late", 60, base.Add(3 * time.Minute)},
	} {
		require.NoError(t, st.PutSession(ctx, &models.QueueSession{
			SessionID:       tc.sessionID,
			EventID:         "event1",
			JoinedAt:        tc.joined,
			CurrentPosition: i + 1,
			TrustScore:      tc.trust,
			TrustLevel:      models.LevelOf(tc.trust),
			Status:          models.StatusWaiting,
		}))
	}

	count, err := queue.ReorderByTrust(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	expected := map[string]int{
		"session_high":      1,
		"session_mid_early": 2, // equal trust, earlier join wins
		"session_mid_late":  3,
		"session_low":       4,
	}
	for sessionID, position := range expected {
		session, err := st.GetSession(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, position, session.CurrentPosition, sessionID)
	}
	assertContiguous(t, st, "event1")
}

func TestAdvance(t *testing.T) {
	ctx := context.Background()
	queue, st, notifier := newTestQueue(t, 100)

	var sessions []*JoinResult
	for _, user := range []string{"user1", "user2", "user3"} {
		result, err := queue.Join(ctx, "event1", user, "1.1.1.1", false)
		require.NoError(t, err)
		sessions = append(sessions, result)
	}

	advanced, err := queue.Advance(ctx, "event1", 2)
	require.NoError(t, err)
	require.Len(t, advanced, 2)
	assert.Equal(t, sessions[0].SessionID, advanced[0])
	assert.Equal(t, sessions[1].SessionID, advanced[1])

	s1, _ := st.GetSession(ctx, sessions[0].SessionID)
	s3, _ := st.GetSession(ctx, sessions[2].SessionID)
	assert.Equal(t, models.StatusActive, s1.Status)
	assert.Equal(t, models.StatusWaiting, s3.Status)
	assert.Equal(t, 1, s3.CurrentPosition)

	event, err := st.FindEventByID(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.CurrentQueueSize)
	assert.Equal(t, advanced, notifier.advanced)

	// advancing past the end drains the queue without error
	advanced, err = queue.Advance(ctx, "event1", 5)
	require.NoError(t, err)
	assert.Len(t, advanced, 1)

	advanced, err = queue.Advance(ctx, "event1", 1)
	require.NoError(t, err)
	assert.Empty(t, advanced)
}

func TestSubmitGameAnswer(t *testing.T) {
	ctx := context.Background()
	queue, st, notifier := newTestQueue(t, 100)

	require.NoError(t, st.SaveQuestion(ctx, &models.ChallengeQuestion{
		ID:            "q1",
		ArtistID:      "artist1",
		Question:      "Which album came first?",
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: 2,
		Difficulty:    models.DifficultyMedium,
	}))

	joined, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)

	outcome, err := queue.SubmitGameAnswer(ctx, GameSubmission{
		SessionID:      joined.SessionID,
		GameType:       models.GameTrivia,
		QuestionID:     "q1",
		Answer:         "2",
		ResponseTimeMs: 3000,
	})
	require.NoError(t, err)

	require.NotNil(t, outcome.Correct)
	assert.True(t, *outcome.Correct)
	assert.Equal(t, 12, outcome.TrustBoostEarned)
	assert.Equal(t, 62, outcome.NewTrustScore)
	assert.Equal(t, models.TrustGold, outcome.NewTrustLevel)

	results, err := st.GameResultsBySession(ctx, joined.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 12, results[0].TrustBoostEarned)

	session, err := st.GetSession(ctx, joined.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 62, session.TrustScore)
	assert.Equal(t, 1, session.Behavioral.GamesPlayed)
	assert.Equal(t, []int{62}, notifier.trustScores[joined.SessionID])
}

func TestSubmitGameAnswerWrong(t *testing.T) {
	ctx := context.Background()
	queue, st, _ := newTestQueue(t, 100)

	require.NoError(t, st.SaveQuestion(ctx, &models.ChallengeQuestion{
		ID: "q1", ArtistID: "artist1", CorrectAnswer: 0, Difficulty: models.DifficultyHard,
	}))

	joined, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)

	outcome, err := queue.SubmitGameAnswer(ctx, GameSubmission{
		SessionID:      joined.SessionID,
		GameType:       models.GameTrivia,
		QuestionID:     "q1",
		Answer:         "3",
		ResponseTimeMs: 3000,
	})
	require.NoError(t, err)

	require.NotNil(t, outcome.Correct)
	assert.False(t, *outcome.Correct)
	assert.Equal(t, 0, outcome.TrustBoostEarned)
	assert.Equal(t, 50, outcome.NewTrustScore)
}

func TestSubmitGameAnswerValidation(t *testing.T) {
	ctx := context.Background()
	queue, _, _ := newTestQueue(t, 100)

	tests := []struct {
		name       string
		submission GameSubmission
	}{
		{"Missing session", GameSubmission{GameType: models.GameTrivia, QuestionID: "q1", Answer: "1", ResponseTimeMs: 100}},
		{"Missing question", GameSubmission{SessionID: "session_x", GameType: models.GameTrivia, Answer: "1", ResponseTimeMs: 100}},
		{"Missing answer", GameSubmission{SessionID: "session_x", GameType: models.GameTrivia, QuestionID: "q1", ResponseTimeMs: 100}},
		{"Zero response time", GameSubmission{SessionID: "session_x", GameType: models.GameTrivia, QuestionID: "q1", Answer: "1"}},
		{"Unknown game type", GameSubmission{SessionID: "session_x", GameType: "chess", QuestionID: "q1", Answer: "1", ResponseTimeMs: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := queue.SubmitGameAnswer(ctx, tt.submission)
			assert.ErrorIs(t, err, status.ErrInvalidAnswer)
		})
	}
}

func TestSubmitPollAnswer(t *testing.T) {
	ctx := context.Background()
	queue, _, _ := newTestQueue(t, 100)

	joined, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)

	outcome, err := queue.SubmitGameAnswer(ctx, GameSubmission{
		SessionID:      joined.SessionID,
		GameType:       models.GamePoll,
		QuestionID:     "poll1",
		Answer:         "1",
		ResponseTimeMs: 4000,
	})
	require.NoError(t, err)

	assert.Nil(t, outcome.Correct)
	assert.Equal(t, 5, outcome.TrustBoostEarned)
	assert.Equal(t, 55, outcome.NewTrustScore)
}

func TestRecordBehavior(t *testing.T) {
	ctx := context.Background()
	queue, st, _ := newTestQueue(t, 100)

	joined, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)

	recorded, err := queue.RecordBehavior(ctx, joined.SessionID, []BehavioralInput{
		{Type: models.BehaviorMouseMove, Timestamp: time.Now(), Entropy: 0.6},
		{Type: models.BehaviorMouseMove, Timestamp: time.Now(), Entropy: 0.7},
		{Type: models.BehaviorScroll, Timestamp: time.Now()},
		{Type: models.BehaviorClick, Timestamp: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, recorded)

	session, err := st.GetSession(ctx, joined.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, session.Behavioral.MouseMovements)
	assert.Equal(t, 1, session.Behavioral.ScrollEvents)

	events, err := st.BehavioralEventsBySession(ctx, joined.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestSaveLocationContext(t *testing.T) {
	ctx := context.Background()
	queue, st, _ := newTestQueue(t, 100)

	joined, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)

	before, err := st.GetSession(ctx, joined.SessionID)
	require.NoError(t, err)

	require.NoError(t, queue.SaveLocationContext(ctx, joined.SessionID, models.LocationContext{
		City: "Austin", Region: "TX", IsLocalFan: true,
	}))

	after, err := st.GetSession(ctx, joined.SessionID)
	require.NoError(t, err)
	require.NotNil(t, after.Location)
	assert.Equal(t, "Austin", after.Location.City)
	// location is passthrough metadata, never scored
	assert.Equal(t, before.TrustScore, after.TrustScore)
	assert.Equal(t, before.CurrentPosition, after.CurrentPosition)
}

func TestEstimatedWait(t *testing.T) {
	tests := []struct {
		position int
		expected string
	}{
		{1, "Less than 1 minute"},
		{2, "1 minute"},
		{3, "1 minute"},
		{5, "2 minutes"},
		{21, "10 minutes"},
		{121, "1 hour"},
		{125, "1h 2m"},
		{241, "2 hours"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, EstimatedWait(tt.position), "position %d", tt.position)
	}
}

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	queue, st, _ := newTestQueue(t, 2)

	a, err := queue.Join(ctx, "event1", "userA", "1.1.1.1", false)
	require.NoError(t, err)
	b, err := queue.Join(ctx, "event1", "userB", "1.1.1.2", false)
	require.NoError(t, err)

	_, err = queue.Join(ctx, "event1", "userC", "1.1.1.3", false)
	assert.ErrorIs(t, err, status.ErrQueueAtCapacity)

	// B answers well and overtakes A
	require.NoError(t, st.SaveQuestion(ctx, &models.ChallengeQuestion{
		ID: "q1", ArtistID: "artist1", CorrectAnswer: 1, Difficulty: models.DifficultyHard,
	}))
	_, err = queue.SubmitGameAnswer(ctx, GameSubmission{
		SessionID: b.SessionID, GameType: models.GameTrivia,
		QuestionID: "q1", Answer: "1", ResponseTimeMs: 4000,
	})
	require.NoError(t, err)

	_, err = queue.ReorderByTrust(ctx, "event1")
	require.NoError(t, err)

	sessionB, _ := st.GetSession(ctx, b.SessionID)
	sessionA, _ := st.GetSession(ctx, a.SessionID)
	assert.Equal(t, 1, sessionB.CurrentPosition)
	assert.Equal(t, 2, sessionA.CurrentPosition)

	// front advances, A moves up, and the freed slot admits C
	advanced, err := queue.Advance(ctx, "event1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{b.SessionID}, advanced)

	sessionA, _ = st.GetSession(ctx, a.SessionID)
	assert.Equal(t, 1, sessionA.CurrentPosition)

	c, err := queue.Join(ctx, "event1", "userC", "1.1.1.3", false)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Position)
	assertContiguous(t, st, "event1")
}

// reorderRaceStore lets a test inject work between a reorder's waiting-set
// read and its commit.
type reorderRaceStore struct {
	store.Store
	once    sync.Once
	trigger func()
}

func (r *reorderRaceStore) ListWaiting(ctx context.Context, eventID string) ([]*models.QueueSession, error) {
	waiting, err := r.Store.ListWaiting(ctx, eventID)
	if r.trigger != nil {
		r.once.Do(r.trigger)
	}
	return waiting, err
}

func TestReorderKeepsConcurrentTrustBoost(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	raced := &reorderRaceStore{Store: mem}
	notifier := newFakeNotifier()
	queue := NewQueueService(raced, notifier, monitoring.NewMonitor(), NewEventLocks())

	require.NoError(t, mem.SaveEvent(ctx, &models.Event{
		ID:            "event1",
		ArtistID:      "artist1",
		QueueCapacity: 100,
		IsActive:      true,
	}))
	require.NoError(t, mem.SaveQuestion(ctx, &models.ChallengeQuestion{
		ID: "q1", ArtistID: "artist1", CorrectAnswer: 2, Difficulty: models.DifficultyHard,
	}))

	first, err := queue.Join(ctx, "event1", "user1", "1.1.1.1", false)
	require.NoError(t, err)
	_, err = queue.Join(ctx, "event1", "user2", "1.1.1.2", false)
	require.NoError(t, err)

	// A correct hard answer arrives while the reorder holds its snapshot.
	// The submission must wait for the event lock instead of committing a
	// score the reorder would then overwrite.
	done := make(chan error, 1)
	raced.trigger = func() {
		go func() {
			_, submitErr := queue.SubmitGameAnswer(ctx, GameSubmission{
				SessionID:      first.SessionID,
				GameType:       models.GameTrivia,
				QuestionID:     "q1",
				Answer:         "2",
				ResponseTimeMs: 3000,
			})
			done <- submitErr
		}()
		time.Sleep(20 * time.Millisecond)
	}

	_, err = queue.ReorderByTrust(ctx, "event1")
	require.NoError(t, err)
	require.NoError(t, <-done)

	session, err := mem.GetSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 67, session.TrustScore)
	assert.Equal(t, models.TrustGold, session.TrustLevel)
	assertContiguous(t, mem, "event1")
}
