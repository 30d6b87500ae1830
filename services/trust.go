package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/TheeGreenGenie/ticket-leader/models"
	"github.com/TheeGreenGenie/ticket-leader/store"
)

// TriviaBoost scores one trivia answer. A wrong answer earns nothing;
// correct answers earn by difficulty, lose points for inhumanly fast
// responses and gain a small bonus for a plausible deliberation window.
func TriviaBoost(isCorrect bool, difficulty models.Difficulty, responseTimeMs int) int {
	if !isCorrect {
		return 0
	}

	boost := 0
	switch difficulty {
	case models.DifficultyEasy:
		boost = 5
	case models.DifficultyMedium:
		boost = 10
	case models.DifficultyHard:
		boost = 15
	}

	if responseTimeMs < 1000 {
		boost -= 5
		if boost < 0 {
			boost = 0
		}
	}

	if responseTimeMs >= 2000 && responseTimeMs <= 8000 {
		boost += 2
	}

	return boost
}

// PollBoost scores poll participation. Polls have no correct answer, so
// the reward is participation-shaped rather than accuracy-shaped.
func PollBoost(responseTimeMs int) int {
	boost := 3
	if responseTimeMs < 500 {
		boost = 1
	}
	if responseTimeMs >= 2000 && responseTimeMs <= 10000 {
		boost += 2
	}
	return boost
}

// TimeBoost rewards patient waiting, one point per minute capped at 20 so
// it can never dominate the score.
func TimeBoost(joinedAt, now time.Time) int {
	minutes := int(now.Sub(joinedAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	if minutes > 20 {
		return 20
	}
	return minutes
}

// BehavioralScore turns a window of interaction events into a bounded
// humanness signal. Fewer than ten events means not enough data: the
// result is zero, never a penalty for silence alone.
func BehavioralScore(events []*models.BehavioralEvent) int {
	if len(events) < 10 {
		return 0
	}

	score := 0

	var mouseMoves, scrolls, clicks int
	var entropySum float64
	for _, event := range events {
		switch event.EventType {
		case models.BehaviorMouseMove:
			mouseMoves++
			entropySum += event.Entropy
		case models.BehaviorScroll:
			scrolls++
		case models.BehaviorClick:
			clicks++
		}
	}

	if mouseMoves > 5 {
		avgEntropy := entropySum / float64(mouseMoves)
		switch {
		case avgEntropy > 0.5:
			score += 10
		case avgEntropy > 0.3:
			score += 5
		default:
			// low-variance movement reads as scripted
			score -= 5
		}
	}

	if scrolls >= 3 {
		score += 5
	}

	if clicks > 0 && clicks < 50 {
		score += 5
	} else if clicks >= 50 {
		score -= 5
	}

	if score > 10 {
		return 10
	}
	if score < -10 {
		return -10
	}
	return score
}

// TrustBreakdown is the authoritative recomputation result.
type TrustBreakdown struct {
	Score      int               `json:"trust_score"`
	Level      models.TrustLevel `json:"trust_level"`
	Base       int               `json:"base"`
	Games      int               `json:"games"`
	Behavioral int               `json:"behavioral"`
	TimeSpent  int               `json:"time_spent"`
}

// SuspicionReport is the outcome of an explicit suspicion scan.
type SuspicionReport struct {
	Suspicious    bool     `json:"suspicious"`
	Flags         []string `json:"flags"`
	NewTrustScore int      `json:"new_trust_score"`
}

// TrustService applies trust changes to sessions and owns the
// reconciliation and suspicion-detection paths. It shares the event lock
// set with QueueService: a score written here must not land inside a
// reorder's list-then-commit window or the sweep would revert it.
type TrustService struct {
	store    store.Store
	notifier Notifier
	locks    *EventLocks
	now      func() time.Time
}

func NewTrustService(st store.Store, notifier Notifier, locks *EventLocks) *TrustService {
	return &TrustService{store: st, notifier: notifier, locks: locks, now: time.Now}
}

// lockSession resolves the session's event, takes that event's lock and
// re-reads the session under it.
func (t *TrustService) lockSession(ctx context.Context, sessionID string) (*models.QueueSession, func(), error) {
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	lock := t.locks.ForEvent(session.EventID)
	lock.Lock()

	session, err = t.store.GetSession(ctx, sessionID)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	return session, lock.Unlock, nil
}

// ApplyBoost is the incremental scoring path used after each game answer.
func (t *TrustService) ApplyBoost(ctx context.Context, sessionID string, boost int) (*models.QueueSession, error) {
	session, unlock, err := t.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session.ApplyTrustDelta(boost)
	session.LastActivity = t.now()

	if err := t.store.PutSession(ctx, session); err != nil {
		return nil, err
	}

	t.notifier.TrustUpdate(sessionID, session.TrustScore, session.TrustLevel)
	return session, nil
}

// Recalculate rebuilds the trust score from scratch. It is the source of
// truth when the incremental path and the stored score disagree.
func (t *TrustService) Recalculate(ctx context.Context, sessionID string) (*TrustBreakdown, error) {
	session, unlock, err := t.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	games := 0
	results, err := t.store.GameResultsBySession(ctx, sessionID, 0)
	if err != nil {
		// scoring inputs degrade to zero rather than failing the rebuild
		slog.Warn("game history unavailable for recalculation", "session_id", sessionID, "error", err)
	}
	for _, result := range results {
		games += result.TrustBoostEarned
	}

	behavioral := 0
	events, err := t.store.BehavioralEventsBySession(ctx, sessionID, store.BehaviorWindow)
	if err != nil {
		slog.Warn("behavioral stream unavailable for recalculation", "session_id", sessionID, "error", err)
	} else {
		behavioral = BehavioralScore(events)
	}

	timeSpent := TimeBoost(session.JoinedAt, t.now())

	total := models.DefaultTrustScore + games + behavioral + timeSpent
	session.TrustScore = models.ClampTrustScore(total)
	session.TrustLevel = models.LevelOf(session.TrustScore)
	session.LastActivity = t.now()

	if err := t.store.PutSession(ctx, session); err != nil {
		return nil, err
	}

	t.notifier.TrustUpdate(sessionID, session.TrustScore, session.TrustLevel)

	return &TrustBreakdown{
		Score:      session.TrustScore,
		Level:      session.TrustLevel,
		Base:       models.DefaultTrustScore,
		Games:      games,
		Behavioral: behavioral,
		TimeSpent:  timeSpent,
	}, nil
}

// DetectSuspicious scans a session's game and behavioral history for bot
// patterns. It is meant to be invoked by a scheduler or admin action, not
// on every request, and each invocation re-applies the penalty for the
// patterns it finds.
func (t *TrustService) DetectSuspicious(ctx context.Context, sessionID string) (*SuspicionReport, error) {
	session, unlock, err := t.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	results, err := t.store.GameResultsBySession(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	events, err := t.store.BehavioralEventsBySession(ctx, sessionID, store.BehaviorWindow)
	if err != nil {
		return nil, err
	}

	var flags []string

	instant := 0
	for _, result := range results {
		if result.ResponseTimeMs < 500 {
			instant++
		}
	}
	if instant > 3 {
		flags = append(flags, "Multiple instant responses")
	}

	mouseMoves := 0
	for _, event := range events {
		if event.EventType == models.BehaviorMouseMove {
			mouseMoves++
		}
	}
	if len(results) > 0 && mouseMoves == 0 {
		flags = append(flags, "No mouse movement detected")
	}

	correct := 0
	correctTime := 0
	for _, result := range results {
		if result.IsCorrect != nil && *result.IsCorrect {
			correct++
			correctTime += result.ResponseTimeMs
		}
	}
	if correct > 5 && correctTime/correct < 1500 {
		flags = append(flags, "Perfect accuracy with suspiciously fast responses")
	}

	if len(flags) > 0 {
		session.ApplyTrustDelta(-10 * len(flags))
		for _, flag := range flags {
			if !hasReason(session.FlagReasons, flag) {
				session.Flag(flag)
			}
		}
		session.LastActivity = t.now()
		if err := t.store.PutSession(ctx, session); err != nil {
			return nil, err
		}
		t.notifier.TrustUpdate(sessionID, session.TrustScore, session.TrustLevel)
	}

	return &SuspicionReport{
		Suspicious:    len(flags) > 0,
		Flags:         flags,
		NewTrustScore: session.TrustScore,
	}, nil
}

func hasReason(reasons []string, reason string) bool {
	for _, existing := range reasons {
		if existing == reason {
			return true
		}
	}
	return false
}
