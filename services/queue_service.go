package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/TheeGreenGenie/ticket-leader/internal/status"
	"github.com/TheeGreenGenie/ticket-leader/models"
	"github.com/TheeGreenGenie/ticket-leader/monitoring"
	"github.com/TheeGreenGenie/ticket-leader/store"
	"github.com/TheeGreenGenie/ticket-leader/utils"
)

// Notifier is the push surface the queue core drives. The realtime
// package provides the production implementation.
type Notifier interface {
	PositionUpdate(sessionID string, position int, estimatedWait string)
	TrustUpdate(sessionID string, trustScore int, trustLevel models.TrustLevel)
	Advance(sessionID string)
	QueueSize(eventID string, queueSize int)
}

// FlagReasonSameIP is attached to sessions admitted from an IP that
// already holds several live sessions for the same event.
const FlagReasonSameIP = "multiple sessions from same IP"

const flaggedJoinPenalty = -20

// QueueService owns every mutation of queue membership and ordering.
// All operations for one event serialize on that event's lock; different
// events proceed in parallel. The lock set is shared with TrustService
// so a trust write can never race a whole-session queue commit.
type QueueService struct {
	store    store.Store
	notifier Notifier
	monitor  *monitoring.Monitor
	locks    *EventLocks

	now          func() time.Time
	newSessionID func() string
}

func NewQueueService(st store.Store, notifier Notifier, monitor *monitoring.Monitor, locks *EventLocks) *QueueService {
	return &QueueService{
		store:        st,
		notifier:     notifier,
		monitor:      monitor,
		locks:        locks,
		now:          time.Now,
		newSessionID: utils.GenerateSecureSessionID,
	}
}

type JoinResult struct {
	SessionID     string            `json:"session_id"`
	Position      int               `json:"position"`
	EstimatedWait string            `json:"estimated_wait"`
	TrustScore    int               `json:"trust_score"`
	TrustLevel    models.TrustLevel `json:"trust_level"`
	IsFlagged     bool              `json:"is_flagged"`
}

// Join admits a client into an event's waiting queue. It is idempotent
// per (userID, eventID): a retry while a waiting session exists returns
// that session instead of double-counting the user.
func (s *QueueService) Join(ctx context.Context, eventID, userID, ip string, flagged bool) (*JoinResult, error) {
	lock := s.locks.ForEvent(eventID)
	lock.Lock()
	defer lock.Unlock()

	event, err := s.store.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive {
		return nil, status.ErrEventInactive
	}
	if event.AtCapacity() {
		s.monitor.TrackQueueOperation("join", eventID, "rejected")
		return nil, status.ErrQueueAtCapacity
	}

	if userID != "" {
		existing, err := s.store.FindWaitingByUser(ctx, eventID, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &JoinResult{
				SessionID:     existing.SessionID,
				Position:      existing.CurrentPosition,
				EstimatedWait: EstimatedWait(existing.CurrentPosition),
				TrustScore:    existing.TrustScore,
				TrustLevel:    existing.TrustLevel,
				IsFlagged:     existing.IsFlagged,
			}, nil
		}
	}

	now := s.now()
	session := &models.QueueSession{
		SessionID:       s.newSessionID(),
		EventID:         eventID,
		UserID:          userID,
		JoinedAt:        now,
		LastActivity:    now,
		CurrentPosition: event.CurrentQueueSize + 1,
		TrustScore:      models.DefaultTrustScore,
		TrustLevel:      models.LevelOf(models.DefaultTrustScore),
		Status:          models.StatusWaiting,
		IPAddress:       ip,
	}
	if flagged {
		session.Flag(FlagReasonSameIP)
		session.ApplyTrustDelta(flaggedJoinPenalty)
	}

	event.CurrentQueueSize++
	if err := s.store.CommitQueueState(ctx, event, session); err != nil {
		return nil, err
	}

	s.monitor.TrackQueueOperation("join", eventID, "success")
	s.monitor.ObserveTrustScore(session.TrustScore)
	s.notifier.QueueSize(eventID, event.CurrentQueueSize)

	return &JoinResult{
		SessionID:     session.SessionID,
		Position:      session.CurrentPosition,
		EstimatedWait: EstimatedWait(session.CurrentPosition),
		TrustScore:    session.TrustScore,
		TrustLevel:    session.TrustLevel,
		IsFlagged:     session.IsFlagged,
	}, nil
}

type StatusResult struct {
	SessionID     string               `json:"session_id"`
	Position      int                  `json:"position"`
	QueueSize     int                  `json:"queue_size"`
	EstimatedWait string               `json:"estimated_wait"`
	TrustScore    int                  `json:"trust_score"`
	TrustLevel    models.TrustLevel    `json:"trust_level"`
	Status        models.SessionStatus `json:"status"`
	Event         models.EventDisplay  `json:"event"`
}

// GetStatus is read-only; it never mutates queue state.
func (s *QueueService) GetStatus(ctx context.Context, sessionID string) (*StatusResult, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	event, err := s.store.FindEventByID(ctx, session.EventID)
	if err != nil {
		return nil, err
	}

	return &StatusResult{
		SessionID:     session.SessionID,
		Position:      session.CurrentPosition,
		QueueSize:     event.CurrentQueueSize,
		EstimatedWait: EstimatedWait(session.CurrentPosition),
		TrustScore:    session.TrustScore,
		TrustLevel:    session.TrustLevel,
		Status:        session.Status,
		Event:         event.Display(),
	}, nil
}

// Leave expires a session and compacts the positions behind it so the
// waiting set stays contiguous.
func (s *QueueService) Leave(ctx context.Context, sessionID string) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	lock := s.locks.ForEvent(session.EventID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a sweep may have moved the session since.
	session, err = s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.StatusWaiting {
		return nil
	}

	event, err := s.store.FindEventByID(ctx, session.EventID)
	if err != nil {
		return err
	}

	waiting, err := s.store.ListWaiting(ctx, session.EventID)
	if err != nil {
		return err
	}

	leavingPosition := session.CurrentPosition
	session.Status = models.StatusExpired
	session.LastActivity = s.now()

	changed := []*models.QueueSession{session}
	var moved []*models.QueueSession
	for _, other := range waiting {
		if other.SessionID == session.SessionID {
			continue
		}
		if other.CurrentPosition > leavingPosition {
			other.CurrentPosition--
			changed = append(changed, other)
			moved = append(moved, other)
		}
	}

	event.CurrentQueueSize--
	if event.CurrentQueueSize < 0 {
		event.CurrentQueueSize = 0
	}

	if err := s.store.CommitQueueState(ctx, event, changed...); err != nil {
		return err
	}

	s.monitor.TrackQueueOperation("leave", session.EventID, "success")
	for _, other := range moved {
		s.notifier.PositionUpdate(other.SessionID, other.CurrentPosition, EstimatedWait(other.CurrentPosition))
	}
	s.notifier.QueueSize(session.EventID, event.CurrentQueueSize)
	return nil
}

// ReorderByTrust re-ranks an event's waiting sessions by trust score,
// breaking ties by join time so honest early joiners are never starved
// within their tier. The new ordering is computed fully in memory and
// committed in one batch.
func (s *QueueService) ReorderByTrust(ctx context.Context, eventID string) (int, error) {
	lock := s.locks.ForEvent(eventID)
	lock.Lock()
	defer lock.Unlock()

	event, err := s.store.FindEventByID(ctx, eventID)
	if err != nil {
		return 0, err
	}

	waiting, err := s.store.ListWaiting(ctx, eventID)
	if err != nil {
		return 0, err
	}

	sort.SliceStable(waiting, func(i, j int) bool {
		if waiting[i].TrustScore != waiting[j].TrustScore {
			return waiting[i].TrustScore > waiting[j].TrustScore
		}
		return waiting[i].JoinedAt.Before(waiting[j].JoinedAt)
	})

	var changed []*models.QueueSession
	for i, session := range waiting {
		position := i + 1
		if session.CurrentPosition != position {
			session.CurrentPosition = position
			changed = append(changed, session)
		}
	}

	if len(changed) > 0 {
		if err := s.store.CommitQueueState(ctx, event, changed...); err != nil {
			return 0, err
		}
		for _, session := range changed {
			s.notifier.PositionUpdate(session.SessionID, session.CurrentPosition, EstimatedWait(session.CurrentPosition))
		}
	}

	s.monitor.TrackQueueOperation("reorder", eventID, "success")
	s.monitor.SetWaitingSessions(eventID, len(waiting))
	return len(waiting), nil
}

// Advance flips the front-most waiting sessions to active, simulating a
// completed ticket purchase, and shifts everyone behind them forward.
func (s *QueueService) Advance(ctx context.Context, eventID string, count int) ([]string, error) {
	if count < 1 {
		count = 1
	}

	lock := s.locks.ForEvent(eventID)
	lock.Lock()
	defer lock.Unlock()

	event, err := s.store.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	waiting, err := s.store.ListWaiting(ctx, eventID)
	if err != nil {
		return nil, err
	}

	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].CurrentPosition < waiting[j].CurrentPosition
	})

	if count > len(waiting) {
		count = len(waiting)
	}
	if count == 0 {
		return nil, nil
	}

	now := s.now()
	advanced := waiting[:count]
	remaining := waiting[count:]

	advancedIDs := make([]string, 0, count)
	changed := make([]*models.QueueSession, 0, len(waiting))
	for _, session := range advanced {
		session.Status = models.StatusActive
		session.LastActivity = now
		advancedIDs = append(advancedIDs, session.SessionID)
		changed = append(changed, session)
	}
	for _, session := range remaining {
		session.CurrentPosition -= count
		changed = append(changed, session)
	}

	event.CurrentQueueSize -= count
	if event.CurrentQueueSize < 0 {
		event.CurrentQueueSize = 0
	}

	if err := s.store.CommitQueueState(ctx, event, changed...); err != nil {
		return nil, err
	}

	s.monitor.TrackQueueOperation("advance", eventID, "success")
	for _, sessionID := range advancedIDs {
		s.notifier.Advance(sessionID)
	}
	for _, session := range remaining {
		s.notifier.PositionUpdate(session.SessionID, session.CurrentPosition, EstimatedWait(session.CurrentPosition))
	}
	s.notifier.QueueSize(eventID, event.CurrentQueueSize)

	return advancedIDs, nil
}

// GameSubmission is one trivia or poll answer from a client.
type GameSubmission struct {
	SessionID      string          `json:"session_id"`
	GameType       models.GameType `json:"game_type"`
	QuestionID     string          `json:"question_id"`
	Answer         string          `json:"answer"`
	ResponseTimeMs int             `json:"response_time_ms"`
}

type GameOutcome struct {
	Correct          *bool             `json:"correct"`
	TrustBoostEarned int               `json:"trust_boost_earned"`
	NewTrustScore    int               `json:"new_trust_score"`
	NewTrustLevel    models.TrustLevel `json:"new_trust_level"`
}

// SubmitGameAnswer validates, scores and records one game answer. All
// validation happens before any write; the result record and the trust
// update commit together or not at all.
func (s *QueueService) SubmitGameAnswer(ctx context.Context, submission GameSubmission) (*GameOutcome, error) {
	if submission.SessionID == "" || submission.QuestionID == "" ||
		submission.Answer == "" || submission.ResponseTimeMs <= 0 {
		return nil, status.ErrInvalidAnswer
	}
	if submission.GameType != models.GameTrivia && submission.GameType != models.GamePoll {
		return nil, status.ErrInvalidAnswer
	}

	session, err := s.store.GetSession(ctx, submission.SessionID)
	if err != nil {
		return nil, err
	}

	lock := s.locks.ForEvent(session.EventID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a reorder or advance may have committed a
	// newer snapshot since the first read.
	session, err = s.store.GetSession(ctx, submission.SessionID)
	if err != nil {
		return nil, err
	}

	var isCorrect *bool
	boost := 0
	switch submission.GameType {
	case models.GameTrivia:
		question, err := s.store.FindQuestionByID(ctx, submission.QuestionID)
		if err != nil {
			return nil, err
		}
		answerIndex, convErr := strconv.Atoi(submission.Answer)
		correct := convErr == nil && answerIndex == question.CorrectAnswer
		isCorrect = &correct
		boost = TriviaBoost(correct, question.Difficulty, submission.ResponseTimeMs)
	case models.GamePoll:
		boost = PollBoost(submission.ResponseTimeMs)
	}

	now := s.now()
	result := &models.GameResult{
		ID:               uuid.NewString(),
		SessionID:        submission.SessionID,
		GameType:         submission.GameType,
		QuestionID:       submission.QuestionID,
		UserAnswer:       submission.Answer,
		IsCorrect:        isCorrect,
		ResponseTimeMs:   submission.ResponseTimeMs,
		TrustBoostEarned: boost,
		PlayedAt:         now,
	}

	session.ApplyTrustDelta(boost)
	session.Behavioral.GamesPlayed++
	session.LastActivity = now

	if err := s.store.CommitGameResult(ctx, result, session); err != nil {
		return nil, err
	}

	s.monitor.TrackQueueOperation("game", session.EventID, "success")
	s.monitor.ObserveTrustScore(session.TrustScore)
	s.notifier.TrustUpdate(session.SessionID, session.TrustScore, session.TrustLevel)

	return &GameOutcome{
		Correct:          isCorrect,
		TrustBoostEarned: boost,
		NewTrustScore:    session.TrustScore,
		NewTrustLevel:    session.TrustLevel,
	}, nil
}

// BehavioralInput is one client-reported interaction event.
type BehavioralInput struct {
	Type      models.BehavioralEventType `json:"type"`
	Timestamp time.Time                  `json:"timestamp"`
	Data      map[string]any             `json:"data,omitempty"`
	Entropy   float64                    `json:"entropy"`
}

// RecordBehavior appends a batch of interaction events and bumps the
// session's activity counters. Counters only ever grow while waiting.
func (s *QueueService) RecordBehavior(ctx context.Context, sessionID string, inputs []BehavioralInput) (int, error) {
	if sessionID == "" || len(inputs) == 0 {
		return 0, status.ErrInvalidAnswer
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	lock := s.locks.ForEvent(session.EventID)
	lock.Lock()
	defer lock.Unlock()

	session, err = s.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	events := make([]*models.BehavioralEvent, 0, len(inputs))
	mouseMoves, scrolls := 0, 0
	for _, input := range inputs {
		events = append(events, &models.BehavioralEvent{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			EventType: input.Type,
			Timestamp: input.Timestamp,
			Data:      input.Data,
			Entropy:   input.Entropy,
		})
		switch input.Type {
		case models.BehaviorMouseMove:
			mouseMoves++
		case models.BehaviorScroll:
			scrolls++
		}
	}

	if err := s.store.AppendBehavioralEvents(ctx, events); err != nil {
		return 0, err
	}

	session.Behavioral.MouseMovements += mouseMoves
	session.Behavioral.ScrollEvents += scrolls
	session.LastActivity = s.now()
	if err := s.store.PutSession(ctx, session); err != nil {
		return 0, err
	}

	return len(events), nil
}

// SaveLocationContext stores client-supplied location metadata on the
// session. Location is display passthrough; it never affects scoring.
func (s *QueueService) SaveLocationContext(ctx context.Context, sessionID string, location models.LocationContext) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	lock := s.locks.ForEvent(session.EventID)
	lock.Lock()
	defer lock.Unlock()

	session, err = s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Location = &location
	session.LastActivity = s.now()
	return s.store.PutSession(ctx, session)
}

const secondsPerPerson = 30

// EstimatedWait renders the display estimate for a queue position. It is
// a convenience for clients, not a scheduling guarantee.
func EstimatedWait(position int) string {
	totalSeconds := (position - 1) * secondsPerPerson
	minutes := (totalSeconds + 59) / 60

	switch {
	case minutes < 1:
		return "Less than 1 minute"
	case minutes == 1:
		return "1 minute"
	case minutes < 60:
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours := minutes / 60
	remaining := minutes % 60
	switch {
	case hours == 1 && remaining == 0:
		return "1 hour"
	case remaining == 0:
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, remaining)
}
