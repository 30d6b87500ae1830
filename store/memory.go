package store

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/TheeGreenGenie/ticket-leader/internal/status"
	"github.com/TheeGreenGenie/ticket-leader/models"
)

// Memory is a process-local Store. It backs single-node development runs
// when no Redis is configured and every service test.
type Memory struct {
	mu        sync.RWMutex
	events    map[string]*models.Event
	sessions  map[string]*models.QueueSession
	questions map[string]*models.ChallengeQuestion
	games     map[string][]*models.GameResult
	behavior  map[string][]*models.BehavioralEvent
}

func NewMemory() *Memory {
	return &Memory{
		events:    make(map[string]*models.Event),
		sessions:  make(map[string]*models.QueueSession),
		questions: make(map[string]*models.ChallengeQuestion),
		games:     make(map[string][]*models.GameResult),
		behavior:  make(map[string][]*models.BehavioralEvent),
	}
}

func copySession(s *models.QueueSession) *models.QueueSession {
	dup := *s
	dup.FlagReasons = append([]string(nil), s.FlagReasons...)
	if s.Location != nil {
		loc := *s.Location
		dup.Location = &loc
	}
	return &dup
}

func (m *Memory) FindEventByID(ctx context.Context, eventID string) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.events[eventID]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	dup := *event
	return &dup, nil
}

func (m *Memory) SaveEvent(ctx context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *event
	m.events[event.ID] = &dup
	return nil
}

func (m *Memory) GetSession(ctx context.Context, sessionID string) (*models.QueueSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, status.ErrSessionNotFound
	}
	return copySession(session), nil
}

func (m *Memory) PutSession(ctx context.Context, session *models.QueueSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = copySession(session)
	return nil
}

func (m *Memory) CommitQueueState(ctx context.Context, event *models.Event, sessions ...*models.QueueSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *event
	m.events[event.ID] = &dup
	for _, session := range sessions {
		m.sessions[session.SessionID] = copySession(session)
	}
	return nil
}

func (m *Memory) FindWaitingByUser(ctx context.Context, eventID, userID string) (*models.QueueSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, session := range m.sessions {
		if session.EventID == eventID && session.UserID == userID && session.Status == models.StatusWaiting {
			return copySession(session), nil
		}
	}
	return nil, nil
}

func (m *Memory) ListWaiting(ctx context.Context, eventID string) ([]*models.QueueSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var waiting []*models.QueueSession
	for _, session := range m.sessions {
		if session.EventID == eventID && session.Status == models.StatusWaiting {
			waiting = append(waiting, copySession(session))
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].CurrentPosition < waiting[j].CurrentPosition
	})
	return waiting, nil
}

func (m *Memory) ListAllWaiting(ctx context.Context) ([]*models.QueueSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var waiting []*models.QueueSession
	for _, session := range m.sessions {
		if session.Status == models.StatusWaiting {
			waiting = append(waiting, copySession(session))
		}
	}
	return waiting, nil
}

func (m *Memory) CountRecentByIP(ctx context.Context, eventID, ip string, window time.Duration) (int, error) {
	if ip == "" {
		return 0, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-window)
	count := 0
	for _, session := range m.sessions {
		if session.EventID != eventID || session.IPAddress != ip {
			continue
		}
		if session.Status != models.StatusWaiting && session.Status != models.StatusActive {
			continue
		}
		if session.JoinedAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return status.ErrSessionNotFound
	}
	session.LastActivity = at
	return nil
}

func (m *Memory) ListStaleWaiting(ctx context.Context, olderThan time.Time) ([]*models.QueueSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stale []*models.QueueSession
	for _, session := range m.sessions {
		if session.Status == models.StatusWaiting && session.LastActivity.Before(olderThan) {
			stale = append(stale, copySession(session))
		}
	}
	return stale, nil
}

func (m *Memory) PurgeFinished(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, session := range m.sessions {
		finished := session.Status == models.StatusExpired || session.Status == models.StatusCompleted
		if finished && session.LastActivity.Before(olderThan) {
			delete(m.sessions, id)
			delete(m.games, id)
			delete(m.behavior, id)
			purged++
		}
	}
	return purged, nil
}

func (m *Memory) SaveQuestion(ctx context.Context, question *models.ChallengeQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *question
	dup.Options = append([]string(nil), question.Options...)
	m.questions[question.ID] = &dup
	return nil
}

func (m *Memory) FindQuestionByID(ctx context.Context, questionID string) (*models.ChallengeQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	question, ok := m.questions[questionID]
	if !ok {
		return nil, status.ErrQuestionNotFound
	}
	dup := *question
	return &dup, nil
}

func (m *Memory) FindRandomQuestion(ctx context.Context, artistID string, excludeIDs []string) (*models.ChallengeQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var pool []*models.ChallengeQuestion
	for _, question := range m.questions {
		if artistID != "" && question.ArtistID != artistID {
			continue
		}
		if excluded[question.ID] {
			continue
		}
		pool = append(pool, question)
	}
	// An exclusion that empties the pool is the caller's to resolve; a
	// silent fallback here would hand back the excluded question.
	if len(pool) == 0 {
		return nil, status.ErrQuestionNotFound
	}
	dup := *pool[rand.Intn(len(pool))]
	return &dup, nil
}

func (m *Memory) AppendGameResult(ctx context.Context, result *models.GameResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *result
	m.games[result.SessionID] = append(m.games[result.SessionID], &dup)
	return nil
}

func (m *Memory) CommitGameResult(ctx context.Context, result *models.GameResult, session *models.QueueSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *result
	m.games[result.SessionID] = append(m.games[result.SessionID], &dup)
	m.sessions[session.SessionID] = copySession(session)
	return nil
}

func (m *Memory) GameResultsBySession(ctx context.Context, sessionID string, limit int) ([]*models.GameResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.games[sessionID]
	if limit > 0 && len(results) > limit {
		results = results[len(results)-limit:]
	}
	out := make([]*models.GameResult, 0, len(results))
	for _, result := range results {
		dup := *result
		out = append(out, &dup)
	}
	return out, nil
}

func (m *Memory) AppendBehavioralEvents(ctx context.Context, events []*models.BehavioralEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range events {
		dup := *event
		stream := append(m.behavior[event.SessionID], &dup)
		if len(stream) > BehaviorWindow {
			stream = stream[len(stream)-BehaviorWindow:]
		}
		m.behavior[event.SessionID] = stream
	}
	return nil
}

func (m *Memory) BehavioralEventsBySession(ctx context.Context, sessionID string, limit int) ([]*models.BehavioralEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stream := m.behavior[sessionID]
	if limit > 0 && len(stream) > limit {
		stream = stream[len(stream)-limit:]
	}
	out := make([]*models.BehavioralEvent, 0, len(stream))
	for _, event := range stream {
		dup := *event
		out = append(out, &dup)
	}
	return out, nil
}
