package store

import (
	"context"
	"time"

	"github.com/TheeGreenGenie/ticket-leader/models"
)

// Sessions is the authoritative per-event collection of queue sessions.
// CommitQueueState writes an event's queue size together with every
// session the operation touched; implementations must not expose a state
// where only part of that batch is visible.
type Sessions interface {
	GetSession(ctx context.Context, sessionID string) (*models.QueueSession, error)
	PutSession(ctx context.Context, session *models.QueueSession) error
	CommitQueueState(ctx context.Context, event *models.Event, sessions ...*models.QueueSession) error
	FindWaitingByUser(ctx context.Context, eventID, userID string) (*models.QueueSession, error)
	ListWaiting(ctx context.Context, eventID string) ([]*models.QueueSession, error)
	ListAllWaiting(ctx context.Context) ([]*models.QueueSession, error)
	CountRecentByIP(ctx context.Context, eventID, ip string, window time.Duration) (int, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	ListStaleWaiting(ctx context.Context, olderThan time.Time) ([]*models.QueueSession, error)
	PurgeFinished(ctx context.Context, olderThan time.Time) (int, error)
}

type Events interface {
	FindEventByID(ctx context.Context, eventID string) (*models.Event, error)
	SaveEvent(ctx context.Context, event *models.Event) error
}

type Questions interface {
	FindQuestionByID(ctx context.Context, questionID string) (*models.ChallengeQuestion, error)
	FindRandomQuestion(ctx context.Context, artistID string, excludeIDs []string) (*models.ChallengeQuestion, error)
}

type Games interface {
	AppendGameResult(ctx context.Context, result *models.GameResult) error
	// CommitGameResult writes a game record and the session it updated as
	// one batch. A scored answer never lands without its trust effect.
	CommitGameResult(ctx context.Context, result *models.GameResult, session *models.QueueSession) error
	GameResultsBySession(ctx context.Context, sessionID string, limit int) ([]*models.GameResult, error)
}

type Behavior interface {
	AppendBehavioralEvents(ctx context.Context, events []*models.BehavioralEvent) error
	BehavioralEventsBySession(ctx context.Context, sessionID string, limit int) ([]*models.BehavioralEvent, error)
}

// Store is the full collaborator surface the queue core runs against.
type Store interface {
	Sessions
	Events
	Questions
	Games
	Behavior
}

// BehaviorWindow bounds how many recent behavioral events scoring may
// replay for one session.
const BehaviorWindow = 100
