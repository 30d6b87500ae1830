package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TheeGreenGenie/ticket-leader/internal/status"
	"github.com/TheeGreenGenie/ticket-leader/models"
)

// Content supplies the durable documents (events, questions) that live in
// the document store rather than in Redis.
type Content interface {
	Events
	Questions
}

// Redis keeps all live queue state in Redis and delegates document reads
// to the content store. The queue size for an event is authoritative in
// Redis so it can be committed in the same transaction as the sessions it
// accounts for.
type Redis struct {
	client  *redis.Client
	content Content
}

func NewRedis(client *redis.Client, content Content) *Redis {
	return &Redis{client: client, content: content}
}

func sessionKey(sessionID string) string  { return fmt.Sprintf("queue:session:%s", sessionID) }
func waitingKey(eventID string) string    { return fmt.Sprintf("queue:waiting:%s", eventID) }
func sizeKey(eventID string) string       { return fmt.Sprintf("queue:size:%s", eventID) }
func userKey(eventID, uid string) string  { return fmt.Sprintf("queue:user:%s:%s", eventID, uid) }
func ipKey(eventID, ip string) string     { return fmt.Sprintf("queue:ip:%s:%s", eventID, ip) }
func gamesKey(sessionID string) string    { return fmt.Sprintf("queue:games:%s", sessionID) }
func behaviorKey(sessionID string) string { return fmt.Sprintf("queue:behavior:%s", sessionID) }

const (
	activityKey = "queue:activity"
	finishedKey = "queue:finished"
)

func (r *Redis) FindEventByID(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := r.content.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	size, err := r.client.Get(ctx, sizeKey(eventID)).Int()
	if err == nil {
		event.CurrentQueueSize = size
	} else if err != redis.Nil {
		return nil, err
	}
	return event, nil
}

func (r *Redis) SaveEvent(ctx context.Context, event *models.Event) error {
	if err := r.client.Set(ctx, sizeKey(event.ID), event.CurrentQueueSize, 0).Err(); err != nil {
		return err
	}
	return r.content.SaveEvent(ctx, event)
}

func (r *Redis) GetSession(ctx context.Context, sessionID string) (*models.QueueSession, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, status.ErrSessionNotFound
	} else if err != nil {
		return nil, err
	}
	var session models.QueueSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (r *Redis) PutSession(ctx context.Context, session *models.QueueSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKey(session.SessionID), data, 0).Err()
}

// CommitQueueState writes the event's queue size and every touched session
// in one transaction so a mid-sequence failure never leaves a partially
// renumbered queue visible.
func (r *Redis) CommitQueueState(ctx context.Context, event *models.Event, sessions ...*models.QueueSession) error {
	type encoded struct {
		session *models.QueueSession
		data    []byte
	}
	batch := make([]encoded, 0, len(sessions))
	for _, session := range sessions {
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}
		batch = append(batch, encoded{session: session, data: data})
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sizeKey(event.ID), event.CurrentQueueSize, 0)
		for _, item := range batch {
			s := item.session
			pipe.Set(ctx, sessionKey(s.SessionID), item.data, 0)
			switch s.Status {
			case models.StatusWaiting:
				pipe.ZAdd(ctx, waitingKey(s.EventID), redis.Z{Score: float64(s.CurrentPosition), Member: s.SessionID})
				pipe.ZAdd(ctx, activityKey, redis.Z{Score: float64(s.LastActivity.Unix()), Member: s.SessionID})
				if s.UserID != "" {
					pipe.Set(ctx, userKey(s.EventID, s.UserID), s.SessionID, 0)
				}
				if s.IPAddress != "" {
					pipe.ZAdd(ctx, ipKey(s.EventID, s.IPAddress), redis.Z{Score: float64(s.JoinedAt.Unix()), Member: s.SessionID})
				}
			case models.StatusActive:
				pipe.ZRem(ctx, waitingKey(s.EventID), s.SessionID)
				pipe.ZRem(ctx, activityKey, s.SessionID)
				if s.UserID != "" {
					pipe.Del(ctx, userKey(s.EventID, s.UserID))
				}
			default:
				pipe.ZRem(ctx, waitingKey(s.EventID), s.SessionID)
				pipe.ZRem(ctx, activityKey, s.SessionID)
				pipe.ZAdd(ctx, finishedKey, redis.Z{Score: float64(s.LastActivity.Unix()), Member: s.SessionID})
				if s.UserID != "" {
					pipe.Del(ctx, userKey(s.EventID, s.UserID))
				}
				if s.IPAddress != "" {
					pipe.ZRem(ctx, ipKey(s.EventID, s.IPAddress), s.SessionID)
				}
			}
		}
		return nil
	})
	return err
}

func (r *Redis) FindWaitingByUser(ctx context.Context, eventID, userID string) (*models.QueueSession, error) {
	sessionID, err := r.client.Get(ctx, userKey(eventID, userID)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	session, err := r.GetSession(ctx, sessionID)
	if err == status.ErrSessionNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if session.Status != models.StatusWaiting {
		return nil, nil
	}
	return session, nil
}

func (r *Redis) ListWaiting(ctx context.Context, eventID string) ([]*models.QueueSession, error) {
	sessionIDs, err := r.client.ZRange(ctx, waitingKey(eventID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return r.fetchSessions(ctx, sessionIDs)
}

func (r *Redis) ListAllWaiting(ctx context.Context) ([]*models.QueueSession, error) {
	keys, err := r.client.Keys(ctx, "queue:waiting:*").Result()
	if err != nil {
		return nil, err
	}
	var all []*models.QueueSession
	for _, key := range keys {
		sessionIDs, err := r.client.ZRange(ctx, key, 0, -1).Result()
		if err != nil {
			continue
		}
		sessions, err := r.fetchSessions(ctx, sessionIDs)
		if err != nil {
			continue
		}
		all = append(all, sessions...)
	}
	return all, nil
}

func (r *Redis) fetchSessions(ctx context.Context, sessionIDs []string) ([]*models.QueueSession, error) {
	sessions := make([]*models.QueueSession, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		session, err := r.GetSession(ctx, id)
		if err == status.ErrSessionNotFound {
			continue
		} else if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (r *Redis) CountRecentByIP(ctx context.Context, eventID, ip string, window time.Duration) (int, error) {
	if ip == "" {
		return 0, nil
	}
	key := ipKey(eventID, ip)
	cutoff := time.Now().Add(-window).Unix()
	if err := r.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff)).Err(); err != nil {
		return 0, err
	}
	count, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *Redis) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	session.LastActivity = at
	if err := r.PutSession(ctx, session); err != nil {
		return err
	}
	if session.Status == models.StatusWaiting {
		return r.client.ZAdd(ctx, activityKey, redis.Z{Score: float64(at.Unix()), Member: sessionID}).Err()
	}
	return nil
}

func (r *Redis) ListStaleWaiting(ctx context.Context, olderThan time.Time) ([]*models.QueueSession, error) {
	sessionIDs, err := r.client.ZRangeByScore(ctx, activityKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", olderThan.Unix()),
	}).Result()
	if err != nil {
		return nil, err
	}
	sessions, err := r.fetchSessions(ctx, sessionIDs)
	if err != nil {
		return nil, err
	}
	stale := sessions[:0]
	for _, session := range sessions {
		if session.Status == models.StatusWaiting {
			stale = append(stale, session)
		}
	}
	return stale, nil
}

func (r *Redis) PurgeFinished(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := fmt.Sprintf("%d", olderThan.Unix())
	sessionIDs, err := r.client.ZRangeByScore(ctx, finishedKey, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return 0, err
	}
	for _, id := range sessionIDs {
		r.client.Del(ctx, sessionKey(id), gamesKey(id), behaviorKey(id))
	}
	if len(sessionIDs) > 0 {
		if err := r.client.ZRemRangeByScore(ctx, finishedKey, "-inf", cutoff).Err(); err != nil {
			return len(sessionIDs), err
		}
	}
	return len(sessionIDs), nil
}

func (r *Redis) FindQuestionByID(ctx context.Context, questionID string) (*models.ChallengeQuestion, error) {
	return r.content.FindQuestionByID(ctx, questionID)
}

func (r *Redis) FindRandomQuestion(ctx context.Context, artistID string, excludeIDs []string) (*models.ChallengeQuestion, error) {
	return r.content.FindRandomQuestion(ctx, artistID, excludeIDs)
}

func (r *Redis) AppendGameResult(ctx context.Context, result *models.GameResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, gamesKey(result.SessionID), data).Err()
}

// CommitGameResult appends the result and rewrites the session in one
// transaction so a scored answer and its trust effect land together.
func (r *Redis) CommitGameResult(ctx context.Context, result *models.GameResult, session *models.QueueSession) error {
	resultData, err := json.Marshal(result)
	if err != nil {
		return err
	}
	sessionData, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, gamesKey(result.SessionID), resultData)
		pipe.Set(ctx, sessionKey(session.SessionID), sessionData, 0)
		pipe.ZAdd(ctx, activityKey, redis.Z{
			Score:  float64(session.LastActivity.Unix()),
			Member: session.SessionID,
		})
		return nil
	})
	return err
}

func (r *Redis) GameResultsBySession(ctx context.Context, sessionID string, limit int) ([]*models.GameResult, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	entries, err := r.client.LRange(ctx, gamesKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*models.GameResult, 0, len(entries))
	for _, entry := range entries {
		var result models.GameResult
		if err := json.Unmarshal([]byte(entry), &result); err != nil {
			continue
		}
		results = append(results, &result)
	}
	return results, nil
}

func (r *Redis) AppendBehavioralEvents(ctx context.Context, events []*models.BehavioralEvent) error {
	if len(events) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, event := range events {
			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			key := behaviorKey(event.SessionID)
			pipe.RPush(ctx, key, data)
			pipe.LTrim(ctx, key, -int64(BehaviorWindow), -1)
		}
		return nil
	})
	return err
}

func (r *Redis) BehavioralEventsBySession(ctx context.Context, sessionID string, limit int) ([]*models.BehavioralEvent, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	entries, err := r.client.LRange(ctx, behaviorKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]*models.BehavioralEvent, 0, len(entries))
	for _, entry := range entries {
		var event models.BehavioralEvent
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}
