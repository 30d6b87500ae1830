package models

import (
	"time"
)

type GameType string

const (
	GameTrivia GameType = "trivia"
	GamePoll   GameType = "poll"
)

// GameResult is an append-only record of one trivia or poll answer.
// Immutable once written; recomputation replays these records.
type GameResult struct {
	ID               string   `json:"id"`
	SessionID        string   `json:"session_id"`
	GameType         GameType `json:"game_type"`
	QuestionID       string   `json:"question_id"`
	UserAnswer       string   `json:"user_answer"`
	// IsCorrect is nil for polls, which have no right answer.
	IsCorrect        *bool     `json:"is_correct"`
	ResponseTimeMs   int       `json:"response_time_ms"`
	TrustBoostEarned int       `json:"trust_boost_earned"`
	PlayedAt         time.Time `json:"played_at"`
}

type BehavioralEventType string

const (
	BehaviorMouseMove BehavioralEventType = "mouse_move"
	BehaviorScroll    BehavioralEventType = "scroll"
	BehaviorClick     BehavioralEventType = "click"
	BehaviorKeypress  BehavioralEventType = "keypress"
	BehaviorFocus     BehavioralEventType = "focus"
	BehaviorBlur      BehavioralEventType = "blur"
)

// BehavioralEvent is one entry in a session's append-only interaction
// stream. Scoring only ever samples the most recent window, never the
// full history.
type BehavioralEvent struct {
	ID        string              `json:"id"`
	SessionID string              `json:"session_id"`
	EventType BehavioralEventType `json:"event_type"`
	Timestamp time.Time           `json:"timestamp"`
	Data      map[string]any      `json:"data,omitempty"`
	Entropy   float64             `json:"entropy"`
}
