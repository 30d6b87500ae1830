package models

import (
	"time"
)

type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusExpired   SessionStatus = "expired"
)

type TrustLevel string

const (
	TrustBronze   TrustLevel = "bronze"
	TrustSilver   TrustLevel = "silver"
	TrustGold     TrustLevel = "gold"
	TrustPlatinum TrustLevel = "platinum"
)

// LevelOf derives the display level from a trust score. Levels are never
// stored independently of the score that produced them.
func LevelOf(score int) TrustLevel {
	switch {
	case score >= 81:
		return TrustPlatinum
	case score >= 61:
		return TrustGold
	case score >= 41:
		return TrustSilver
	default:
		return TrustBronze
	}
}

// ClampTrustScore bounds a score to the valid [0,100] range.
func ClampTrustScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

const DefaultTrustScore = 50

type BehavioralData struct {
	MouseMovements int `json:"mouse_movements"`
	ScrollEvents   int `json:"scroll_events"`
	TimeSpent      int `json:"time_spent"`
	GamesPlayed    int `json:"games_played"`
}

// LocationContext is passthrough metadata supplied by the client. It is
// displayed alongside the session but never scored.
type LocationContext struct {
	City       string  `json:"city"`
	Region     string  `json:"region"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	IsLocalFan bool    `json:"is_local_fan"`
}

type QueueSession struct {
	SessionID       string           `json:"session_id"`
	EventID         string           `json:"event_id"`
	UserID          string           `json:"user_id,omitempty"`
	JoinedAt        time.Time        `json:"joined_at"`
	CurrentPosition int              `json:"current_position"`
	TrustScore      int              `json:"trust_score"`
	TrustLevel      TrustLevel       `json:"trust_level"`
	Status          SessionStatus    `json:"status"`
	Behavioral      BehavioralData   `json:"behavioral_data"`
	LastActivity    time.Time        `json:"last_activity"`
	IPAddress       string           `json:"ip_address,omitempty"`
	IsFlagged       bool             `json:"is_flagged"`
	FlagReasons     []string         `json:"flag_reasons,omitempty"`
	Location        *LocationContext `json:"location,omitempty"`
}

// ApplyTrustDelta adds a (possibly negative) boost to the trust score and
// keeps the derived level consistent with the clamped result.
func (s *QueueSession) ApplyTrustDelta(delta int) {
	s.TrustScore = ClampTrustScore(s.TrustScore + delta)
	s.TrustLevel = LevelOf(s.TrustScore)
}

// Flag marks the session suspicious. Flags are sticky for the life of the
// session and every flag carries a reason.
func (s *QueueSession) Flag(reason string) {
	s.IsFlagged = true
	s.FlagReasons = append(s.FlagReasons, reason)
}
