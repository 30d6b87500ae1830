package status

import "errors"

// Queue domain errors. Handlers translate these to wire responses;
// anything not listed here crossing the service boundary is an
// infrastructure failure.
var (
	ErrEventNotFound     = errors.New("queue: event not found")
	ErrEventInactive     = errors.New("queue: event queue is not active")
	ErrQueueAtCapacity   = errors.New("queue: queue is at capacity")
	ErrSessionNotFound   = errors.New("queue: session not found")
	ErrChallengeRequired = errors.New("admission: challenge answer required")
	ErrChallengeFailed   = errors.New("admission: challenge answer incorrect")
	ErrQuestionNotFound  = errors.New("admission: question not found")
	ErrInvalidAnswer     = errors.New("games: submission is missing required fields")
)
