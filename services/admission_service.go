package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/TheeGreenGenie/ticket-leader/internal/status"
	"github.com/TheeGreenGenie/ticket-leader/models"
	"github.com/TheeGreenGenie/ticket-leader/store"
)

// RepeatedFailureContext is handed to the escalation hook when one client
// keeps failing the admission challenge.
type RepeatedFailureContext struct {
	EventID  string
	IP       string
	Failures int
}

// AdmissionService gates queue entry behind a trivia challenge and an
// IP-abuse heuristic. Failing the challenge never creates a session;
// tripping the IP heuristic admits the session flagged rather than
// rejecting it.
type AdmissionService struct {
	store       store.Store
	ipWindow    time.Duration
	ipThreshold int
	now         func() time.Time

	// onRepeatedFailure is the escalation hook for step-up verification.
	// The gate itself only counts failures and fires the hook.
	onRepeatedFailure func(RepeatedFailureContext)

	mu    sync.Mutex
	gates map[string]*gateState
}

type gateState struct {
	lastIssuedID string
	failures     int
	updatedAt    time.Time
}

const repeatedFailureThreshold = 3

func NewAdmissionService(st store.Store, ipWindow time.Duration, ipThreshold int) *AdmissionService {
	if ipWindow <= 0 {
		ipWindow = 15 * time.Minute
	}
	if ipThreshold <= 0 {
		ipThreshold = 3
	}
	return &AdmissionService{
		store:       st,
		ipWindow:    ipWindow,
		ipThreshold: ipThreshold,
		now:         time.Now,
		gates:       make(map[string]*gateState),
	}
}

// OnRepeatedFailure registers the step-up escalation hook.
func (a *AdmissionService) OnRepeatedFailure(fn func(RepeatedFailureContext)) {
	a.onRepeatedFailure = fn
}

func gateKey(eventID, ip string) string { return eventID + "|" + ip }

// freshQuestion prefers a question the client has not just seen. An artist
// with a single question makes that impossible; reissuing the same question
// then beats making the event unjoinable, so the exclusion is dropped.
func (a *AdmissionService) freshQuestion(ctx context.Context, artistID string, exclude []string) (*models.ChallengeQuestion, error) {
	question, err := a.store.FindRandomQuestion(ctx, artistID, exclude)
	if errors.Is(err, status.ErrQuestionNotFound) && len(exclude) > 0 {
		slog.Warn("question pool exhausted by exclusion, reissuing", "artist_id", artistID)
		return a.store.FindRandomQuestion(ctx, artistID, nil)
	}
	return question, err
}

func (a *AdmissionService) gate(eventID, ip string) *gateState {
	key := gateKey(eventID, ip)
	state, ok := a.gates[key]
	if !ok {
		state = &gateState{}
		a.gates[key] = state
	}
	return state
}

// IssueChallenge picks a random question for the event's artist, never
// repeating the question this client saw last. The correct answer stays
// server-side.
func (a *AdmissionService) IssueChallenge(ctx context.Context, eventID, ip string) (*models.ChallengeQuestion, error) {
	event, err := a.store.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	state := a.gate(eventID, ip)
	var exclude []string
	if state.lastIssuedID != "" {
		exclude = []string{state.lastIssuedID}
	}
	a.mu.Unlock()

	question, err := a.freshQuestion(ctx, event.ArtistID, exclude)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	state.lastIssuedID = question.ID
	state.updatedAt = a.now()
	a.mu.Unlock()

	return question, nil
}

// AdmissionDecision is the gate's verdict for one join attempt.
type AdmissionDecision struct {
	Flagged bool
	// FreshChallenge accompanies a ChallengeFailed or ChallengeRequired
	// outcome so the client can retry without a second round trip.
	FreshChallenge *models.ChallengeQuestion
}

// TryAdmit verifies the challenge answer and computes the IP-abuse
// signal. On ChallengeRequired or ChallengeFailed no session is created
// and the returned decision carries a fresh question; on success the
// caller forwards the flagged verdict to the queue.
func (a *AdmissionService) TryAdmit(ctx context.Context, eventID, questionID, answer, ip string) (*AdmissionDecision, error) {
	if questionID == "" || answer == "" {
		fresh, issueErr := a.IssueChallenge(ctx, eventID, ip)
		if issueErr != nil {
			return nil, issueErr
		}
		return &AdmissionDecision{FreshChallenge: fresh}, status.ErrChallengeRequired
	}

	question, err := a.store.FindQuestionByID(ctx, questionID)
	if err != nil {
		return nil, err
	}

	answerIndex, convErr := strconv.Atoi(answer)
	if convErr != nil || answerIndex != question.CorrectAnswer {
		return a.challengeFailed(ctx, eventID, questionID, ip)
	}

	a.mu.Lock()
	state := a.gate(eventID, ip)
	state.failures = 0
	state.updatedAt = a.now()
	a.mu.Unlock()

	recent, err := a.store.CountRecentByIP(ctx, eventID, ip, a.ipWindow)
	if err != nil {
		// the IP heuristic is best-effort; a counting failure never
		// blocks an otherwise valid admission
		slog.Warn("ip abuse check failed", "event_id", eventID, "error", err)
		return &AdmissionDecision{}, nil
	}

	decision := &AdmissionDecision{Flagged: recent >= a.ipThreshold}
	if decision.Flagged {
		slog.Info("admitting flagged session", "event_id", eventID, "recent_ip_sessions", recent)
	}
	return decision, nil
}

func (a *AdmissionService) challengeFailed(ctx context.Context, eventID, failedQuestionID, ip string) (*AdmissionDecision, error) {
	event, err := a.store.FindEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	state := a.gate(eventID, ip)
	state.failures++
	failures := state.failures
	state.updatedAt = a.now()
	a.mu.Unlock()

	if failures >= repeatedFailureThreshold && a.onRepeatedFailure != nil {
		a.onRepeatedFailure(RepeatedFailureContext{EventID: eventID, IP: ip, Failures: failures})
	}

	// reissue excluding the question that was just failed
	fresh, issueErr := a.freshQuestion(ctx, event.ArtistID, []string{failedQuestionID})
	if issueErr != nil {
		return nil, issueErr
	}

	a.mu.Lock()
	state.lastIssuedID = fresh.ID
	a.mu.Unlock()

	return &AdmissionDecision{FreshChallenge: fresh}, status.ErrChallengeFailed
}
