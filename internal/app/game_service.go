package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hifdh-quest-service/internal/domain"
	"hifdh-quest-service/internal/metrics"
)

// SessionRepository abstracts how game sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(sessionID string) *GameSession
	Get(sessionID string) (*GameSession, bool)
	// Touch extends the liveness of a session that is still in use.
	Touch(ctx context.Context, sessionID string) error
	// Sweep retires sessions whose liveness lapsed and returns how many.
	Sweep(ctx context.Context) int
}

// VerseRepository loads verse banks (from cache/backing store).
type VerseRepository interface {
	GetBank(ctx context.Context, bankID string) (domain.VerseBank, error)
}

// RoundRecorder keeps ended rounds for later review.
type RoundRecorder interface {
	RecordRound(ctx context.Context, summary domain.RoundSummary) error
}

// RoundRecorders fans a summary out to several recorders.
type RoundRecorders []RoundRecorder

func (r RoundRecorders) RecordRound(ctx context.Context, summary domain.RoundSummary) error {
	var errs []error
	for _, recorder := range r {
		if err := recorder.RecordRound(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GameService contains the buzzer game use cases.
type GameService struct {
	sessions SessionRepository
	verses   VerseRepository
	events   EventChannel
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewGameService(store SessionRepository, verses VerseRepository, events EventChannel, logger zerolog.Logger, m *metrics.Metrics) *GameService {
	return &GameService{
		sessions: store,
		verses:   verses,
		events:   events,
		logger:   logger,
		metrics:  m,
	}
}

// Join registers or reconnects a participant and returns the state to resync from.
func (s *GameService) Join(ctx context.Context, sessionID, participantID, displayName string) (domain.SessionSnapshot, error) {
	session := s.sessions.GetOrCreate(sessionID)
	// Preload the bank; sessions over an unknown bank are useless.
	if _, err := s.verses.GetBank(ctx, session.Settings().BankID); err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("load verse bank: %w", err)
	}
	for !session.attach() {
		// Retired by a sweep after the lookup; the store already forgot it.
		session = s.sessions.GetOrCreate(sessionID)
	}
	s.touch(ctx, sessionID)
	if participantID == "" {
		return session.snapshot(), nil
	}
	return session.join(ctx, participantID, displayName), nil
}

// Leave releases a connection opened by Join. The session and its scores
// stay until Sweep finds it idle past its liveness.
func (s *GameService) Leave(ctx context.Context, sessionID, participantID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	if participantID != "" {
		session.leave(ctx, participantID)
	}
	session.detach()
	s.touch(ctx, sessionID)
}

// Sweep retires idle sessions once.
func (s *GameService) Sweep(ctx context.Context) int {
	n := s.sessions.Sweep(ctx)
	if n > 0 {
		s.logger.Info().Int("sessions", n).Msg("retired idle sessions")
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *GameService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *GameService) touch(ctx context.Context, sessionID string) {
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("refresh session liveness")
	}
}

// Heartbeat marks liveness only; it has no effect on rounds.
func (s *GameService) Heartbeat(ctx context.Context, sessionID, participantID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := session.heartbeat(ctx, participantID); err != nil {
		return err
	}
	s.touch(ctx, sessionID)
	return nil
}

// StartRound releases a new round. Starting while a round runs is refused
// so duplicate requests never reset it.
func (s *GameService) StartRound(ctx context.Context, sessionID string, req StartRoundRequest) (domain.Round, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Round{}, domain.ErrSessionNotFound
	}
	bank, err := s.verses.GetBank(ctx, session.Settings().BankID)
	if err != nil {
		return domain.Round{}, fmt.Errorf("load verse bank: %w", err)
	}
	round, err := session.startRound(ctx, bank, req)
	if err != nil {
		s.reject(sessionID, "START_ROUND", err)
		return domain.Round{}, err
	}
	return round, nil
}

// Buzz submits a participant to the arbitration queue.
func (s *GameService) Buzz(ctx context.Context, sessionID, participantID, roundID string, clientElapsed float64) (BuzzResult, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return BuzzResult{}, domain.ErrSessionNotFound
	}
	res, err := session.buzz(ctx, participantID, roundID, clientElapsed)
	if err != nil {
		s.reject(sessionID, "BUZZ", err)
		return res, err
	}
	return res, nil
}

// SubmitAnswer stores the free-text answer of a queued participant for the admin.
func (s *GameService) SubmitAnswer(_ context.Context, sessionID, participantID, roundID, text string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := session.submitAnswer(participantID, roundID, text); err != nil {
		s.reject(sessionID, "SUBMIT_ANSWER", err)
		return err
	}
	return nil
}

// ValidateAnswer judges the current turn.
func (s *GameService) ValidateAnswer(ctx context.Context, sessionID string, req ValidateRequest) (TurnOutcome, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return TurnOutcome{}, domain.ErrSessionNotFound
	}
	outcome, err := session.validateAnswer(ctx, req)
	if err != nil {
		s.reject(sessionID, "VALIDATE_ANSWER", err)
		return TurnOutcome{}, err
	}
	return outcome, nil
}

// EndRound force-ends the named round. A stale id is a conflict, not a failure.
func (s *GameService) EndRound(ctx context.Context, sessionID, roundID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := session.endRound(ctx, roundID); err != nil {
		s.reject(sessionID, "END_ROUND", err)
		return err
	}
	return nil
}

// Snapshot returns the authoritative state of a session.
func (s *GameService) Snapshot(_ context.Context, sessionID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return session.snapshot(), nil
}

// Subscribe opens a feed of the session's events. The caller must Close it.
func (s *GameService) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.events.Subscribe(ctx, sessionID)
}

// reject logs a protocol violation. These never abort the round.
func (s *GameService) reject(sessionID, request string, err error) {
	code := rejectionCode(err)
	s.metrics.RecordRejection(request, code)
	s.logger.Warn().Err(err).Str("session_id", sessionID).Str("request", request).
		Str("code", code).Msg("request rejected")
}
