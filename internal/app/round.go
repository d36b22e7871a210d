package app

import (
	"time"

	"hifdh-quest-service/internal/domain"
)

// roundMachine is the authoritative state of the current round of one
// session. Every method must be called with the session lock held.
type roundMachine struct {
	state       domain.RoundState
	round       *domain.Round
	queue       *BuzzerQueue
	turns       *TurnCoordinator
	buzzingOpen bool
	policy      TurnPolicy
}

func newRoundMachine(capacity int) *roundMachine {
	return &roundMachine{
		state:  domain.RoundIdle,
		queue:  NewBuzzerQueue(capacity),
		policy: TurnPolicyFinishPendingTurn,
	}
}

func (m *roundMachine) transition(target domain.RoundState) bool {
	if !m.state.CanTransitionTo(target) {
		return false
	}
	m.state = target
	return true
}

// start installs a fresh round and an empty queue. A running round is never reset.
func (m *roundMachine) start(round domain.Round, capacity int) error {
	if m.state.Running() {
		return domain.ErrRoundInProgress
	}
	if m.state == domain.RoundStateEnded {
		m.state = domain.RoundIdle
	}
	if !m.transition(domain.RoundActive) {
		return domain.ErrRoundInProgress
	}
	m.round = &round
	m.queue = NewBuzzerQueue(capacity)
	m.turns = NewTurnCoordinator(m.queue)
	m.buzzingOpen = true
	return nil
}

// current returns the running round or ErrNoActiveRound.
func (m *roundMachine) current(roundID string) (*domain.Round, error) {
	if m.round == nil || !m.state.Running() {
		return nil, domain.ErrNoActiveRound
	}
	if roundID != "" && roundID != m.round.ID {
		return nil, domain.ErrRoundConflict
	}
	return m.round, nil
}

// expired reports whether the buzz window of the running round is over at now.
func (m *roundMachine) expired(now time.Time) bool {
	return m.round != nil && m.buzzingOpen && !now.Before(m.round.Deadline())
}

// buzz runs the arbitration checks in order and appends the attempt.
func (m *roundMachine) buzz(attempt domain.BuzzAttempt, blocked bool) (domain.BuzzAttempt, int, error) {
	if m.round == nil || !m.state.Running() {
		return domain.BuzzAttempt{}, 0, domain.ErrBuzzingClosed
	}
	if !m.buzzingOpen {
		if m.queue.Full() {
			return domain.BuzzAttempt{}, 0, domain.ErrQueueFull
		}
		return domain.BuzzAttempt{}, 0, domain.ErrBuzzingClosed
	}
	if attempt.RoundID != m.round.ID {
		return domain.BuzzAttempt{}, 0, domain.ErrRoundMismatch
	}
	if m.queue.Contains(attempt.ParticipantID) {
		return domain.BuzzAttempt{}, m.queue.Remaining(), domain.ErrAlreadyBuzzed
	}
	if blocked {
		return domain.BuzzAttempt{}, m.queue.Remaining(), domain.ErrParticipantBlocked
	}
	accepted, remaining, err := m.queue.Submit(attempt)
	if err != nil {
		return domain.BuzzAttempt{}, remaining, err
	}
	if m.state == domain.RoundActive {
		m.transition(domain.RoundAwaitingAnswer)
	}
	return accepted, remaining, nil
}

// closeBuzzing stops accepting buzzes. It reports false when already closed.
func (m *roundMachine) closeBuzzing() bool {
	if !m.buzzingOpen {
		return false
	}
	m.buzzingOpen = false
	return true
}

// pendingTurn reports whether an accepted attempt still waits for judgment.
func (m *roundMachine) pendingTurn() bool {
	if m.turns == nil {
		return false
	}
	_, ok := m.turns.Current()
	return ok
}

func (m *roundMachine) judge(participantID string, correct bool) (TurnOutcome, error) {
	if m.state != domain.RoundAwaitingAnswer {
		if m.state == domain.RoundActive {
			return TurnOutcome{}, domain.ErrNoActiveTurn
		}
		return TurnOutcome{}, domain.ErrNoActiveRound
	}
	return m.turns.Judge(participantID, correct)
}

// end closes the round. It reports false if the round was not running.
func (m *roundMachine) end(now time.Time) bool {
	if m.round == nil || !m.transition(domain.RoundStateEnded) {
		return false
	}
	m.buzzingOpen = false
	endedAt := now
	m.round.EndedAt = &endedAt
	return true
}
