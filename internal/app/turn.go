package app

import "hifdh-quest-service/internal/domain"

// TurnPolicy decides what timer expiry does to a turn that is still waiting
// for judgment.
type TurnPolicy string

// TurnPolicyFinishPendingTurn lets the head of the queue keep the turn after
// expiry. Expiry only stops new buzzes.
const TurnPolicyFinishPendingTurn TurnPolicy = "finish_pending_turn"

// TurnOutcome is the result of one judgment.
type TurnOutcome struct {
	Judged            domain.BuzzAttempt
	Advanced          bool
	NextParticipantID string
	Terminated        bool
	Discarded         int
}

// TurnCoordinator exposes the head of the unjudged queue as the current
// answerer and advances it on judgment.
type TurnCoordinator struct {
	queue *BuzzerQueue
}

func NewTurnCoordinator(queue *BuzzerQueue) *TurnCoordinator {
	return &TurnCoordinator{queue: queue}
}

// Current returns the participant allowed to be judged, if any.
func (c *TurnCoordinator) Current() (domain.BuzzAttempt, bool) {
	return c.queue.Head()
}

// Judge resolves the current turn. A correct answer discards the rest of the
// queue and terminates the round; a wrong one hands the turn to the next
// attempt in rank order or terminates when nobody is left.
func (c *TurnCoordinator) Judge(participantID string, correct bool) (TurnOutcome, error) {
	head, ok := c.queue.Head()
	if !ok {
		return TurnOutcome{}, domain.ErrNoActiveTurn
	}
	if head.ParticipantID != participantID {
		return TurnOutcome{}, domain.ErrNotCurrentTurn
	}

	judged, _ := c.queue.judgeHead(correct)
	out := TurnOutcome{Judged: judged}
	if correct {
		out.Discarded = c.queue.discardPending()
		out.Terminated = true
		return out, nil
	}

	if next, ok := c.queue.Head(); ok {
		out.Advanced = true
		out.NextParticipantID = next.ParticipantID
		return out, nil
	}
	out.Terminated = true
	return out, nil
}
