package app

import "hifdh-quest-service/internal/domain"

// DefaultTotalBuzzesAllowed is the queue capacity when none is configured.
const DefaultTotalBuzzesAllowed = 3

// BuzzerQueue is the append-only arbitration list of one round. It is not
// safe for concurrent use; the owning GameSession serializes every call.
//
// Judging always consumes the head, so judged attempts form a prefix of
// the list and the turn is attempts[judged].
type BuzzerQueue struct {
	capacity int
	attempts []domain.BuzzAttempt
	index    map[string]int
	judged   int
}

func NewBuzzerQueue(capacity int) *BuzzerQueue {
	if capacity <= 0 {
		capacity = DefaultTotalBuzzesAllowed
	}
	return &BuzzerQueue{
		capacity: capacity,
		index:    make(map[string]int),
	}
}

// Submit appends an attempt in receipt order and stamps its rank.
// Duplicates are rejected, never re-ranked.
func (q *BuzzerQueue) Submit(attempt domain.BuzzAttempt) (domain.BuzzAttempt, int, error) {
	if _, ok := q.index[attempt.ParticipantID]; ok {
		return domain.BuzzAttempt{}, q.Remaining(), domain.ErrAlreadyBuzzed
	}
	if q.Full() {
		return domain.BuzzAttempt{}, 0, domain.ErrQueueFull
	}
	attempt.Rank = len(q.attempts) + 1
	attempt.Judged = false
	attempt.Correct = nil
	q.index[attempt.ParticipantID] = len(q.attempts)
	q.attempts = append(q.attempts, attempt)
	return attempt, q.Remaining(), nil
}

func (q *BuzzerQueue) Len() int {
	return len(q.attempts)
}

func (q *BuzzerQueue) Capacity() int {
	return q.capacity
}

// Remaining is the number of free slots.
func (q *BuzzerQueue) Remaining() int {
	if left := q.capacity - len(q.attempts); left > 0 {
		return left
	}
	return 0
}

func (q *BuzzerQueue) Full() bool {
	return len(q.attempts) >= q.capacity
}

// Contains reports whether the participant already holds a slot.
func (q *BuzzerQueue) Contains(participantID string) bool {
	_, ok := q.index[participantID]
	return ok
}

// Head returns the earliest attempt not judged yet.
func (q *BuzzerQueue) Head() (domain.BuzzAttempt, bool) {
	if q.judged >= len(q.attempts) {
		return domain.BuzzAttempt{}, false
	}
	return q.attempts[q.judged], true
}

// Pending returns the unjudged attempts in rank order.
func (q *BuzzerQueue) Pending() []domain.BuzzAttempt {
	return append([]domain.BuzzAttempt(nil), q.attempts[q.judged:]...)
}

// Attempt looks up a participant's attempt.
func (q *BuzzerQueue) Attempt(participantID string) (domain.BuzzAttempt, bool) {
	i, ok := q.index[participantID]
	if !ok {
		return domain.BuzzAttempt{}, false
	}
	return q.attempts[i], true
}

// RecordAnswer stores the free-text answer of a queued participant.
func (q *BuzzerQueue) RecordAnswer(participantID, text string) bool {
	i, ok := q.index[participantID]
	if !ok {
		return false
	}
	q.attempts[i].AnswerText = text
	return true
}

// judgeHead marks the head as judged and returns it.
func (q *BuzzerQueue) judgeHead(correct bool) (domain.BuzzAttempt, bool) {
	if q.judged >= len(q.attempts) {
		return domain.BuzzAttempt{}, false
	}
	head := &q.attempts[q.judged]
	head.Judged = true
	head.Correct = &correct
	q.judged++
	return *head, true
}

// discardPending drops every unjudged attempt. Their participants stay
// indexed so they cannot buzz again in this round.
func (q *BuzzerQueue) discardPending() int {
	dropped := len(q.attempts) - q.judged
	q.attempts = q.attempts[:q.judged]
	return dropped
}

// Snapshot copies the full history of the round, judged attempts included.
func (q *BuzzerQueue) Snapshot() []domain.BuzzAttempt {
	return append([]domain.BuzzAttempt(nil), q.attempts...)
}
