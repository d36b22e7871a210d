package app

import "hifdh-quest-service/internal/domain"

// DefaultMaxConsecutiveFirstBuzzes is how many rank-1 buzzes in a row earn a one round block.
const DefaultMaxConsecutiveFirstBuzzes = 3

// FirstBuzzPenalty keeps one player from monopolizing the first slot.
type FirstBuzzPenalty struct {
	limit int
}

func NewFirstBuzzPenalty(limit int) FirstBuzzPenalty {
	if limit <= 0 {
		limit = DefaultMaxConsecutiveFirstBuzzes
	}
	return FirstBuzzPenalty{limit: limit}
}

// Record updates the streak of first-place buzzes after an accepted buzz and
// reports whether the participant just earned the block.
func (f FirstBuzzPenalty) Record(p *domain.Participant, rank int) bool {
	if rank != 1 {
		p.ConsecutiveFirstBuzzes = 0
		return false
	}
	p.ConsecutiveFirstBuzzes++
	if p.ConsecutiveFirstBuzzes < f.limit || p.BlockedNextRound {
		return false
	}
	p.BlockedNextRound = true
	p.ConsecutiveFirstBuzzes = 0
	return true
}

// Arm moves pending blocks into the round that is starting and releases
// the ones served in the previous round. It reports whether any flag changed.
func (f FirstBuzzPenalty) Arm(participants map[string]*domain.Participant) bool {
	changed := false
	for _, p := range participants {
		next := p.BlockedNextRound
		if p.BlockedThisRound != next || p.BlockedNextRound {
			changed = true
		}
		p.BlockedThisRound = next
		p.BlockedNextRound = false
	}
	return changed
}
