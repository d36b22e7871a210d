package domain

// RoundState is the lifecycle position of the current round of a session.
type RoundState string

const (
	RoundIdle           RoundState = "idle"            // no round yet, or the last one was superseded
	RoundActive         RoundState = "active"          // timer running, nobody has buzzed
	RoundAwaitingAnswer RoundState = "awaiting_answer" // at least one buzz holds or held the turn
	RoundStateEnded     RoundState = "ended"
)

func (s RoundState) String() string {
	return string(s)
}

// Running reports whether the round still accepts protocol traffic.
func (s RoundState) Running() bool {
	return s == RoundActive || s == RoundAwaitingAnswer
}

// CanTransitionTo checks if a transition from the current state to target is valid.
func (s RoundState) CanTransitionTo(target RoundState) bool {
	validTransitions := map[RoundState][]RoundState{
		RoundIdle:           {RoundActive},
		RoundActive:         {RoundAwaitingAnswer, RoundStateEnded},
		RoundAwaitingAnswer: {RoundAwaitingAnswer, RoundStateEnded},
		RoundStateEnded:     {RoundActive, RoundIdle},
	}

	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}
