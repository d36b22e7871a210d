package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a game session has not been initialized.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrBankNotFound indicates the verse bank could not be loaded.
	ErrBankNotFound = errors.New("verse bank not found")
	// ErrNoVerseAvailable means every verse in range was already used this session.
	ErrNoVerseAvailable = errors.New("no unused verse available")
	// ErrInvalidQuestionType rejects unknown question types.
	ErrInvalidQuestionType = errors.New("invalid question type")

	// ErrRoundInProgress rejects a start-round while a round is active or awaiting an answer.
	ErrRoundInProgress = errors.New("round already in progress")
	// ErrRoundConflict is reported when a request names a round that is not the current one.
	ErrRoundConflict = errors.New("round does not match the current round")
	// ErrSessionComplete rejects a start-round once the configured number of rounds was played.
	ErrSessionComplete = errors.New("all rounds of the session were played")
	// ErrNoActiveRound is returned when no round is running.
	ErrNoActiveRound = errors.New("no active round")

	// ErrBuzzingClosed rejects buzzes outside the buzz window.
	ErrBuzzingClosed = errors.New("buzzing is closed for this round")
	// ErrRoundMismatch rejects buzzes that carry a stale round id.
	ErrRoundMismatch = errors.New("buzz targets a different round")
	// ErrAlreadyBuzzed rejects a second buzz from the same participant.
	ErrAlreadyBuzzed = errors.New("participant already buzzed this round")
	// ErrParticipantBlocked rejects buzzes from penalized participants.
	ErrParticipantBlocked = errors.New("participant is blocked this round")
	// ErrQueueFull rejects buzzes once every slot is taken.
	ErrQueueFull = errors.New("buzzer queue is full")

	// ErrNotCurrentTurn is returned when judging anyone other than the head of the queue.
	ErrNotCurrentTurn = errors.New("participant does not hold the current turn")
	// ErrNoActiveTurn is returned when there is nobody to judge.
	ErrNoActiveTurn = errors.New("no participant is awaiting judgment")

	// ErrForbidden rejects admin requests from player connections.
	ErrForbidden = errors.New("request requires the admin role")
	// ErrInvalidRequest rejects inbound requests that cannot be decoded or fail validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownEvent is returned when decoding an envelope with an unknown tag.
	ErrUnknownEvent = errors.New("unknown event type")
)
