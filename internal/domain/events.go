package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the discriminator tag carried by every channel message.
type EventType string

const (
	EventRoundStarted     EventType = "ROUND_STARTED"
	EventBuzzerPressed    EventType = "BUZZER_PRESSED"
	EventTimerStopped     EventType = "TIMER_STOPPED"
	EventAnswerValidated  EventType = "ANSWER_VALIDATED"
	EventScoreboardUpdate EventType = "SCOREBOARD_UPDATE"
	EventRoundEnded       EventType = "ROUND_ENDED"
	EventGameEnded        EventType = "GAME_ENDED"

	// Point-to-point messages, never broadcast on the session topic.
	EventSessionSnapshot EventType = "SESSION_SNAPSHOT"
	EventRequestRejected EventType = "REQUEST_REJECTED"
)

// TimerStopReason explains why buzzing closed.
type TimerStopReason string

const (
	StopTimerExpired   TimerStopReason = "TIMER_EXPIRED"
	StopAllSlotsFilled TimerStopReason = "ALL_SLOTS_FILLED"
)

// RoundEndReason explains why a round reached the ended state.
type RoundEndReason string

const (
	EndCorrectAnswer   RoundEndReason = "CORRECT_ANSWER"
	EndNoCorrectAnswer RoundEndReason = "NO_CORRECT_ANSWER"
	EndTimerExpired    RoundEndReason = "TIMER_EXPIRED"
	EndAdmin           RoundEndReason = "ADMIN_ENDED"
)

// Event is the closed set of messages exchanged over the event channel.
// Only types in this package implement it.
type Event interface {
	Type() EventType
	isEvent()
}

type RoundStarted struct {
	RoundID            string       `json:"roundId"`
	RoundNumber        int          `json:"roundNumber"`
	TotalRounds        *int         `json:"totalRounds,omitempty"`
	QuestionType       QuestionType `json:"questionType"`
	Prompt             Prompt       `json:"prompt"`
	TimerSeconds       int          `json:"timerSeconds"`
	TimerStartsAt      time.Time    `json:"timerStartsAt"`
	TotalBuzzesAllowed int          `json:"totalBuzzesAllowed"`

	// BlockedParticipantIDs may not buzz in this round.
	BlockedParticipantIDs []string `json:"blockedParticipantIds,omitempty"`
}

type BuzzerPressed struct {
	RoundID              string    `json:"roundId"`
	ParticipantID        string    `json:"participantId"`
	ParticipantName      string    `json:"participantName"`
	Rank                 int       `json:"rank"`
	ClientElapsedSeconds float64   `json:"clientElapsedSeconds"`
	TotalBuzzesAllowed   int       `json:"totalBuzzesAllowed"`
	RemainingSlots       int       `json:"remainingSlots"`
	ReceivedAt           time.Time `json:"receivedAt"`
}

type TimerStopped struct {
	RoundID     string          `json:"roundId"`
	Reason      TimerStopReason `json:"reason"`
	TotalBuzzes int             `json:"totalBuzzes"`
}

type AnswerValidated struct {
	RoundID           string         `json:"roundId"`
	ParticipantID     string         `json:"participantId"`
	ParticipantName   string         `json:"participantName"`
	Correct           bool           `json:"correct"`
	PointsAwarded     int            `json:"pointsAwarded"`
	TotalScore        int            `json:"totalScore"`
	Breakdown         ScoreBreakdown `json:"breakdown"`
	NextParticipantID string         `json:"nextParticipantId,omitempty"`
}

type ScoreboardUpdate struct {
	Entries []ScoreboardEntry `json:"entries"`
}

type RoundEnded struct {
	RoundID  string         `json:"roundId"`
	Reason   RoundEndReason `json:"reason"`
	WinnerID string         `json:"winnerId,omitempty"`
}

// GameEnded follows the ROUND_ENDED of the last configured round.
type GameEnded struct {
	RoundsPlayed int               `json:"roundsPlayed"`
	Scoreboard   []ScoreboardEntry `json:"scoreboard"`
	WinnerID     string            `json:"winnerId,omitempty"`
}

// SessionSnapshot is sent to a connection when it (re)subscribes so it can
// rebuild its projection instead of assuming continuity.
type SessionSnapshot struct {
	State              RoundState        `json:"state"`
	Round              *Round            `json:"round,omitempty"`
	Queue              []BuzzAttempt     `json:"queue"`
	BuzzingOpen        bool              `json:"buzzingOpen"`
	TotalBuzzesAllowed int               `json:"totalBuzzesAllowed"`
	Scoreboard         []ScoreboardEntry `json:"scoreboard"`
	ServerTime         time.Time         `json:"serverTime"`
	GameOver           bool              `json:"gameOver,omitempty"`
}

// RequestRejected tells a single sender its request was not applied.
type RequestRejected struct {
	Request string `json:"request"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (RoundStarted) Type() EventType     { return EventRoundStarted }
func (BuzzerPressed) Type() EventType    { return EventBuzzerPressed }
func (TimerStopped) Type() EventType     { return EventTimerStopped }
func (AnswerValidated) Type() EventType  { return EventAnswerValidated }
func (ScoreboardUpdate) Type() EventType { return EventScoreboardUpdate }
func (RoundEnded) Type() EventType       { return EventRoundEnded }
func (GameEnded) Type() EventType        { return EventGameEnded }
func (SessionSnapshot) Type() EventType  { return EventSessionSnapshot }
func (RequestRejected) Type() EventType  { return EventRequestRejected }

func (RoundStarted) isEvent()     {}
func (BuzzerPressed) isEvent()    {}
func (TimerStopped) isEvent()     {}
func (AnswerValidated) isEvent()  {}
func (ScoreboardUpdate) isEvent() {}
func (RoundEnded) isEvent()       {}
func (GameEnded) isEvent()        {}
func (SessionSnapshot) isEvent()  {}
func (RequestRejected) isEvent()  {}

// Message is an event addressed to a session topic.
type Message struct {
	SessionID string
	Timestamp time.Time
	Event     Event
}

type envelope struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON writes the tagged wire envelope.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Event == nil {
		return nil, fmt.Errorf("marshal message: nil event")
	}
	payload, err := json.Marshal(m.Event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.Event.Type(), err)
	}
	return json.Marshal(envelope{
		Type:      m.Event.Type(),
		SessionID: m.SessionID,
		Timestamp: m.Timestamp,
		Payload:   payload,
	})
}

// UnmarshalJSON decodes the envelope and dispatches on its tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	event, err := decodeEvent(env.Type, env.Payload)
	if err != nil {
		return err
	}
	m.SessionID = env.SessionID
	m.Timestamp = env.Timestamp
	m.Event = event
	return nil
}

func decodeEvent(tag EventType, payload json.RawMessage) (Event, error) {
	switch tag {
	case EventRoundStarted:
		return decodeAs[RoundStarted](tag, payload)
	case EventBuzzerPressed:
		return decodeAs[BuzzerPressed](tag, payload)
	case EventTimerStopped:
		return decodeAs[TimerStopped](tag, payload)
	case EventAnswerValidated:
		return decodeAs[AnswerValidated](tag, payload)
	case EventScoreboardUpdate:
		return decodeAs[ScoreboardUpdate](tag, payload)
	case EventRoundEnded:
		return decodeAs[RoundEnded](tag, payload)
	case EventGameEnded:
		return decodeAs[GameEnded](tag, payload)
	case EventSessionSnapshot:
		return decodeAs[SessionSnapshot](tag, payload)
	case EventRequestRejected:
		return decodeAs[RequestRejected](tag, payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, tag)
	}
}

func decodeAs[T Event](tag EventType, payload json.RawMessage) (Event, error) {
	var ev T
	if len(payload) == 0 {
		return nil, fmt.Errorf("decode %s: empty payload", tag)
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", tag, err)
	}
	return ev, nil
}

// EncodeMessage serializes a message for the wire.
func EncodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a wire message.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
