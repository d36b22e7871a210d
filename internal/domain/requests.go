package domain

import (
	"encoding/json"
	"fmt"
)

// RequestType tags an inbound client request.
type RequestType string

const (
	RequestStartRound     RequestType = "START_ROUND"
	RequestBuzz           RequestType = "BUZZ"
	RequestSubmitAnswer   RequestType = "SUBMIT_ANSWER"
	RequestValidateAnswer RequestType = "VALIDATE_ANSWER"
	RequestEndRound       RequestType = "END_ROUND"
	RequestHeartbeat      RequestType = "HEARTBEAT"
	RequestSync           RequestType = "SYNC"
)

// AdminOnly reports whether only admin connections may send the request.
func (r RequestType) AdminOnly() bool {
	switch r {
	case RequestStartRound, RequestValidateAnswer, RequestEndRound:
		return true
	}
	return false
}

// Request is the envelope of every client to server message.
type Request struct {
	Type    RequestType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRequest wraps a payload into a request envelope.
func NewRequest(typ RequestType, payload any) (Request, error) {
	if payload == nil {
		return Request{Type: typ}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Request{Type: typ, Payload: data}, nil
}

type StartRoundPayload struct {
	QuestionType QuestionType `json:"questionType" validate:"omitempty,oneof=guess_surah guess_meaning guess_next_ayat guess_previous_ayat guess_reciter"`
	SurahFrom    int          `json:"surahFrom,omitempty" validate:"omitempty,min=1,max=114"`
	SurahTo      int          `json:"surahTo,omitempty" validate:"omitempty,min=1,max=114"`
	Reciter      string       `json:"reciter,omitempty" validate:"omitempty,max=64"`
}

type BuzzPayload struct {
	RoundID       string  `json:"roundId" validate:"required"`
	ClientElapsed float64 `json:"clientElapsed" validate:"gte=0"`
}

type SubmitAnswerPayload struct {
	RoundID string `json:"roundId" validate:"required"`
	Text    string `json:"text" validate:"required,max=500"`
}

type ValidateAnswerPayload struct {
	RoundID       string `json:"roundId" validate:"required"`
	ParticipantID string `json:"participantId" validate:"required"`
	IsCorrect     bool   `json:"isCorrect"`
	Points        int    `json:"points" validate:"gte=0,lte=1000"`
}

type EndRoundPayload struct {
	RoundID string `json:"roundId" validate:"required"`
}

type HeartbeatPayload struct {
	ParticipantID string `json:"participantId"`
}
