// Package client is the player/admin side of the buzzer protocol: a mirror
// of the server round built only from received events, and a connection
// handle that keeps it fed across reconnects.
package client

import (
	"sync"
	"time"

	"hifdh-quest-service/internal/clocksync"
	"hifdh-quest-service/internal/domain"
)

// ServerState is the projection of the authoritative round. Only server
// messages write it.
type ServerState struct {
	State              domain.RoundState
	Round              *domain.Round
	Queue              []domain.BuzzAttempt
	BuzzingOpen        bool
	TotalBuzzesAllowed int
	Scoreboard         []domain.ScoreboardEntry
	EndReason          domain.RoundEndReason
	WinnerID           string
	// BlockedRoundID is the round in which the penalty keeps us from buzzing.
	BlockedRoundID string
	GameOver       bool
}

// Intent is local, advisory user input. It is overwritten by server events
// and never merged into ServerState.
type Intent struct {
	BuzzRoundID string
	BuzzedAt    time.Time
}

// View is what a UI renders.
type View struct {
	Server      ServerState
	Intent      Intent
	Buzzer      domain.BuzzerState
	CurrentTurn string
	Remaining   int
	Rejection   *domain.RequestRejected
}

// Mirror reduces server events and local intent into a View.
type Mirror struct {
	participantID string
	countdown     *clocksync.Countdown

	mu         sync.Mutex
	server     ServerState
	intent     Intent
	rejection  *domain.RequestRejected
	snapshotAt time.Time
}

// NewMirror builds an idle mirror. countdown may be nil for headless use.
func NewMirror(participantID string, countdown *clocksync.Countdown) *Mirror {
	return &Mirror{
		participantID: participantID,
		countdown:     countdown,
		server:        ServerState{State: domain.RoundIdle},
	}
}

// Apply folds one server message into the projection. Re-delivered events
// are recognised and leave the state unchanged, and broadcasts stamped
// before the last snapshot are already part of it. Countdown callbacks run
// after the mirror lock is released.
func (m *Mirror) Apply(msg domain.Message) {
	m.mu.Lock()
	adjust := m.applyLocked(msg)
	m.mu.Unlock()

	if adjust != nil && m.countdown != nil {
		adjust(m.countdown)
	}
}

// applyLocked returns the countdown adjustment the event calls for, if any.
func (m *Mirror) applyLocked(msg domain.Message) func(*clocksync.Countdown) {
	switch msg.Event.(type) {
	case domain.SessionSnapshot, domain.RequestRejected:
	default:
		if !msg.Timestamp.IsZero() && msg.Timestamp.Before(m.snapshotAt) {
			return nil
		}
	}

	switch ev := msg.Event.(type) {
	case domain.SessionSnapshot:
		return m.applySnapshotLocked(ev)
	case domain.RoundStarted:
		return m.applyRoundStartedLocked(ev)
	case domain.BuzzerPressed:
		m.applyBuzzLocked(ev)
	case domain.TimerStopped:
		if !m.isCurrentLocked(ev.RoundID) {
			return nil
		}
		m.server.BuzzingOpen = false
		if ev.Reason == domain.StopAllSlotsFilled {
			return stopCountdown
		}
	case domain.AnswerValidated:
		if !m.isCurrentLocked(ev.RoundID) {
			return nil
		}
		for i := range m.server.Queue {
			a := &m.server.Queue[i]
			if a.ParticipantID == ev.ParticipantID && !a.Judged {
				correct := ev.Correct
				a.Judged = true
				a.Correct = &correct
			}
		}
	case domain.ScoreboardUpdate:
		m.server.Scoreboard = append([]domain.ScoreboardEntry(nil), ev.Entries...)
		m.noteBlockedLocked()
	case domain.RoundEnded:
		if !m.isCurrentLocked(ev.RoundID) || m.server.State == domain.RoundStateEnded {
			return nil
		}
		m.server.State = domain.RoundStateEnded
		m.server.BuzzingOpen = false
		m.server.EndReason = ev.Reason
		m.server.WinnerID = ev.WinnerID
		endedAt := msg.Timestamp
		m.server.Round.EndedAt = &endedAt
		m.intent = Intent{}
		return stopCountdown
	case domain.GameEnded:
		m.server.GameOver = true
		m.server.Scoreboard = append([]domain.ScoreboardEntry(nil), ev.Scoreboard...)
	case domain.RequestRejected:
		rejected := ev
		m.rejection = &rejected
		if ev.Request == string(domain.RequestBuzz) {
			m.intent = Intent{}
			if ev.Code == "blocked" && m.server.Round != nil {
				m.server.BlockedRoundID = m.server.Round.ID
			}
		}
	}
	return nil
}

func (m *Mirror) applySnapshotLocked(ev domain.SessionSnapshot) func(*clocksync.Countdown) {
	m.snapshotAt = ev.ServerTime
	m.server = ServerState{
		State:              ev.State,
		Queue:              append([]domain.BuzzAttempt(nil), ev.Queue...),
		BuzzingOpen:        ev.BuzzingOpen,
		TotalBuzzesAllowed: ev.TotalBuzzesAllowed,
		Scoreboard:         append([]domain.ScoreboardEntry(nil), ev.Scoreboard...),
		GameOver:           ev.GameOver,
	}
	if ev.Round != nil {
		round := *ev.Round
		m.server.Round = &round
	}
	if m.server.State == "" {
		m.server.State = domain.RoundIdle
	}
	if m.server.Round == nil || m.intent.BuzzRoundID != m.server.Round.ID {
		m.intent = Intent{}
	}
	m.noteBlockedLocked()
	if m.server.Round != nil && m.server.BuzzingOpen {
		return resyncCountdown(m.server.Round.TimerSeconds, m.server.Round.TimerStartsAt)
	}
	return stopCountdown
}

func (m *Mirror) applyRoundStartedLocked(ev domain.RoundStarted) func(*clocksync.Countdown) {
	if m.server.Round != nil && m.server.Round.ID == ev.RoundID {
		return nil
	}
	m.server.State = domain.RoundActive
	m.server.Round = &domain.Round{
		ID:            ev.RoundID,
		Number:        ev.RoundNumber,
		TotalRounds:   ev.TotalRounds,
		QuestionType:  ev.QuestionType,
		Prompt:        ev.Prompt,
		TimerSeconds:  ev.TimerSeconds,
		TimerStartsAt: ev.TimerStartsAt,
	}
	m.server.Queue = nil
	m.server.BuzzingOpen = true
	m.server.TotalBuzzesAllowed = ev.TotalBuzzesAllowed
	m.server.EndReason = ""
	m.server.WinnerID = ""
	m.server.BlockedRoundID = ""
	for _, id := range ev.BlockedParticipantIDs {
		if id == m.participantID {
			m.server.BlockedRoundID = ev.RoundID
		}
	}
	m.intent = Intent{}
	m.rejection = nil
	return resyncCountdown(ev.TimerSeconds, ev.TimerStartsAt)
}

func (m *Mirror) applyBuzzLocked(ev domain.BuzzerPressed) {
	if !m.isCurrentLocked(ev.RoundID) || !m.server.State.Running() {
		return
	}
	for _, a := range m.server.Queue {
		if a.ParticipantID == ev.ParticipantID {
			return
		}
	}
	m.server.Queue = append(m.server.Queue, domain.BuzzAttempt{
		ParticipantID:        ev.ParticipantID,
		ParticipantName:      ev.ParticipantName,
		RoundID:              ev.RoundID,
		Rank:                 ev.Rank,
		ReceivedAt:           ev.ReceivedAt,
		ClientElapsedSeconds: ev.ClientElapsedSeconds,
	})
	m.server.TotalBuzzesAllowed = ev.TotalBuzzesAllowed
	m.server.State = domain.RoundAwaitingAnswer
	if ev.ParticipantID == m.participantID {
		m.intent = Intent{}
	}
}

func (m *Mirror) isCurrentLocked(roundID string) bool {
	return m.server.Round != nil && m.server.Round.ID == roundID
}

func stopCountdown(c *clocksync.Countdown) {
	c.Stop()
}

func resyncCountdown(timerSeconds int, startsAt time.Time) func(*clocksync.Countdown) {
	return func(c *clocksync.Countdown) {
		c.Resync(timerSeconds, startsAt)
	}
}

// IntendBuzz records the local wish to buzz and returns the round to send
// it for. It refuses when the buzzer is not enabled.
func (m *Mirror) IntendBuzz(now time.Time) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buzzerStateLocked() != domain.BuzzerEnabled {
		return "", false
	}
	m.intent = Intent{BuzzRoundID: m.server.Round.ID, BuzzedAt: now}
	return m.server.Round.ID, true
}

// CancelIntent withdraws a buzz intent that never reached the server.
func (m *Mirror) CancelIntent(roundID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intent.BuzzRoundID == roundID {
		m.intent = Intent{}
	}
}

// BuzzerState derives the state of our own buzz control.
func (m *Mirror) BuzzerState() domain.BuzzerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buzzerStateLocked()
}

func (m *Mirror) buzzerStateLocked() domain.BuzzerState {
	s := m.server
	if s.Round == nil || !s.State.Running() {
		return domain.BuzzerLocked
	}
	for _, a := range s.Queue {
		if a.ParticipantID == m.participantID {
			return domain.BuzzerBuzzed
		}
	}
	if m.blockedLocked() {
		return domain.BuzzerBlocked
	}
	if !s.BuzzingOpen {
		return domain.BuzzerLocked
	}
	if m.intent.BuzzRoundID == s.Round.ID {
		return domain.BuzzerBuzzed
	}
	if s.TotalBuzzesAllowed > 0 && len(s.Queue) >= s.TotalBuzzesAllowed {
		return domain.BuzzerLocked
	}
	// The local countdown only ever disables our own control.
	if m.countdown != nil && m.countdown.TimeUp() {
		return domain.BuzzerLocked
	}
	return domain.BuzzerEnabled
}

func (m *Mirror) blockedLocked() bool {
	return m.server.Round != nil && m.server.BlockedRoundID == m.server.Round.ID
}

// noteBlockedLocked pins a block reported by the scoreboard to the current
// round. Scoreboards are never read as a block for any other round.
func (m *Mirror) noteBlockedLocked() {
	if m.server.Round == nil {
		return
	}
	for _, e := range m.server.Scoreboard {
		if e.ParticipantID == m.participantID && e.BlockedThisRound {
			m.server.BlockedRoundID = m.server.Round.ID
		}
	}
}

// CurrentTurn is the participant the admin is expected to judge next.
func (m *Mirror) CurrentTurn() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTurnLocked()
}

func (m *Mirror) currentTurnLocked() string {
	if m.server.State != domain.RoundAwaitingAnswer {
		return ""
	}
	for _, a := range m.server.Queue {
		if !a.Judged {
			return a.ParticipantID
		}
	}
	return ""
}

// View returns a copy of the projection with derived values.
func (m *Mirror) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	server := m.server
	server.Queue = append([]domain.BuzzAttempt(nil), m.server.Queue...)
	server.Scoreboard = append([]domain.ScoreboardEntry(nil), m.server.Scoreboard...)
	if m.server.Round != nil {
		round := *m.server.Round
		server.Round = &round
	}
	v := View{
		Server:      server,
		Intent:      m.intent,
		Buzzer:      m.buzzerStateLocked(),
		CurrentTurn: m.currentTurnLocked(),
	}
	if m.countdown != nil {
		v.Remaining = m.countdown.Remaining()
	}
	if m.rejection != nil {
		rejected := *m.rejection
		v.Rejection = &rejected
	}
	return v
}
