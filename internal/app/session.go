package app

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"hifdh-quest-service/internal/domain"
	"hifdh-quest-service/internal/metrics"
)

const recordTimeout = 5 * time.Second

// GameSettings are the per-session game rules.
type GameSettings struct {
	BankID                    string
	TimerSeconds              int
	TotalBuzzesAllowed        int
	TotalRounds               int // 0 means open ended
	MaxConsecutiveFirstBuzzes int
	QuestionType              domain.QuestionType
	Reciter                   string
}

func (g GameSettings) withDefaults() GameSettings {
	if g.TimerSeconds <= 0 {
		g.TimerSeconds = 60
	}
	if g.TotalBuzzesAllowed <= 0 {
		g.TotalBuzzesAllowed = DefaultTotalBuzzesAllowed
	}
	if g.MaxConsecutiveFirstBuzzes <= 0 {
		g.MaxConsecutiveFirstBuzzes = DefaultMaxConsecutiveFirstBuzzes
	}
	if !g.QuestionType.Valid() {
		g.QuestionType = domain.QuestionGuessSurah
	}
	if g.Reciter == "" {
		g.Reciter = DefaultReciter
	}
	return g
}

// SessionDeps carries what every GameSession of a process shares.
type SessionDeps struct {
	Settings GameSettings
	Clock    clockwork.Clock
	Events   EventChannel
	Recorder RoundRecorder
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// SessionFactory builds the session for an id. Session stores use it to
// create sessions on first access.
type SessionFactory func(sessionID string) *GameSession

// NewSessionFactory binds shared dependencies to a factory.
func NewSessionFactory(deps SessionDeps) SessionFactory {
	return func(sessionID string) *GameSession {
		return NewGameSession(sessionID, deps)
	}
}

// StartRoundRequest is what the admin asks for when releasing a round.
type StartRoundRequest struct {
	QuestionType domain.QuestionType
	Selector     ContentSelector
}

// BuzzResult is the outcome of an accepted buzz.
type BuzzResult struct {
	Attempt        domain.BuzzAttempt
	RemainingSlots int
}

// ValidateRequest is the admin's judgment of the current turn.
type ValidateRequest struct {
	RoundID       string
	ParticipantID string
	Correct       bool
	Points        int
}

// GameSession owns the live state of one game. Its mutex is the single
// writer of the round, queue and scoreboard; events are published while it
// is held so subscribers observe them in mutation order.
type GameSession struct {
	id       string
	settings GameSettings
	clock    clockwork.Clock
	events   EventChannel
	recorder RoundRecorder
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	penalty  FirstBuzzPenalty

	mu           sync.Mutex
	createdAt    time.Time
	rnd          *rand.Rand
	participants map[string]*domain.Participant
	machine      *roundMachine
	roundCount   int
	usedVerses   map[domain.VerseKey]struct{}
	expiry       clockwork.Timer
	recording    sync.WaitGroup

	// connections counts open sockets, spectating admins included.
	connections int
	idleSince   time.Time
	retired     bool
}

func NewGameSession(id string, deps SessionDeps) *GameSession {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	events := deps.Events
	if events == nil {
		events = discardEvents{}
	}
	settings := deps.Settings.withDefaults()
	now := clock.Now()
	return &GameSession{
		id:           id,
		settings:     settings,
		clock:        clock,
		events:       events,
		recorder:     deps.Recorder,
		logger:       deps.Logger.With().Str("session_id", id).Logger(),
		metrics:      deps.Metrics,
		penalty:      NewFirstBuzzPenalty(settings.MaxConsecutiveFirstBuzzes),
		createdAt:    now,
		rnd:          rand.New(rand.NewSource(now.UnixNano())),
		participants: make(map[string]*domain.Participant),
		machine:      newRoundMachine(settings.TotalBuzzesAllowed),
		usedVerses:   make(map[domain.VerseKey]struct{}),
		idleSince:    now,
	}
}

func (s *GameSession) ID() string {
	return s.id
}

// Settings returns the effective rules of the session.
func (s *GameSession) Settings() GameSettings {
	return s.settings
}

func (s *GameSession) join(ctx context.Context, participantID, displayName string) domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if participant, ok := s.participants[participantID]; ok {
		if displayName != "" {
			participant.DisplayName = displayName
		}
		participant.Connected = true
		participant.LastHeartbeat = now
	} else {
		s.participants[participantID] = &domain.Participant{
			ID:            participantID,
			DisplayName:   displayName,
			Connected:     true,
			LastHeartbeat: now,
			LastUpdated:   now,
		}
	}
	s.emitLocked(ctx, domain.ScoreboardUpdate{Entries: s.scoreboardLocked()})
	return s.snapshotLocked()
}

// leave marks the participant disconnected. Scores survive so a reconnect
// resumes where the player left off.
func (s *GameSession) leave(ctx context.Context, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[participantID]
	if !ok || !participant.Connected {
		return
	}
	participant.Connected = false
	s.emitLocked(ctx, domain.ScoreboardUpdate{Entries: s.scoreboardLocked()})
}

func (s *GameSession) heartbeat(ctx context.Context, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	participant.LastHeartbeat = s.clock.Now()
	if !participant.Connected {
		participant.Connected = true
		s.emitLocked(ctx, domain.ScoreboardUpdate{Entries: s.scoreboardLocked()})
	}
	return nil
}

func (s *GameSession) startRound(ctx context.Context, bank domain.VerseBank, req StartRoundRequest) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.state.Running() {
		return domain.Round{}, domain.ErrRoundInProgress
	}
	if s.completeLocked() {
		return domain.Round{}, domain.ErrSessionComplete
	}
	questionType := req.QuestionType
	if questionType == "" {
		questionType = s.settings.QuestionType
	}
	if !questionType.Valid() {
		return domain.Round{}, domain.ErrInvalidQuestionType
	}
	idx, err := pickVerse(bank, s.usedVerses, req.Selector, questionType, s.rnd)
	if err != nil {
		return domain.Round{}, err
	}
	reciter := req.Selector.Reciter
	if reciter == "" {
		reciter = s.settings.Reciter
	}

	round := domain.Round{
		ID:            uuid.NewString(),
		SessionID:     s.id,
		Number:        s.roundCount + 1,
		QuestionType:  questionType,
		Prompt:        buildPrompt(bank, idx, questionType, reciter),
		TimerSeconds:  s.settings.TimerSeconds,
		TimerStartsAt: s.clock.Now(),
	}
	if s.settings.TotalRounds > 0 {
		total := s.settings.TotalRounds
		round.TotalRounds = &total
	}
	if err := s.machine.start(round, s.settings.TotalBuzzesAllowed); err != nil {
		return domain.Round{}, err
	}
	s.roundCount++
	s.usedVerses[round.Prompt.Verse.Key()] = struct{}{}
	penaltiesChanged := s.penalty.Arm(s.participants)
	s.scheduleExpiryLocked(round)
	s.metrics.RecordTransition(string(domain.RoundActive), "start")

	s.emitLocked(ctx, domain.RoundStarted{
		RoundID:               round.ID,
		RoundNumber:           round.Number,
		TotalRounds:           round.TotalRounds,
		QuestionType:          round.QuestionType,
		Prompt:                round.Prompt,
		TimerSeconds:          round.TimerSeconds,
		TimerStartsAt:         round.TimerStartsAt,
		TotalBuzzesAllowed:    s.machine.queue.Capacity(),
		BlockedParticipantIDs: s.blockedLocked(),
	})
	if penaltiesChanged {
		s.emitLocked(ctx, domain.ScoreboardUpdate{Entries: s.scoreboardLocked()})
	}
	s.logger.Info().Str("round_id", round.ID).Int("round", round.Number).
		Str("question_type", string(questionType)).Msg("round started")
	return round, nil
}

func (s *GameSession) buzz(ctx context.Context, participantID, roundID string, clientElapsed float64) (BuzzResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[participantID]
	if !ok {
		return BuzzResult{}, domain.ErrParticipantNotFound
	}
	now := s.clock.Now()
	// The expiry timer may not have fired yet.
	if s.machine.expired(now) {
		s.expireLocked(ctx)
	}

	accepted, remaining, err := s.machine.buzz(domain.BuzzAttempt{
		ParticipantID:        participantID,
		ParticipantName:      participant.DisplayName,
		RoundID:              roundID,
		ReceivedAt:           now,
		ClientElapsedSeconds: clientElapsed,
	}, participant.Blocked())
	if err != nil {
		s.metrics.RecordBuzz(rejectionCode(err))
		return BuzzResult{RemainingSlots: remaining}, err
	}
	s.metrics.RecordBuzz("accepted")
	if accepted.Rank == 1 {
		s.metrics.RecordTransition(string(domain.RoundAwaitingAnswer), "first_buzz")
	}
	blockedNow := s.penalty.Record(participant, accepted.Rank)

	s.emitLocked(ctx, domain.BuzzerPressed{
		RoundID:              accepted.RoundID,
		ParticipantID:        accepted.ParticipantID,
		ParticipantName:      accepted.ParticipantName,
		Rank:                 accepted.Rank,
		ClientElapsedSeconds: accepted.ClientElapsedSeconds,
		TotalBuzzesAllowed:   s.machine.queue.Capacity(),
		RemainingSlots:       remaining,
		ReceivedAt:           accepted.ReceivedAt,
	})
	if s.machine.queue.Full() && s.machine.closeBuzzing() {
		s.stopExpiryLocked()
		s.emitLocked(ctx, domain.TimerStopped{
			RoundID:     accepted.RoundID,
			Reason:      domain.StopAllSlotsFilled,
			TotalBuzzes: s.machine.queue.Len(),
		})
	}
	if blockedNow {
		s.logger.Info().Str("participant_id", participantID).Msg("participant blocked for next round")
		s.emitLocked(ctx, domain.ScoreboardUpdate{Entries: s.scoreboardLocked()})
	}
	return BuzzResult{Attempt: accepted, RemainingSlots: remaining}, nil
}

func (s *GameSession) submitAnswer(participantID, roundID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.machine.current(roundID); err != nil {
		return err
	}
	for _, pending := range s.machine.queue.Pending() {
		if pending.ParticipantID == participantID {
			s.machine.queue.RecordAnswer(participantID, text)
			return nil
		}
	}
	return domain.ErrNotCurrentTurn
}

func (s *GameSession) validateAnswer(ctx context.Context, req ValidateRequest) (TurnOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.machine.current(req.RoundID)
	if err != nil {
		return TurnOutcome{}, err
	}
	outcome, err := s.machine.judge(req.ParticipantID, req.Correct)
	if err != nil {
		return TurnOutcome{}, err
	}
	s.metrics.RecordJudgment(req.Correct)

	participant, ok := s.participants[req.ParticipantID]
	if !ok {
		participant = &domain.Participant{ID: req.ParticipantID, DisplayName: outcome.Judged.ParticipantName}
		s.participants[req.ParticipantID] = participant
	}
	var breakdown domain.ScoreBreakdown
	if req.Correct {
		participant.CorrectStreak++
		breakdown = ScoreCorrect(round.QuestionType, outcome.Judged.ServerElapsed(round.TimerStartsAt),
			outcome.Judged.Rank, participant.CorrectStreak, req.Points)
		participant.Score += breakdown.Total
		participant.LastUpdated = s.clock.Now()
	} else {
		participant.CorrectStreak = 0
	}

	s.emitLocked(ctx, domain.AnswerValidated{
		RoundID:           round.ID,
		ParticipantID:     participant.ID,
		ParticipantName:   participant.DisplayName,
		Correct:           req.Correct,
		PointsAwarded:     breakdown.Total,
		TotalScore:        participant.Score,
		Breakdown:         breakdown,
		NextParticipantID: outcome.NextParticipantID,
	})
	s.emitLocked(ctx, domain.ScoreboardUpdate{Entries: s.scoreboardLocked()})

	if outcome.Terminated {
		if req.Correct {
			s.endLocked(ctx, domain.EndCorrectAnswer, participant.ID)
		} else {
			s.endLocked(ctx, domain.EndNoCorrectAnswer, "")
		}
	}
	return outcome, nil
}

func (s *GameSession) endRound(ctx context.Context, roundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.round == nil || !s.machine.state.Running() || s.machine.round.ID != roundID {
		return domain.ErrRoundConflict
	}
	s.endLocked(ctx, domain.EndAdmin, "")
	return nil
}

// expire is the server timer callback for roundID.
func (s *GameSession) expire(roundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.round == nil || s.machine.round.ID != roundID || !s.machine.state.Running() {
		return
	}
	s.expireLocked(context.Background())
}

// expireLocked closes buzzing. The round only ends here when no accepted
// attempt waits for judgment.
func (s *GameSession) expireLocked(ctx context.Context) {
	if !s.machine.closeBuzzing() {
		return
	}
	s.stopExpiryLocked()
	s.emitLocked(ctx, domain.TimerStopped{
		RoundID:     s.machine.round.ID,
		Reason:      domain.StopTimerExpired,
		TotalBuzzes: s.machine.queue.Len(),
	})
	if s.machine.policy == TurnPolicyFinishPendingTurn && s.machine.pendingTurn() {
		return
	}
	s.endLocked(ctx, domain.EndTimerExpired, "")
}

func (s *GameSession) endLocked(ctx context.Context, reason domain.RoundEndReason, winnerID string) {
	if !s.machine.end(s.clock.Now()) {
		return
	}
	s.stopExpiryLocked()
	s.metrics.RecordTransition(string(domain.RoundStateEnded), string(reason))

	round := *s.machine.round
	s.emitLocked(ctx, domain.RoundEnded{RoundID: round.ID, Reason: reason, WinnerID: winnerID})
	s.logger.Info().Str("round_id", round.ID).Str("reason", string(reason)).Msg("round ended")
	if s.completeLocked() {
		s.emitLocked(ctx, s.gameEndedLocked())
		s.logger.Info().Int("rounds", s.roundCount).Msg("game ended")
	}

	s.recordLocked(domain.RoundSummary{
		Round:    round,
		Attempts: s.machine.queue.Snapshot(),
		Reason:   reason,
		WinnerID: winnerID,
	})
}

func (s *GameSession) completeLocked() bool {
	return s.settings.TotalRounds > 0 && s.roundCount >= s.settings.TotalRounds
}

// gameEndedLocked carries the final standings. Nobody wins a game nobody scored in.
func (s *GameSession) gameEndedLocked() domain.GameEnded {
	entries := s.scoreboardLocked()
	ev := domain.GameEnded{RoundsPlayed: s.roundCount, Scoreboard: entries}
	if len(entries) > 0 && entries[0].TotalScore > 0 {
		ev.WinnerID = entries[0].ParticipantID
	}
	return ev
}

// recordLocked hands the summary to the recorder off the session lock.
func (s *GameSession) recordLocked(summary domain.RoundSummary) {
	if s.recorder == nil {
		return
	}
	s.recording.Add(1)
	go func() {
		defer s.recording.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.recorder.RecordRound(ctx, summary); err != nil {
			s.logger.Error().Err(err).Str("round_id", summary.Round.ID).Msg("record round")
		}
	}()
}

// WaitRecorded blocks until pending round recordings finished.
func (s *GameSession) WaitRecorded() {
	s.recording.Wait()
}

func (s *GameSession) scheduleExpiryLocked(round domain.Round) {
	s.stopExpiryLocked()
	roundID := round.ID
	s.expiry = s.clock.AfterFunc(round.Deadline().Sub(s.clock.Now()), func() {
		s.expire(roundID)
	})
}

func (s *GameSession) stopExpiryLocked() {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

func (s *GameSession) emitLocked(ctx context.Context, event domain.Event) {
	msg := domain.Message{
		SessionID: s.id,
		Timestamp: s.clock.Now(),
		Event:     event,
	}
	start := time.Now()
	// The state change is already applied; a caller going away must not
	// suppress the event that announces it.
	err := s.events.Publish(context.WithoutCancel(ctx), msg)
	s.metrics.RecordPublish(string(event.Type()), err, time.Since(start))
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(event.Type())).Msg("publish event")
	}
}

func (s *GameSession) snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *GameSession) snapshotLocked() domain.SessionSnapshot {
	now := s.clock.Now()
	snap := domain.SessionSnapshot{
		State:              s.machine.state,
		Queue:              s.machine.queue.Snapshot(),
		BuzzingOpen:        s.machine.buzzingOpen && !s.machine.expired(now),
		TotalBuzzesAllowed: s.machine.queue.Capacity(),
		Scoreboard:         s.scoreboardLocked(),
		ServerTime:         now,
		GameOver:           s.completeLocked() && !s.machine.state.Running(),
	}
	if s.machine.round != nil {
		round := *s.machine.round
		snap.Round = &round
	}
	return snap
}

func (s *GameSession) scoreboardLocked() []domain.ScoreboardEntry {
	entries := make([]domain.ScoreboardEntry, 0, len(s.participants))
	for _, participant := range s.participants {
		entries = append(entries, domain.ScoreboardEntry{
			ParticipantID:    participant.ID,
			ParticipantName:  participant.DisplayName,
			TotalScore:       participant.Score,
			Connected:        participant.Connected,
			BlockedNextRound: participant.BlockedNextRound,
			BlockedThisRound: participant.BlockedThisRound,
		})
	}

	// Score desc, then whoever reached the score first, then name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		pi := s.participants[entries[i].ParticipantID]
		pj := s.participants[entries[j].ParticipantID]
		if pi != nil && pj != nil && !pi.LastUpdated.Equal(pj.LastUpdated) {
			return pi.LastUpdated.Before(pj.LastUpdated)
		}
		return entries[i].ParticipantName < entries[j].ParticipantName
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func (s *GameSession) blockedLocked() []string {
	var ids []string
	for _, participant := range s.participants {
		if participant.Blocked() {
			ids = append(ids, participant.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// attach counts a new connection. It fails once the session was retired.
func (s *GameSession) attach() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return false
	}
	s.connections++
	return true
}

func (s *GameSession) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections == 0 {
		return
	}
	s.connections--
	if s.connections == 0 {
		s.idleSince = s.clock.Now()
	}
}

// Idle reports whether nobody is connected and no round is running.
func (s *GameSession) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleLocked()
}

func (s *GameSession) idleLocked() bool {
	return s.connections == 0 && !s.machine.state.Running()
}

// Retire marks the session as dropped when it has been idle for at least
// idleFor. A retired session refuses new connections; the store must
// forget it and call Close.
func (s *GameSession) Retire(idleFor time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return true
	}
	if !s.idleLocked() || s.clock.Since(s.idleSince) < idleFor {
		return false
	}
	s.retired = true
	s.stopExpiryLocked()
	return true
}

// Close stops the expiry timer of a session that is being dropped.
func (s *GameSession) Close() {
	s.mu.Lock()
	s.stopExpiryLocked()
	s.mu.Unlock()
	s.recording.Wait()
}

// rejectionCode maps a protocol error to a stable label.
func rejectionCode(err error) string {
	for _, c := range rejectionCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

var rejectionCodes = []struct {
	err  error
	code string
}{
	{domain.ErrBuzzingClosed, "buzzing_closed"},
	{domain.ErrRoundMismatch, "round_mismatch"},
	{domain.ErrAlreadyBuzzed, "already_buzzed"},
	{domain.ErrParticipantBlocked, "blocked"},
	{domain.ErrQueueFull, "queue_full"},
	{domain.ErrRoundInProgress, "round_in_progress"},
	{domain.ErrRoundConflict, "round_conflict"},
	{domain.ErrNoActiveRound, "no_active_round"},
	{domain.ErrNotCurrentTurn, "not_current_turn"},
	{domain.ErrNoActiveTurn, "no_active_turn"},
	{domain.ErrParticipantNotFound, "participant_not_found"},
	{domain.ErrSessionNotFound, "session_not_found"},
	{domain.ErrInvalidQuestionType, "invalid_question_type"},
	{domain.ErrNoVerseAvailable, "no_verse_available"},
	{domain.ErrSessionComplete, "session_complete"},
	{domain.ErrBankNotFound, "bank_not_found"},
	{domain.ErrForbidden, "forbidden"},
	{domain.ErrInvalidRequest, "invalid_request"},
}

// RejectionCode is the wire code reported to a client for a refused request.
func RejectionCode(err error) string {
	return rejectionCode(err)
}

type discardEvents struct{}

func (discardEvents) Publish(context.Context, domain.Message) error { return nil }

func (discardEvents) Subscribe(context.Context, string) (*Subscription, error) {
	ch := make(chan Delivery)
	close(ch)
	return NewSubscription(ch, nil), nil
}
