package domain

import "time"

// QuestionType enumerates what players are asked to identify about the recited verse.
type QuestionType string

const (
	QuestionGuessSurah    QuestionType = "guess_surah"
	QuestionGuessMeaning  QuestionType = "guess_meaning"
	QuestionGuessNext     QuestionType = "guess_next_ayat"
	QuestionGuessPrevious QuestionType = "guess_previous_ayat"
	QuestionGuessReciter  QuestionType = "guess_reciter"
)

// Valid reports whether q is one of the known question types.
func (q QuestionType) Valid() bool {
	switch q {
	case QuestionGuessSurah, QuestionGuessMeaning, QuestionGuessNext, QuestionGuessPrevious, QuestionGuessReciter:
		return true
	}
	return false
}

// NeedsNeighbours reports whether the prompt must carry the adjacent verses.
func (q QuestionType) NeedsNeighbours() bool {
	return q == QuestionGuessNext || q == QuestionGuessPrevious
}

// Verse is a single ayah of the question bank.
type Verse struct {
	SurahNumber int    `json:"surahNumber"`
	SurahName   string `json:"surahName"`
	AyahNumber  int    `json:"ayahNumber"`
	ArabicText  string `json:"arabicText"`
	Translation string `json:"translation"`
}

// Key identifies a verse inside a bank.
func (v Verse) Key() VerseKey {
	return VerseKey{Surah: v.SurahNumber, Ayah: v.AyahNumber}
}

// VerseKey is a surah/ayah pair.
type VerseKey struct {
	Surah int `json:"surah"`
	Ayah  int `json:"ayah"`
}

// VerseBank is the content rounds draw their prompts from. Verses are kept in
// mushaf order so neighbours can be resolved by index.
type VerseBank struct {
	ID     string  `json:"id"`
	Verses []Verse `json:"verses"`
}

// Prompt is the question payload broadcast with a round.
type Prompt struct {
	Verse    Verse  `json:"verse"`
	AudioURL string `json:"audioUrl"`
	Reciter  string `json:"reciter"`
	Previous *Verse `json:"previous,omitempty"`
	Next     *Verse `json:"next,omitempty"`
}

// Round is one question instance. Only EndedAt changes after creation.
type Round struct {
	ID            string       `json:"id"`
	SessionID     string       `json:"sessionId"`
	Number        int          `json:"number"`
	TotalRounds   *int         `json:"totalRounds,omitempty"`
	QuestionType  QuestionType `json:"questionType"`
	Prompt        Prompt       `json:"prompt"`
	TimerSeconds  int          `json:"timerSeconds"`
	TimerStartsAt time.Time    `json:"timerStartsAt"`
	EndedAt       *time.Time   `json:"endedAt,omitempty"`
}

// Deadline is the server instant the round's buzz window closes.
func (r Round) Deadline() time.Time {
	return r.TimerStartsAt.Add(time.Duration(r.TimerSeconds) * time.Second)
}

// BuzzAttempt is one accepted buzz. ClientElapsedSeconds is display-only.
type BuzzAttempt struct {
	ParticipantID        string    `json:"participantId"`
	ParticipantName      string    `json:"participantName"`
	RoundID              string    `json:"roundId"`
	Rank                 int       `json:"rank"`
	ReceivedAt           time.Time `json:"receivedAt"`
	ClientElapsedSeconds float64   `json:"clientElapsedSeconds"`
	Judged               bool      `json:"judged"`
	Correct              *bool     `json:"correct,omitempty"`
	AnswerText           string    `json:"answerText,omitempty"`
}

// ServerElapsed is the buzz latency measured on the server clock.
func (a BuzzAttempt) ServerElapsed(startsAt time.Time) time.Duration {
	if a.ReceivedAt.Before(startsAt) {
		return 0
	}
	return a.ReceivedAt.Sub(startsAt)
}

// Participant is a player of a session and their running tallies.
type Participant struct {
	ID                     string
	DisplayName            string
	Score                  int
	CorrectStreak          int
	ConsecutiveFirstBuzzes int
	BlockedNextRound       bool
	BlockedThisRound       bool
	Connected              bool
	LastHeartbeat          time.Time
	LastUpdated            time.Time
}

// Blocked reports whether the participant may not buzz in the current round.
func (p *Participant) Blocked() bool {
	return p.BlockedThisRound
}

// BuzzerState is what a player's buzz control shows. The values are mutually exclusive.
type BuzzerState string

const (
	BuzzerEnabled BuzzerState = "enabled"
	BuzzerBuzzed  BuzzerState = "buzzed"
	BuzzerBlocked BuzzerState = "blocked"
	BuzzerLocked  BuzzerState = "locked"
)

// ScoreboardEntry is one row of the broadcast scoreboard.
type ScoreboardEntry struct {
	Rank             int    `json:"rank"`
	ParticipantID    string `json:"participantId"`
	ParticipantName  string `json:"participantName"`
	TotalScore       int    `json:"totalScore"`
	Connected        bool   `json:"connected"`
	BlockedNextRound bool   `json:"blockedNextRound"`
	BlockedThisRound bool   `json:"blockedThisRound"`
}

// ScoreBreakdown details how the points of a judgment were computed.
type ScoreBreakdown struct {
	BasePoints      int     `json:"basePoints"`
	SpeedMultiplier float64 `json:"speedMultiplier"`
	SpeedBonus      int     `json:"speedBonus"`
	StreakBonus     int     `json:"streakBonus"`
	RankBonus       int     `json:"rankBonus"`
	AdminBonus      int     `json:"adminBonus"`
	Total           int     `json:"total"`
}

// RoundSummary is what gets recorded once a round has ended.
type RoundSummary struct {
	Round    Round          `json:"round"`
	Attempts []BuzzAttempt  `json:"attempts"`
	Reason   RoundEndReason `json:"reason"`
	WinnerID string         `json:"winnerId,omitempty"`
}
