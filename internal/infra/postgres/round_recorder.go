package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"hifdh-quest-service/internal/domain"
)

// RoundRecorder appends ended rounds to round_log. Re-recording a round is a no-op.
type RoundRecorder struct {
	pool *pgxpool.Pool
}

func NewRoundRecorder(pool *pgxpool.Pool) *RoundRecorder {
	return &RoundRecorder{pool: pool}
}

func (r *RoundRecorder) RecordRound(ctx context.Context, summary domain.RoundSummary) error {
	attempts, err := json.Marshal(summary.Attempts)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}
	var winner *string
	if summary.WinnerID != "" {
		winner = &summary.WinnerID
	}
	round := summary.Round
	_, err = r.pool.Exec(ctx, `
		INSERT INTO round_log (
			round_id, session_id, round_number, question_type, surah_number, ayah_number,
			timer_seconds, timer_starts_at, ended_at, end_reason, winner_id, attempts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb)
		ON CONFLICT (round_id) DO NOTHING`,
		round.ID, round.SessionID, round.Number, string(round.QuestionType),
		round.Prompt.Verse.SurahNumber, round.Prompt.Verse.AyahNumber,
		round.TimerSeconds, round.TimerStartsAt, round.EndedAt,
		string(summary.Reason), winner, string(attempts),
	)
	if err != nil {
		return fmt.Errorf("record round %s: %w", round.ID, err)
	}
	return nil
}

// CountRounds returns how many rounds of a session were recorded.
func (r *RoundRecorder) CountRounds(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM round_log WHERE session_id = $1`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rounds: %w", err)
	}
	return n, nil
}
