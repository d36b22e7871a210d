package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"hifdh-quest-service/internal/domain"
)

// VerseLoader loads a verse bank from Postgres in mushaf order.
type VerseLoader struct {
	pool *pgxpool.Pool
}

func NewVerseLoader(pool *pgxpool.Pool) *VerseLoader {
	return &VerseLoader{pool: pool}
}

func (l *VerseLoader) LoadBank(ctx context.Context, bankID string) (domain.VerseBank, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT surah_number, surah_name, ayah_number, arabic_text, translation
		FROM verses
		WHERE bank_id = $1
		ORDER BY surah_number, ayah_number`, bankID)
	if err != nil {
		return domain.VerseBank{}, fmt.Errorf("load bank %s: %w", bankID, err)
	}
	defer rows.Close()

	bank := domain.VerseBank{ID: bankID}
	for rows.Next() {
		var v domain.Verse
		if err := rows.Scan(&v.SurahNumber, &v.SurahName, &v.AyahNumber, &v.ArabicText, &v.Translation); err != nil {
			return domain.VerseBank{}, fmt.Errorf("scan verse: %w", err)
		}
		bank.Verses = append(bank.Verses, v)
	}
	if err := rows.Err(); err != nil {
		return domain.VerseBank{}, fmt.Errorf("load bank %s: %w", bankID, err)
	}
	if len(bank.Verses) == 0 {
		return domain.VerseBank{}, fmt.Errorf("load bank %s: %w", bankID, domain.ErrBankNotFound)
	}
	return bank, nil
}
