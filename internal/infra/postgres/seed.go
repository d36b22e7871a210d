package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"hifdh-quest-service/internal/domain"
	"hifdh-quest-service/internal/infra/postgres/migrations"
)

type verseRow struct {
	bun.BaseModel `bun:"table:verses"`

	BankID      string `bun:"bank_id,pk"`
	SurahNumber int    `bun:"surah_number,pk"`
	SurahName   string `bun:"surah_name,notnull"`
	AyahNumber  int    `bun:"ayah_number,pk"`
	ArabicText  string `bun:"arabic_text,notnull"`
	Translation string `bun:"translation,notnull"`
}

// OpenBun opens a bun handle over pgdriver for migrations and seeding.
func OpenBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrate applies every pending migration and returns the applied group.
func Migrate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return group, nil
}

// SeedBank upserts the verses of a bank.
func SeedBank(ctx context.Context, db *bun.DB, bank domain.VerseBank) (int, error) {
	if len(bank.Verses) == 0 {
		return 0, nil
	}
	rows := make([]verseRow, 0, len(bank.Verses))
	for _, v := range bank.Verses {
		rows = append(rows, verseRow{
			BankID:      bank.ID,
			SurahNumber: v.SurahNumber,
			SurahName:   v.SurahName,
			AyahNumber:  v.AyahNumber,
			ArabicText:  v.ArabicText,
			Translation: v.Translation,
		})
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (bank_id, surah_number, ayah_number) DO UPDATE").
		Set("surah_name = EXCLUDED.surah_name").
		Set("arabic_text = EXCLUDED.arabic_text").
		Set("translation = EXCLUDED.translation").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed bank %s: %w", bank.ID, err)
	}
	return len(rows), nil
}
