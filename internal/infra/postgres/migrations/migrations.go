package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema of the verse bank and the round log.
var Migrations = migrate.NewMigrations()
