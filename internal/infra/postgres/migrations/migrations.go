// Package migrations holds the Postgres schema, applied with bun's migrator.
// Each migration registers from its own file; bun derives the migration name from it.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
