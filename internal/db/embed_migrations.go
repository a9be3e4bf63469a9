package db

import "embed"

// MigrationFS embeds the session archive schema from internal/db/migrations.
// Used by the migrate runner (cmd/migrate).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
