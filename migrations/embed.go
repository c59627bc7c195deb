package migrations

import "embed"

// FS embeds the SQL migrations applied by platform/db.Migrate.
//
//go:embed *.sql
var FS embed.FS
