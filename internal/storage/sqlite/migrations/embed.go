package migrations

import "embed"

// FS contains embedded SQLite migrations for noughts storage.
//
//go:embed *.sql
var FS embed.FS
