package migrations

import "embed"

// FS holds the goose migrations for the Postgres schema.
//
//go:embed *.sql
var FS embed.FS
