package migrations

import "embed"

// Files exposes embedded SQL migration files ordered lexicographically.
// Postgres scripts live under postgres/, SQLite scripts under sqlite/.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS
