package sandbox

import "embed"

// Migrations holds the Postgres schema for the session repository.
//
//go:embed migrations/*.sql
var migrations embed.FS
