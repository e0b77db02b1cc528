// Package migrations embeds SQL migration files for database schema management.
package migrations

import "embed"

// FS holds the embedded SQL migration files, one directory per dialect.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
