// Package migrations holds the Postgres schema, applied by db.Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
