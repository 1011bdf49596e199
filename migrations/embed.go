// Package migrations embeds the SQL migration files for the iofs source
// driver used by cmd/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
