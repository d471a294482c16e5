// Package migrations embeds the SQL files defining the turn-transcript
// schema, applied at startup by the database package.
package migrations

import "embed"

// FS exposes the embedded migration files to the iofs source driver.
//
//go:embed *.sql
var FS embed.FS
