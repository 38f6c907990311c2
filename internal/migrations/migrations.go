// Package migrations embeds the golang-migrate schema migration files for
// every sqlite-backed store (history, chronicle) so the binary carries its
// own schema and needs no separate migration step at deploy time.
package migrations

import "embed"

//go:embed history/*.sql chronicle/*.sql
var FS embed.FS
