// Package migrations embeds the goose migrations for the client's SQLite
// storage medium.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
