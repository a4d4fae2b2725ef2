// Package migrations embeds the SQL schema migrations for the inbox cache.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
