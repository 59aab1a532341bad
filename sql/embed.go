// Package migrations embeds the goose migrations for the metadata table.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
