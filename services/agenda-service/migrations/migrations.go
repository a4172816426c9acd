// Package migrations embeds the agenda-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
