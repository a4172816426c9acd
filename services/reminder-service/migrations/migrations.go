// Package migrations embeds the reminder-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
