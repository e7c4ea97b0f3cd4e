// Package migrations embeds the droidprobe SQL migrations into the binary.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files, at its root.
//
//go:embed *.sql
var FS embed.FS
