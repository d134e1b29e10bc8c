// Package migrations embeds the SQLite schema for rainbridge.
package migrations

import "embed"

// FS holds the versioned *.sql files at its root.
//
//go:embed *.sql
var FS embed.FS
