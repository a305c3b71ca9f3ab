// Package migrations holds the goose schema for users, sessions, auth codes
// and profiles.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
