// Package migrations embeds the goose SQL migrations so the server and
// integration tests can apply them without a separate migrations directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
