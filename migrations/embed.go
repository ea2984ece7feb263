// Package migrations holds the SQL migrations for the sync journal database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
