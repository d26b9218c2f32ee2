// Package migrations embeds SQL migration files into the binary.
//
// This allows LiteKeeper to run migrations without needing the SQL
// files present on the filesystem - they're compiled into the
// executable.
package migrations

import (
	"embed"

	"github.com/nerrad567/litekeeper/internal/sqlite"
)

//go:embed *.sql
var files embed.FS

// Migrator returns a migrator over the embedded migration files.
func Migrator() *sqlite.Migrator {
	return sqlite.NewMigrator(files, ".")
}
