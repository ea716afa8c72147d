// Package migrations compiles the SQL migration files into the
// binary, so knxipd can bring its schema up to date without shipping
// loose .sql files alongside the executable. Importing this package
// blank is enough to register them.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
