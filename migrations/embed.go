// Package migrations embeds the run archive schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/flowlab-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
