// Package migrations embeds SQL migration files into the binary.
//
// The agent runs its migrations at startup without needing the SQL files
// present on the device filesystem.
package migrations

import (
	"embed"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
