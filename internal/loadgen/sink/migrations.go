package sink

import (
	"embed"

	"github.com/armadaproject/loadgen/internal/common/database"
)

//go:embed migrations
var migrationFS embed.FS

// PostgresMigrations returns the postgres schema migrations in order.
func PostgresMigrations() ([]database.Migration, error) {
	return database.ReadMigrations(migrationFS, "migrations/postgres")
}

func sqliteSchema() (string, error) {
	b, err := migrationFS.ReadFile("migrations/sqlite/schema.sql")
	return string(b), err
}
