package database

import (
	"context"
	"crypto/rand"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// TestPostgresEnv names the variable holding a libpq key/value connection string for an administrative connection,
// e.g. "host=localhost port=5432 user=postgres password=psw sslmode=disable".
// Tests needing postgres are skipped when it is unset.
const TestPostgresEnv = "LOADGEN_TEST_POSTGRES"

// WithTestDb creates a dedicated database, applies migrations and passes a pool on it to action.
// The database is dropped afterwards.
func WithTestDb(t *testing.T, migrations []Migration, action func(connString string, db *pgxpool.Pool) error) error {
	t.Helper()
	adminConnString := os.Getenv(TestPostgresEnv)
	if adminConnString == "" {
		t.Skipf("%s not set; skipping postgres test", TestPostgresEnv)
	}
	ctx := context.Background()

	dbName := "test_" + lowerULID()
	admin, err := pgx.Connect(ctx, adminConnString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer admin.Close(ctx)

	if _, err := admin.Exec(ctx, "CREATE DATABASE "+dbName); err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		// disconnect all db users before cleanup
		_, err := admin.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = $1`, dbName)
		if err != nil {
			log.WithError(err).Warn("Failed to disconnect users")
		}
		if _, err := admin.Exec(ctx, "DROP DATABASE "+dbName); err != nil {
			log.WithError(err).Warn("Failed to drop database")
		}
	}()

	connString := adminConnString + " dbname=" + dbName
	testDbPool, err := pgxpool.Connect(ctx, connString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer testDbPool.Close()

	if err := UpdateDatabase(ctx, testDbPool, migrations); err != nil {
		return errors.WithStack(err)
	}
	return action(connString, testDbPool)
}

func lowerULID() string {
	return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}
