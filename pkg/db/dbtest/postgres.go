package dbtest

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/migrate"
)

// NewPostgres returns a client on a private schema of the database named by
// LEDGER_DB_DSN, migrated with the embedded migrations and dropped when the
// test ends. The test is skipped when the variable is unset.
func NewPostgres(t *testing.T) *db.Client {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(config.EnvDBDSN))
	if dsn == "" {
		t.Skipf("%s not set, skipping Postgres test", config.EnvDBDSN)
	}
	ctx := context.Background()

	admin, err := db.New(ctx, config.DBConfig{DSN: dsn, MaxOpenConns: 2}, nil)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	schemaName := "ledger_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if err := admin.DB().Exec("CREATE SCHEMA " + schemaName).Error; err != nil {
		_ = admin.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		if err := admin.DB().Exec("DROP SCHEMA IF EXISTS " + schemaName + " CASCADE").Error; err != nil {
			t.Logf("drop schema %s: %v", schemaName, err)
		}
		_ = admin.Close()
	})

	client, err := db.New(ctx, config.DBConfig{DSN: withSearchPath(dsn, schemaName), MaxOpenConns: 16}, nil)
	if err != nil {
		t.Fatalf("connect postgres schema: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	runner, err := migrate.NewRunner(SQLDB(t, client), migrate.Embedded())
	if err != nil {
		t.Fatalf("migration runner: %v", err)
	}
	if _, err := runner.Up(ctx); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return client
}

// withSearchPath pins every pooled connection to schema. pgx forwards unknown
// DSN parameters as runtime parameters.
func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if u, err := url.Parse(dsn); err == nil {
			q := u.Query()
			q.Set("search_path", schema)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return dsn + " search_path=" + schema
}
