package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/promo?sslmode=disable", MigrationURL("postgres://u:p@localhost:5432/promo?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/promo", MigrationURL("postgresql://localhost/promo"))
	require.Equal(t, "pgx5://localhost/promo", MigrationURL("pgx5://localhost/promo"))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
}

func TestInitMigrationCreatesTables(t *testing.T) {
	data, err := migrationFiles.ReadFile("migrations/0001_init.up.sql")
	require.NoError(t, err)
	sql := string(data)
	for _, table := range []string{"promotions", "promotion_redemptions", "domain_events", "categories", "tags", "products"} {
		require.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	require.Contains(t, sql, "lower(code)")
	require.Contains(t, sql, "UNIQUE (promotion_id, order_id)")
}
