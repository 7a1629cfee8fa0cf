package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rl1809/split-market/internal/port"
)

func newSQLiteStore(t *testing.T) port.Store {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewSQLiteAdapter(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteStore)
}

func TestSQLiteStore_MigrateIsRepeatable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteAdapter(db)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Migrate(context.Background()))
}

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/splitmarket_test"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

func TestMySQLStore(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	runStoreSuite(t, func(t *testing.T) port.Store {
		store := NewMySQLAdapter(db)
		ctx := context.Background()
		require.NoError(t, store.Migrate(ctx))
		for _, table := range []string{"settings", "properties", "splits", "offers", "sagas", "escrow_holds", "ledger_entries"} {
			_, err := db.ExecContext(ctx, "DELETE FROM "+table)
			require.NoError(t, err)
		}
		return store
	})
}
