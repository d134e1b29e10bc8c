package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(dir string) config.DatabaseConfig
	}{
		{
			name: "wal mode",
			cfg: func(dir string) config.DatabaseConfig {
				return config.DatabaseConfig{Path: filepath.Join(dir, "a.db"), WALMode: true, BusyTimeout: 5}
			},
		},
		{
			name: "rollback journal",
			cfg: func(dir string) config.DatabaseConfig {
				return config.DatabaseConfig{Path: filepath.Join(dir, "b.db"), BusyTimeout: 1}
			},
		},
		{
			name: "creates nested directory",
			cfg: func(dir string) config.DatabaseConfig {
				return config.DatabaseConfig{Path: filepath.Join(dir, "nested", "deeper", "c.db"), WALMode: true}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg(t.TempDir())
			db, err := Open(cfg)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer db.Close() //nolint:errcheck // test cleanup

			if db.Path() != cfg.Path {
				t.Errorf("Path() = %q, want %q", db.Path(), cfg.Path)
			}
			if _, err := os.Stat(filepath.Dir(cfg.Path)); err != nil {
				t.Errorf("directory not created: %v", err)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "close.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("expected HealthCheck to fail after Close")
	}

	var nilDB *DB
	if err := nilDB.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	t.Run("commit", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1')")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		if n := countRows(t, db, "kv"); n != 1 {
			t.Errorf("rows = %d, want 1", n)
		}
	})

	t.Run("rollback on error", func(t *testing.T) {
		sentinel := errors.New("abort")
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('b', '2')"); err != nil {
				return err
			}
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("WithTx() error = %v, want sentinel", err)
		}
		if n := countRows(t, db, "kv"); n != 1 {
			t.Errorf("rows = %d, want 1 after rollback", n)
		}
	})
}

func TestDSN(t *testing.T) {
	got := dsn(config.DatabaseConfig{Path: "/tmp/x.db", BusyTimeout: 2, WALMode: true})
	want := "file:/tmp/x.db?_busy_timeout=2000&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL"
	if got != want {
		t.Errorf("dsn() = %q, want %q", got, want)
	}
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// openTestDB opens a throwaway database that is closed with the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}
