package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{
		"zones", "shelters", "pickup_points", "households", "household_members", "needs",
		"offers", "requests", "matches", "inventory", "distributions", "audit_log",
		"sync_log", "sync_queue", "sync_state",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": "2",
	}
	for name, want := range checks {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestMigrateToV2_AddsDigestColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	// Simulate a v1 database: rebuild sync_log without the digest column.
	for _, stmt := range []string{
		"DROP TABLE sync_log",
		`CREATE TABLE sync_log (id TEXT PRIMARY KEY, hub_id TEXT NOT NULL DEFAULT '',
			direction TEXT NOT NULL, outcome TEXT NOT NULL, records_count INTEGER NOT NULL DEFAULT 0,
			conflicts_count INTEGER NOT NULL DEFAULT 0, error TEXT NOT NULL DEFAULT '', timestamp TEXT NOT NULL)`,
		"PRAGMA user_version = 1",
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM pragma_table_info('sync_log') WHERE name = 'payload_digest'`); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("payload_digest column missing after migration")
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sentinel := os.ErrInvalid
	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.Upsert(ctx, testZone("z1")); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("InTx() error = %v, want sentinel", err)
	}

	err = s.View(ctx, func(tx *Tx) error {
		ok, err := tx.Exists(ctx, "zone", "z1")
		if err != nil {
			return err
		}
		if ok {
			t.Error("zone persisted after rollback")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSavepoint_UndoesOnlyFailedWork(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustTx(t, s, func(tx *Tx) error {
		if err := tx.Upsert(ctx, testZone("z1")); err != nil {
			return err
		}
		err := tx.Savepoint(ctx, func() error {
			if err := tx.Upsert(ctx, testZone("z2")); err != nil {
				return err
			}
			// Unknown zone: foreign key violation.
			return tx.Upsert(ctx, testHousehold("h1", "missing"))
		})
		if err == nil {
			t.Error("expected foreign key failure inside savepoint")
		}
		return tx.Upsert(ctx, testHousehold("h2", "z1"))
	})

	_ = s.View(ctx, func(tx *Tx) error {
		for id, want := range map[string]bool{"z1": true, "z2": false} {
			got, _ := tx.Exists(ctx, "zone", id)
			if got != want {
				t.Errorf("zone %s exists = %v, want %v", id, got, want)
			}
		}
		got, _ := tx.Exists(ctx, "household", "h2")
		if !got {
			t.Error("household h2 written after savepoint rollback is missing")
		}
		return nil
	})
}
