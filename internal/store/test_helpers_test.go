package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/ataa/internal/model"
)

var t0 = model.NewTime(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustTx runs fn in a committed transaction and fails the test on error.
func mustTx(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	if err := s.InTx(context.Background(), fn); err != nil {
		t.Fatalf("InTx() failed: %v", err)
	}
}

func testZone(id string) *model.Zone {
	return &model.Zone{ID: id, Name: "Zone " + id, CreatedAt: t0}
}

func testHousehold(id, zoneID string) *model.Household {
	return &model.Household{
		ID:                 id,
		Token:              "TOK-" + id,
		ZoneID:             zoneID,
		FamilySize:         4,
		DisplacementStatus: model.Displaced,
		VulnerabilityFlags: model.Flags{model.FlagOrphans},
		CreatedBy:          "user-1",
		CreatedAt:          t0,
		Updated:            t0,
	}
}
