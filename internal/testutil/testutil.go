// Package testutil provides store fixtures shared by package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/store"
)

// Epoch is the fixed start time of every fake clock in tests.
var Epoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// T0 is Epoch as a stored timestamp.
var T0 = model.NewTime(Epoch)

// At returns Epoch shifted by d as a stored timestamp.
func At(d time.Duration) model.Time {
	return model.NewTime(Epoch.Add(d))
}

// Days is shorthand for n*24h.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// NewStore opens a fresh SQLite store under t.TempDir.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ataa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// NewClock returns a fake clock at Epoch.
func NewClock() *clock.Fake {
	return clock.NewFake(Epoch)
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Seed upserts recs in order inside one transaction.
func Seed(t testing.TB, st *store.Store, recs ...model.Record) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx *store.Tx) error {
		for _, r := range recs {
			if err := tx.Upsert(context.Background(), r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}
