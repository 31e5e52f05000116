package orchestrator

import (
	"context"

	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/store"
)

// LogLimit is the number of entries served by the sync log listing.
const LogLimit = 50

// Status summarizes this tier's sync state.
type Status struct {
	Pending      map[model.EntityType]int `json:"pending"`
	TotalPending int                      `json:"total_pending"`
	QueueDepth   int                      `json:"queue_depth"`
	PullCursor   string                   `json:"pull_cursor,omitempty"`
	LastSync     *model.SyncLogEntry      `json:"last_sync"`
}

// ReadStatus counts pending records and queued items and returns the most
// recent sync log entry.
func ReadStatus(ctx context.Context, st *store.Store) (*Status, error) {
	s := &Status{}
	err := st.View(ctx, func(tx *store.Tx) error {
		var err error
		if s.Pending, err = tx.PendingCounts(ctx); err != nil {
			return err
		}
		for _, n := range s.Pending {
			s.TotalPending += n
		}
		if s.QueueDepth, err = tx.QueueCount(ctx); err != nil {
			return err
		}
		if s.PullCursor, err = tx.GetState(ctx, store.StatePullCursor); err != nil {
			return err
		}
		last, err := tx.SyncLog(ctx, 1)
		if err != nil {
			return err
		}
		if len(last) > 0 {
			s.LastSync = &last[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RecentLog returns up to LogLimit sync log entries, newest first.
func RecentLog(ctx context.Context, st *store.Store) ([]model.SyncLogEntry, error) {
	var out []model.SyncLogEntry
	err := st.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.SyncLog(ctx, LogLimit)
		return err
	})
	if out == nil {
		out = []model.SyncLogEntry{}
	}
	return out, err
}
