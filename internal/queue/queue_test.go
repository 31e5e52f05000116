package queue

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/store"
)

func setup(t *testing.T) (*store.Store, *Queue, *clock.Fake) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "field.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := clock.NewFake(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	q := New(c, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, s.InTx(context.Background(), func(tx *store.Tx) error {
		return tx.Upsert(context.Background(), &model.Zone{ID: "z1", Name: "North"})
	}))
	return s, q, c
}

func household() *model.Household {
	return &model.Household{
		ID: "h1", Token: "HH-1", ZoneID: "z1", FamilySize: 3,
		DisplacementStatus: model.Displaced,
	}
}

func TestRecord_WritesDomainAndQueueTogether(t *testing.T) {
	s, q, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx *store.Tx) error {
		return q.Record(ctx, tx, household(), model.ActionCreate)
	}))

	require.NoError(t, s.View(ctx, func(tx *store.Tx) error {
		h, err := tx.GetHousehold(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, model.SyncPending, h.SyncStatus)
		assert.Equal(t, "2025-06-01T08:00:00.000000Z", h.Updated.String())

		items, err := q.Drain(ctx, tx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "household:h1:2025-06-01T08:00:00.000000Z", items[0].ID)
		assert.Equal(t, model.ActionCreate, items[0].Action)
		return nil
	}))
}

func TestRecord_FailedDomainWriteLeavesNoQueueItem(t *testing.T) {
	s, q, _ := setup(t)
	ctx := context.Background()

	bad := household()
	bad.ZoneID = "unknown"
	err := s.InTx(ctx, func(tx *store.Tx) error {
		return q.Record(ctx, tx, bad, model.ActionCreate)
	})
	require.Error(t, err)

	require.NoError(t, s.View(ctx, func(tx *store.Tx) error {
		n, err := q.Count(ctx, tx)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
}

func TestDrain_DoesNotRemove(t *testing.T) {
	s, q, c := setup(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx *store.Tx) error {
		require.NoError(t, q.Record(ctx, tx, household(), model.ActionCreate))
		c.Advance(time.Second)
		return q.Record(ctx, tx, &model.Need{
			ID: "n1", HouseholdID: "h1", Category: model.CategoryFood, Quantity: 1,
			Urgency: model.UrgencyHigh, Status: model.NeedOpen,
		}, model.ActionCreate)
	}))

	var ids []string
	require.NoError(t, s.View(ctx, func(tx *store.Tx) error {
		for i := 0; i < 2; i++ {
			items, err := q.Drain(ctx, tx)
			require.NoError(t, err)
			assert.Len(t, items, 2)
			ids = []string{items[0].ID}
		}
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(tx *store.Tx) error { return q.Remove(ctx, tx, ids) }))
	require.NoError(t, s.View(ctx, func(tx *store.Tx) error {
		items, err := q.Drain(ctx, tx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, model.EntityNeed, items[0].EntityType)
		return nil
	}))
}

func TestEnqueue_Validates(t *testing.T) {
	s, q, _ := setup(t)
	ctx := context.Background()
	err := s.InTx(ctx, func(tx *store.Tx) error {
		_, err := q.Enqueue(ctx, tx, model.EntityNeed, "n1", "explode", []byte(`{}`))
		return err
	})
	assert.True(t, model.IsValidation(err))
}

func TestPayload_GroupsByEntity(t *testing.T) {
	items := []model.SyncQueueItem{
		{ID: "a", EntityType: model.EntityNeed, Payload: []byte(`{"id":"n1","household_id":"h1","category":"food","quantity":1,"urgency":"low","status":"open"}`)},
		{ID: "b", EntityType: model.EntityHousehold, Payload: []byte(`{"id":"h1","token":"T","zone_id":"z1","family_size":2,"displacement_status":"host"}`)},
		{ID: "c", EntityType: model.EntityZone, Payload: []byte(`{"id":"z1","name":"North"}`)},
	}
	p, skipped, err := Payload("field-7", model.Time{}, items)
	require.NoError(t, err)
	assert.Len(t, p.Households, 1)
	assert.Len(t, p.Needs, 1)
	assert.Equal(t, []string{"c"}, skipped)
	assert.Equal(t, "field-7", p.HubID)
}
