package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ataa/internal/model"
)

func TestUpsertGet_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	h := testHousehold("h1", "z1")
	mustTx(t, s, func(tx *Tx) error {
		require.NoError(t, tx.Upsert(ctx, testZone("z1")))
		return tx.Upsert(ctx, h)
	})

	var got *model.Household
	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		var err error
		got, err = tx.GetHousehold(ctx, "h1")
		return err
	}))
	assert.Equal(t, "", got.ShelterID, "NULL shelter reads back as empty")
	assert.Equal(t, model.SyncPending, got.SyncStatus, "empty sync status defaults to pending")
	assert.Equal(t, h.VulnerabilityFlags, got.VulnerabilityFlags)
	assert.True(t, h.CreatedAt.Equal(got.CreatedAt.Time))

	rec, err := getRecord(t, s, model.EntityHousehold, "h1")
	require.NoError(t, err)
	assert.Equal(t, "TOK-h1", rec.(*model.Household).Token)
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := getRecord(t, s, model.EntityNeed, "nope")
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestUpsert_RejectsInvalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	err := s.InTx(ctx, func(tx *Tx) error {
		return tx.Upsert(ctx, &model.Need{ID: "n1", HouseholdID: "h1", Category: "cars", Quantity: 1})
	})
	assert.True(t, model.IsValidation(err))
}

func TestUpsert_IdempotentAndKeepsChildren(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	member := &model.HouseholdMember{ID: "m1", HouseholdID: "h1", AgeBand: model.AgeInfant, CreatedAt: t0, Updated: t0}
	write := func() {
		mustTx(t, s, func(tx *Tx) error {
			require.NoError(t, tx.Upsert(ctx, testZone("z1")))
			require.NoError(t, tx.Upsert(ctx, testHousehold("h1", "z1")))
			return tx.Upsert(ctx, member)
		})
	}
	write()
	write()

	// Re-applying the household must not cascade-delete its members.
	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		members, err := tx.Members(ctx, "h1")
		require.NoError(t, err)
		assert.Len(t, members, 1)
		return nil
	}))
}

func TestUpsert_ForeignKeyViolation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	err := s.InTx(ctx, func(tx *Tx) error {
		return tx.Upsert(ctx, testHousehold("h1", "no-such-zone"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")
}

func TestUpsert_NormalizesHouseholdToken(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Decomposed "é" with surrounding spaces.
	h1 := testHousehold("h1", "z1")
	h1.Token = " cafe\u0301 "
	mustTx(t, s, func(tx *Tx) error {
		require.NoError(t, tx.Upsert(ctx, testZone("z1")))
		return tx.Upsert(ctx, h1)
	})

	rec, err := getRecord(t, s, model.EntityHousehold, "h1")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", rec.(*model.Household).Token)

	// The precomposed spelling of the same token collides on the unique index.
	h2 := testHousehold("h2", "z1")
	h2.Token = "caf\u00e9"
	err = s.InTx(ctx, func(tx *Tx) error { return tx.Upsert(ctx, h2) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE")
}

func TestQuery_GenericFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustTx(t, s, func(tx *Tx) error {
		require.NoError(t, tx.Upsert(ctx, testZone("z1")))
		require.NoError(t, tx.Upsert(ctx, testHousehold("h1", "z1")))
		for i, u := range []model.Urgency{model.UrgencyLow, model.UrgencyHigh, model.UrgencyCritical} {
			require.NoError(t, tx.Upsert(ctx, &model.Need{
				ID: "n" + string(rune('1'+i)), HouseholdID: "h1", Category: model.CategoryFood,
				Quantity: 1, Urgency: u, Status: model.NeedOpen,
				CreatedAt: model.NewTime(t0.Add(time.Duration(i) * time.Minute)),
			}))
		}
		return nil
	})

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		recs, err := tx.Query(ctx, model.EntityNeed, Where(In("urgency", model.UrgencyHigh, model.UrgencyCritical)))
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "n2", recs[0].RecordID())
		assert.Equal(t, "n3", recs[1].RecordID())

		recs, err = tx.Query(ctx, model.EntityNeed, Filter{}.OrderBy(OrderKey{Column: "created_at", Desc: true}).WithLimit(1))
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "n3", recs[0].RecordID())

		_, err = tx.Query(ctx, model.EntityNeed, Where(Eq("1=1; DROP TABLE needs; --", 1)))
		assert.Error(t, err)
		return nil
	}))
}

func TestInventory_ReservedNeverExceedsAvailable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustTx(t, s, func(tx *Tx) error {
		return tx.Upsert(ctx, &model.InventoryItem{ID: "i1", LocationID: "w1", Category: model.CategoryFood,
			ItemName: "rice", QtyAvailable: 10, QtyReserved: 2})
	})

	err := s.InTx(ctx, func(tx *Tx) error { return tx.AdjustInventory(ctx, "i1", 0, 9, t0) })
	assert.True(t, model.IsValidation(err))

	mustTx(t, s, func(tx *Tx) error { return tx.AdjustInventory(ctx, "i1", -3, -2, t0) })
	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		item, err := tx.GetInventory(ctx, "i1")
		require.NoError(t, err)
		assert.Equal(t, 7, item.QtyAvailable)
		assert.Equal(t, 0, item.QtyReserved)
		return nil
	}))

	// The CHECK constraint backs up Validate for raw writes.
	_, err = s.db.Exec(`UPDATE inventory SET qty_reserved = 99 WHERE id = 'i1'`)
	assert.Error(t, err)
}

func TestChangedSince_ZoneAndCursor(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	later := model.NewTime(t0.Add(time.Hour))

	mustTx(t, s, func(tx *Tx) error {
		require.NoError(t, tx.Upsert(ctx, testZone("z1")))
		require.NoError(t, tx.Upsert(ctx, testZone("z2")))
		require.NoError(t, tx.Upsert(ctx, testHousehold("h1", "z1")))
		h2 := testHousehold("h2", "z1")
		h2.Updated = later
		require.NoError(t, tx.Upsert(ctx, h2))
		require.NoError(t, tx.Upsert(ctx, testHousehold("h3", "z2")))
		require.NoError(t, tx.Upsert(ctx, &model.Need{ID: "n1", HouseholdID: "h2", Category: model.CategoryFood,
			Quantity: 1, Urgency: model.UrgencyLow, Status: model.NeedOpen, Updated: later}))
		return tx.Upsert(ctx, &model.Offer{ID: "o1", ZoneID: "z1", Category: model.CategoryFood,
			Quantity: 1, Status: model.ExchangeOpen, Updated: later})
	})

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		all, err := tx.ChangedSince(ctx, "z1", model.Time{}, true)
		require.NoError(t, err)
		assert.Len(t, all.Households, 2)
		assert.Len(t, all.Needs, 1)
		assert.Len(t, all.Offers, 1)

		recent, err := tx.ChangedSince(ctx, "z1", t0, false)
		require.NoError(t, err)
		require.Len(t, recent.Households, 1)
		assert.Equal(t, "h2", recent.Households[0].ID)
		assert.Empty(t, recent.Offers, "exchange rows are left out")

		none, err := tx.ChangedSince(ctx, "z1", later, true)
		require.NoError(t, err)
		assert.Empty(t, none.Households)
		assert.Empty(t, none.Needs)
		return nil
	}))
}

func TestQueueAndState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustTx(t, s, func(tx *Tx) error {
		require.NoError(t, tx.EnqueueItem(ctx, model.SyncQueueItem{ID: "need:n1:1", EntityType: model.EntityNeed,
			EntityID: "n1", Action: model.ActionCreate, Payload: []byte(`{}`), EnqueuedAt: t0}))
		require.NoError(t, tx.EnqueueItem(ctx, model.SyncQueueItem{ID: "need:n2:1", EntityType: model.EntityNeed,
			EntityID: "n2", Action: model.ActionCreate, Payload: []byte(`{}`), EnqueuedAt: t0}))
		return tx.SetState(ctx, StatePullCursor, "2025-06-01T08:00:00.000000Z")
	})

	mustTx(t, s, func(tx *Tx) error {
		items, err := tx.QueueItems(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		require.NoError(t, tx.DeleteQueueItems(ctx, []string{items[0].ID}))
		n, err := tx.QueueCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		v, err := tx.GetState(ctx, StatePullCursor)
		require.NoError(t, err)
		assert.Equal(t, "2025-06-01T08:00:00.000000Z", v)
		v, err = tx.GetState(ctx, "unset")
		require.NoError(t, err)
		assert.Empty(t, v)
		return nil
	})
}

func TestSyncLog_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustTx(t, s, func(tx *Tx) error {
		for i := 0; i < 3; i++ {
			require.NoError(t, tx.AppendSyncLog(ctx, model.SyncLogEntry{
				ID: "log" + string(rune('a'+i)), HubID: "hub-1", Direction: model.DirectionPush,
				Outcome: model.OutcomeOK, RecordsCount: i,
				Timestamp: model.NewTime(t0.Add(time.Duration(i) * time.Second)),
			}))
		}
		return nil
	})
	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		entries, err := tx.SyncLog(ctx, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "logc", entries[0].ID)
		assert.Equal(t, 2, entries[0].RecordsCount)
		return nil
	}))
}

func getRecord(t *testing.T, s *Store, entity model.EntityType, id string) (model.Record, error) {
	t.Helper()
	var rec model.Record
	err := s.View(context.Background(), func(tx *Tx) error {
		var err error
		rec, err = tx.Get(context.Background(), entity, id)
		return err
	})
	return rec, err
}
