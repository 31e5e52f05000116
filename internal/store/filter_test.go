package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ataa/internal/model"
)

func TestFilterCompile(t *testing.T) {
	offers := tables[model.EntityOffer]

	tests := []struct {
		name     string
		filter   Filter
		wantTail string
		wantArgs []any
	}{
		{
			name:     "no conditions uses natural order",
			filter:   Filter{},
			wantTail: " FROM offers ORDER BY created_at ASC, id COLLATE BINARY ASC",
		},
		{
			name:     "equality conditions are parameterized",
			filter:   Where(Eq("zone_id", "z1"), Eq("status", "open")),
			wantTail: " FROM offers WHERE zone_id = ? AND status = ? ORDER BY created_at ASC, id COLLATE BINARY ASC",
			wantArgs: []any{"z1", "open"},
		},
		{
			name:     "nullable column compares through COALESCE",
			filter:   Where(Eq("household_id", "")),
			wantTail: " FROM offers WHERE COALESCE(household_id, '') = ? ORDER BY created_at ASC, id COLLATE BINARY ASC",
			wantArgs: []any{""},
		},
		{
			name:     "IN with values",
			filter:   Where(In("category", "food", "water")),
			wantTail: " FROM offers WHERE category IN (?, ?) ORDER BY created_at ASC, id COLLATE BINARY ASC",
			wantArgs: []any{"food", "water"},
		},
		{
			name:     "empty IN matches nothing",
			filter:   Where(In[string]("category")),
			wantTail: " FROM offers WHERE 1 = 0 ORDER BY created_at ASC, id COLLATE BINARY ASC",
		},
		{
			name:     "explicit order and limit",
			filter:   Where(Gt("updated_at", "x")).OrderBy(OrderKey{Column: "quantity", Desc: true}).WithLimit(5),
			wantTail: " FROM offers WHERE updated_at > ? ORDER BY quantity DESC, id COLLATE BINARY ASC LIMIT ?",
			wantArgs: []any{"x", 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := tt.filter.compile(offers)
			require.NoError(t, err)
			assert.Equal(t, "SELECT "+offers.selectList+tt.wantTail, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestFilterCompile_RejectsUnknownColumns(t *testing.T) {
	needs := tables[model.EntityNeed]

	_, _, err := Where(Eq("password", "x")).compile(needs)
	assert.Error(t, err)

	_, _, err = Filter{}.OrderBy(OrderKey{Column: "random()"}).compile(needs)
	assert.Error(t, err)

	_, _, err = Where(Cond{Column: "status", Op: "LIKE", Value: "%"}).compile(needs)
	assert.Error(t, err)
}

func TestUpsertSQL_NullableAndDefaults(t *testing.T) {
	h := tables[model.EntityHousehold]
	assert.Contains(t, h.upsertSQL, "NULLIF(:shelter_id, '')")
	assert.Contains(t, h.upsertSQL, "COALESCE(NULLIF(:sync_status, ''), 'pending')")
	assert.Contains(t, h.upsertSQL, "ON CONFLICT(id) DO UPDATE SET token = excluded.token")
	assert.NotContains(t, h.upsertSQL, "id = excluded.id")
	assert.Contains(t, h.selectList, "COALESCE(shelter_id, '') AS shelter_id")
}

func TestFilterCompile_RunsOnSQLite(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	later := model.NewTime(t0.Add(time.Hour))

	offer := func(id string, c model.Category, qty int, status model.ExchangeStatus, created model.Time) *model.Offer {
		return &model.Offer{
			ID: id, ZoneID: "z1", CreatedBy: "donor-1", Category: c, Quantity: qty,
			Status: status, CreatedAt: created, Updated: created,
		}
	}
	mustTx(t, s, func(tx *Tx) error {
		for _, rec := range []model.Record{
			testZone("z1"),
			offer("o2", model.CategoryWater, 5, model.ExchangeOpen, t0),
			offer("o1", model.CategoryFood, 1, model.ExchangeOpen, t0),
			offer("o3", model.CategoryFood, 3, model.ExchangeMatched, later),
		} {
			if err := tx.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"natural order breaks ties by id", Filter{}, []string{"o1", "o2", "o3"}},
		{"equality", Where(Eq("zone_id", "z1"), Eq("status", model.ExchangeOpen)), []string{"o1", "o2"}},
		{"nullable column", Where(Eq("household_id", "")), []string{"o1", "o2", "o3"}},
		{"IN", Where(In("category", model.CategoryWater)), []string{"o2"}},
		{"empty IN", Where(In[string]("category")), nil},
		{"greater than", Where(Gt("updated_at", t0.String())), []string{"o3"}},
		{
			"explicit order and limit",
			Where(Gte("updated_at", t0.String())).OrderBy(OrderKey{Column: "quantity", Desc: true}).WithLimit(2),
			[]string{"o2", "o3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := s.View(ctx, func(tx *Tx) error {
				recs, err := tx.Query(ctx, model.EntityOffer, tt.filter)
				for _, r := range recs {
					got = append(got, r.RecordID())
				}
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
