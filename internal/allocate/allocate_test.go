package allocate

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/queue"
	"github.com/roach88/ataa/internal/rules"
	"github.com/roach88/ataa/internal/store"
	"github.com/roach88/ataa/internal/testutil"
)

func candidate(needID, hid string, priority int, c model.Category, qty int, u model.Urgency) store.NeedCandidate {
	head := "Head " + hid
	if hid == "h2" {
		head = ""
	}
	return store.NeedCandidate{
		NeedID:         needID,
		HouseholdID:    hid,
		Category:       c,
		Quantity:       qty,
		Urgency:        u,
		HouseholdToken: "HH-" + hid,
		HeadName:       head,
		PriorityScore:  priority,
		ZoneID:         "z1",
		ZoneName:       "Zone z1",
	}
}

func inventoryFixture() []model.InventoryItem {
	rice := testutil.Inventory("inv-rice", "wh-1", model.CategoryFood, 5)
	rice.ItemName = "bulk rice"
	flour := testutil.Inventory("inv-flour", "wh-1", model.CategoryFood, 2)
	flour.ItemName = "wheat flour"
	water := testutil.Inventory("inv-water", "wh-1", model.CategoryWater, 10)
	water.ItemName = "water can"
	water.QtyReserved = 8
	soap := testutil.Inventory("inv-soap", "wh-1", model.CategoryHygiene, 0)
	soap.ItemName = "soap"
	return []model.InventoryItem{*rice, *flour, *soap, *water}
}

func candidatesFixture() []store.NeedCandidate {
	return []store.NeedCandidate{
		candidate("n1", "h2", 12, model.CategoryFood, 3, model.UrgencyCritical),
		candidate("n2", "h1", 20, model.CategoryWater, 2, model.UrgencyHigh),
		candidate("n3", "h1", 20, model.CategoryFood, 4, model.UrgencyHigh),
		candidate("n4", "h3", 5, model.CategoryMedicine, 1, model.UrgencyMedium),
		candidate("n5", "h3", 5, model.CategoryFood, 2, model.UrgencyLow),
	}
}

func assertGoldenPlan(t *testing.T, name string, plan *Plan) {
	t.Helper()
	data, err := model.MarshalCanonical(plan)
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

func TestGreedy_Golden(t *testing.T) {
	plan := Greedy(candidatesFixture(), inventoryFixture(), 50)

	assert.Equal(t, 3, plan.Households)
	assert.Equal(t, 9, plan.ItemsAllocated)
	assert.Equal(t, 1, plan.UnmetNeeds)
	assert.Equal(t, 100, plan.Utilization)
	assertGoldenPlan(t, "greedy_plan", plan)
}

func TestGreedy_CapGatesHouseholds(t *testing.T) {
	plan := Greedy(candidatesFixture(), inventoryFixture(), 1)

	require.Len(t, plan.Suggestions, 1)
	assert.Equal(t, "h2", plan.Suggestions[0].HouseholdID)
	assert.Equal(t, 3, plan.ItemsAllocated)
	assert.Equal(t, 0, plan.UnmetNeeds)
	assert.Equal(t, 33, plan.Utilization) // 3/9
}

func TestGreedy_NoInventory(t *testing.T) {
	plan := Greedy(candidatesFixture(), nil, 50)

	assert.Empty(t, plan.Suggestions)
	assert.Equal(t, 5, plan.UnmetNeeds)
	assert.Equal(t, 0, plan.Utilization)
}

func TestGreedy_NeverExceedsRemaining(t *testing.T) {
	inv := inventoryFixture()
	needs := candidatesFixture()
	for i := 0; i < 20; i++ {
		needs = append(needs, candidate("x", "h4", 1, model.CategoryFood, 3, model.UrgencyLow))
	}

	plan := Greedy(needs, inv, 50)

	used := make(map[string]int)
	for _, s := range plan.Suggestions {
		for _, it := range s.Items {
			used[it.InventoryID] += it.Quantity
		}
	}
	for _, it := range inv {
		assert.LessOrEqual(t, used[it.ID], it.Remaining(), it.ID)
	}

	allocatedNeeds := 0
	for _, s := range plan.Suggestions {
		allocatedNeeds += len(s.Items)
	}
	assert.Equal(t, len(needs), allocatedNeeds+plan.UnmetNeeds)
}

type fixture struct {
	opt *Optimizer
	st  *store.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := testutil.NewStore(t)
	r := rules.Defaults()
	clk := testutil.NewClock()
	opt := New(st, &r, queue.Direct{Clock: clk}, model.NewSequenceGenerator("id"), clk, testutil.Logger(), nil)

	h1 := testutil.Household("h1", "z1")
	h1.PriorityScore = 20
	h2 := testutil.Household("h2", "z1")
	h2.PriorityScore = 12
	h2.HeadName = ""
	h3 := testutil.Household("h3", "z1")
	h3.PriorityScore = 5

	need := func(id, hid string, c model.Category, qty int, u model.Urgency) *model.Need {
		n := testutil.Need(id, hid, c, u)
		n.Quantity = qty
		return n
	}
	recs := []model.Record{
		testutil.Zone("z1"), h1, h2, h3,
		need("n1", "h2", model.CategoryFood, 3, model.UrgencyCritical),
		need("n2", "h1", model.CategoryWater, 2, model.UrgencyHigh),
		need("n3", "h1", model.CategoryFood, 4, model.UrgencyHigh),
		need("n4", "h3", model.CategoryMedicine, 1, model.UrgencyMedium),
		need("n5", "h3", model.CategoryFood, 2, model.UrgencyLow),
	}
	inv := inventoryFixture()
	for i := range inv {
		recs = append(recs, &inv[i])
	}
	testutil.Seed(t, st, recs...)
	return fixture{opt: opt, st: st}
}

func TestOptimize_MatchesGreedyGolden(t *testing.T) {
	f := newFixture(t)

	plan, err := f.opt.Optimize(context.Background(), Options{})
	require.NoError(t, err)
	assertGoldenPlan(t, "greedy_plan", plan)
}

func TestOptimize_ZoneAndLocationFilters(t *testing.T) {
	f := newFixture(t)

	plan, err := f.opt.Optimize(context.Background(), Options{ZoneID: "elsewhere"})
	require.NoError(t, err)
	assert.Empty(t, plan.Suggestions)
	assert.Equal(t, 0, plan.UnmetNeeds)

	plan, err = f.opt.Optimize(context.Background(), Options{LocationID: "wh-2"})
	require.NoError(t, err)
	assert.Equal(t, 5, plan.UnmetNeeds)

	_, err = f.opt.Optimize(context.Background(), Options{MaxHouseholds: -1})
	assert.True(t, model.IsValidation(err))
}

func TestApplyAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := model.Actor{ID: "worker-7", Role: model.RoleFieldWorker}

	plan, err := f.opt.Optimize(ctx, Options{})
	require.NoError(t, err)
	h1 := plan.Suggestions[0]
	require.Equal(t, "h1", h1.HouseholdID)

	dist, err := f.opt.Apply(ctx, h1, "wh-1", actor)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionPlanned, dist.Status)
	assert.Equal(t, 4, dist.Items.Total())

	err = f.st.View(ctx, func(tx *store.Tx) error {
		water, err := tx.GetInventory(ctx, "inv-water")
		require.NoError(t, err)
		assert.Equal(t, 10, water.QtyReserved)
		rice, err := tx.GetInventory(ctx, "inv-rice")
		require.NoError(t, err)
		assert.Equal(t, 2, rice.QtyReserved)
		return nil
	})
	require.NoError(t, err)

	// Stock is reserved, so applying the same suggestion again fails.
	_, err = f.opt.Apply(ctx, h1, "wh-1", actor)
	assert.True(t, model.IsValidation(err))

	done, err := f.opt.Complete(ctx, dist.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionCompleted, done.Status)
	assert.Equal(t, testutil.T0, done.DistributedAt)

	err = f.st.View(ctx, func(tx *store.Tx) error {
		water, err := tx.GetInventory(ctx, "inv-water")
		require.NoError(t, err)
		assert.Equal(t, 8, water.QtyAvailable)
		assert.Equal(t, 8, water.QtyReserved)
		for _, id := range []string{"n2", "n3"} {
			n, err := tx.GetNeed(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, model.NeedMet, n.Status, id)
		}
		last, err := tx.LastDistributedAt(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, testutil.T0, last)
		audits, err := tx.Query(ctx, model.EntityAuditLog, store.Where(store.Eq("entity_id", dist.ID)))
		require.NoError(t, err)
		assert.Len(t, audits, 2)
		return nil
	})
	require.NoError(t, err)

	_, err = f.opt.Complete(ctx, dist.ID, actor)
	assert.True(t, model.IsValidation(err))
}

func TestCancelReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := Suggestion{
		HouseholdID: "h3",
		Items:       []Item{{InventoryID: "inv-flour", Quantity: 2, NeedID: "n5"}},
	}
	dist, err := f.opt.Apply(ctx, s, "wh-1", model.SystemActor)
	require.NoError(t, err)

	_, err = f.opt.Cancel(ctx, dist.ID, model.SystemActor)
	require.NoError(t, err)

	err = f.st.View(ctx, func(tx *store.Tx) error {
		flour, err := tx.GetInventory(ctx, "inv-flour")
		require.NoError(t, err)
		assert.Equal(t, 0, flour.QtyReserved)
		n, err := tx.GetNeed(ctx, "n5")
		require.NoError(t, err)
		assert.Equal(t, model.NeedOpen, n.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestApply_RejectsForeignNeed(t *testing.T) {
	f := newFixture(t)

	s := Suggestion{
		HouseholdID: "h3",
		Items:       []Item{{InventoryID: "inv-rice", Quantity: 1, NeedID: "n1"}},
	}
	_, err := f.opt.Apply(context.Background(), s, "wh-1", model.SystemActor)
	assert.True(t, model.IsValidation(err))
}

func planNeeds(plan *Plan) []string {
	var ids []string
	for _, s := range plan.Suggestions {
		for _, it := range s.Items {
			ids = append(ids, it.NeedID)
		}
	}
	return ids
}

func TestApply_NeedReservedOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := Suggestion{
		HouseholdID: "h2",
		Items:       []Item{{InventoryID: "inv-rice", Quantity: 3, NeedID: "n1"}},
	}
	dist, err := f.opt.Apply(ctx, s, "wh-1", model.SystemActor)
	require.NoError(t, err)

	plan, err := f.opt.Optimize(ctx, Options{})
	require.NoError(t, err)
	assert.NotContains(t, planNeeds(plan), "n1")

	again := Suggestion{
		HouseholdID: "h2",
		Items:       []Item{{InventoryID: "inv-rice", Quantity: 2, NeedID: "n1"}},
	}
	_, err = f.opt.Apply(ctx, again, "wh-1", model.SystemActor)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	err = f.st.View(ctx, func(tx *store.Tx) error {
		rice, err := tx.GetInventory(ctx, "inv-rice")
		require.NoError(t, err)
		assert.Equal(t, 3, rice.QtyReserved)
		return nil
	})
	require.NoError(t, err)

	// Cancelling the distribution frees the need for the next plan.
	_, err = f.opt.Cancel(ctx, dist.ID, model.SystemActor)
	require.NoError(t, err)
	plan, err = f.opt.Optimize(ctx, Options{})
	require.NoError(t, err)
	assert.Contains(t, planNeeds(plan), "n1")
}
