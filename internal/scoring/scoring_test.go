package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/rules"
	"github.com/roach88/ataa/internal/store"
	"github.com/roach88/ataa/internal/testutil"
)

func defaults() *rules.Rules {
	r := rules.Defaults()
	return &r
}

func TestCompute_OrphansLargeFamily(t *testing.T) {
	h := testutil.Household("h1", "z1")
	h.FamilySize = 8
	h.VulnerabilityFlags = model.Flags{model.FlagOrphans, model.FlagLargeFamily}

	s := Compute(defaults(), Snapshot{Household: *h}, testutil.Epoch)

	assert.Equal(t, 7, s.Vulnerability)
	assert.Equal(t, 3, s.Family)
	assert.Equal(t, 0, s.UnmetNeeds)
	assert.Equal(t, 10, s.Recency)
	assert.Equal(t, 3, s.Displacement)
	assert.Equal(t, 23, s.Raw())
	assert.Equal(t, 13, s.Total) // 23/55*30 = 12.55
	assert.Equal(t, 5, s.Factors["vuln_orphans"])
	assert.Equal(t, -1, s.Factors[FactorDaysSince])
}

func TestCompute_CapsEverySubScore(t *testing.T) {
	h := testutil.Household("h1", "z1")
	h.FamilySize = 9
	h.VulnerabilityFlags = model.Flags{
		model.FlagOrphans, model.FlagDisabled, model.FlagElderlyAlone,
		model.FlagPregnant, model.FlagChronicIllness, model.FlagFemaleHeaded,
	}
	snap := Snapshot{
		Household: *h,
		Members: []model.HouseholdMember{
			*testutil.Member("m1", "h1", model.AgeInfant),
			*testutil.Member("m2", "h1", model.AgeElderly),
			*testutil.Member("m3", "h1", model.AgeChild),
		},
		OpenNeeds: []model.Need{
			*testutil.Need("n1", "h1", model.CategoryFood, model.UrgencyCritical),
			*testutil.Need("n2", "h1", model.CategoryWater, model.UrgencyCritical),
			*testutil.Need("n3", "h1", model.CategoryMedicine, model.UrgencyCritical),
		},
	}

	s := Compute(defaults(), snap, testutil.Epoch)

	assert.Equal(t, 20, s.Vulnerability) // 21 before cap
	assert.Equal(t, 7, s.Factors[FactorAgeComposition])
	assert.Equal(t, 10, s.Family)
	assert.Equal(t, 10, s.UnmetNeeds)
	assert.Equal(t, 3, s.Factors[FactorOpenNeeds])
	assert.Equal(t, 29, s.Total) // 53/55*30 = 28.9
}

func TestCompute_UnknownValues(t *testing.T) {
	h := testutil.Household("h1", "z1")
	h.FamilySize = 1
	h.DisplacementStatus = "nomad"
	h.VulnerabilityFlags = model.Flags{"unlisted"}
	snap := Snapshot{
		Household: *h,
		OpenNeeds: []model.Need{{ID: "n1", Urgency: "whenever"}},
	}

	s := Compute(defaults(), snap, testutil.Epoch)

	assert.Equal(t, 1, s.Vulnerability)
	assert.Equal(t, 1, s.UnmetNeeds)
	assert.Equal(t, 1, s.Displacement)
}

func TestCompute_RecencyBuckets(t *testing.T) {
	tests := []struct {
		name string
		days int
		want int
	}{
		{"today", 0, 1},
		{"seven days", 7, 1},
		{"eight days", 8, 3},
		{"fifteen days", 15, 5},
		{"twenty two days", 22, 7},
		{"thirty days", 30, 7},
		{"thirty one days", 31, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.Household("h1", "z1")
			snap := Snapshot{Household: *h, LastDelivered: testutil.T0}
			now := testutil.Epoch.Add(testutil.Days(tt.days))

			s := Compute(defaults(), snap, now)

			assert.Equal(t, tt.want, s.Recency)
			assert.Equal(t, tt.days, s.Factors[FactorDaysSince])
		})
	}
}

func TestCompute_DisplacementCapped(t *testing.T) {
	r := defaults()
	r.Displacement.Displaced = 9
	h := testutil.Household("h1", "z1")

	s := Compute(r, Snapshot{Household: *h}, testutil.Epoch)
	assert.Equal(t, 5, s.Displacement)
}

func TestNormalize_Bounds(t *testing.T) {
	scale := rules.ScoreScale{RawMax: 55, Max: 30}
	assert.Equal(t, 0, Normalize(scale, 0))
	assert.Equal(t, 30, Normalize(scale, 55))
	assert.Equal(t, 30, Normalize(scale, 80))
	assert.Equal(t, 0, Normalize(scale, -4))
	assert.Equal(t, 15, Normalize(scale, 27)) // 14.73
}

func newScorer(t *testing.T) (*Scorer, *store.Store) {
	t.Helper()
	st := testutil.NewStore(t)
	return New(st, defaults(), testutil.NewClock(), testutil.Logger(), nil), st
}

func TestScorer_Score(t *testing.T) {
	s, st := newScorer(t)
	h := testutil.Household("h1", "z1")
	h.VulnerabilityFlags = model.Flags{model.FlagDisabled}
	closed := testutil.Need("n2", "h1", model.CategoryWater, model.UrgencyHigh)
	closed.Status = model.NeedMet
	testutil.Seed(t, st,
		testutil.Zone("z1"), h,
		testutil.Member("m1", "h1", model.AgeInfant),
		testutil.Need("n1", "h1", model.CategoryFood, model.UrgencyCritical),
		closed,
		testutil.Distribution("d1", "h1", testutil.At(-testutil.Days(10))),
	)

	got, err := s.Score(context.Background(), "h1")
	require.NoError(t, err)

	assert.Equal(t, 4, got.Vulnerability)
	assert.Equal(t, 5, got.Family) // size 4 -> 1, infant -> 4
	assert.Equal(t, 4, got.UnmetNeeds)
	assert.Equal(t, 3, got.Recency)
	assert.Equal(t, 3, got.Displacement)
	assert.Equal(t, 10, got.Total) // 19/55*30 = 10.36
}

func TestScorer_Score_NotFound(t *testing.T) {
	s, _ := newScorer(t)

	_, err := s.Score(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestScorer_RecomputeAll(t *testing.T) {
	s, st := newScorer(t)
	h1 := testutil.Household("h1", "z1")
	h1.VulnerabilityFlags = model.Flags{model.FlagOrphans}
	h2 := testutil.Household("h2", "z1")
	testutil.Seed(t, st, testutil.Zone("z1"), h1, h2)

	res, err := s.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecomputeResult{Updated: 2}, res)

	err = st.View(context.Background(), func(tx *store.Tx) error {
		got, err := tx.GetHousehold(context.Background(), "h1")
		require.NoError(t, err)
		assert.Equal(t, 10, got.PriorityScore) // 5+1+0+10+3 = 19
		assert.Equal(t, testutil.T0, got.Updated)
		return nil
	})
	require.NoError(t, err)
}

func TestScorer_RecomputeAll_SkipsBadHousehold(t *testing.T) {
	s, st := newScorer(t)
	testutil.Seed(t, st, testutil.Zone("z1"),
		testutil.Household("h1", "z1"),
		testutil.Household("h2", "z1"),
	)
	_, err := st.DB().Exec(`UPDATE households SET vulnerability_flags = 'not json' WHERE id = 'h1'`)
	require.NoError(t, err)

	res, err := s.RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Skipped)
}
