// Package predict infers probable additional needs of a household from its
// composition. Predictions are advisory and never written to the store.
package predict

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/rules"
	"github.com/roach88/ataa/internal/scoring"
	"github.com/roach88/ataa/internal/store"
)

// Prediction is one suggested need.
type Prediction struct {
	Category          model.Category `json:"category"`
	Confidence        float64        `json:"confidence"`
	Reason            string         `json:"reason"`
	SuggestedQuantity int            `json:"suggested_quantity"`
	SuggestedUrgency  model.Urgency  `json:"suggested_urgency"`
}

// Context is the household composition the rules are evaluated against.
type Context struct {
	FamilySize        int
	LargeFamily       bool
	HasInfants        bool
	HasElderly        bool
	HasChildren       bool
	HasDisabled       bool
	HasPregnant       bool
	HasChronicIllness bool
	HasOrphans        bool
	FemaleHeaded      bool
	NewlyDisplaced    bool
	DaysRegistered    int
	OpenCategories    map[model.Category]bool
}

// NewContext derives the composition context of snap at now.
func NewContext(p rules.PredictorRules, snap scoring.Snapshot, now time.Time) Context {
	h := snap.Household
	days := 0
	if !h.CreatedAt.IsZero() {
		days = scoring.DaysBetween(h.CreatedAt.Time, now)
	}
	c := Context{
		FamilySize:        h.FamilySize,
		LargeFamily:       h.FamilySize > p.LargeFamilyOver,
		HasDisabled:       h.VulnerabilityFlags.Has(model.FlagDisabled),
		HasPregnant:       h.VulnerabilityFlags.Has(model.FlagPregnant),
		HasChronicIllness: h.VulnerabilityFlags.Has(model.FlagChronicIllness),
		HasOrphans:        h.VulnerabilityFlags.Has(model.FlagOrphans),
		FemaleHeaded:      h.VulnerabilityFlags.Has(model.FlagFemaleHeaded),
		NewlyDisplaced:    h.DisplacementStatus == model.Displaced && days < p.NewlyDisplacedDays,
		DaysRegistered:    days,
		OpenCategories:    make(map[model.Category]bool),
	}
	for _, m := range snap.Members {
		switch m.AgeBand {
		case model.AgeInfant:
			c.HasInfants = true
		case model.AgeElderly:
			c.HasElderly = true
		case model.AgeChild:
			c.HasChildren = true
		}
	}
	for _, n := range snap.OpenNeeds {
		c.OpenCategories[n.Category] = true
	}
	return c
}

// rule pairs a trait test with the predictions it triggers.
type rule struct {
	applies func(Context) bool
	emits   []rules.Prediction
}

func composition(p rules.PredictorRules) []rule {
	return []rule{
		{func(c Context) bool { return c.HasInfants }, p.Infant},
		{func(c Context) bool { return c.HasElderly }, p.Elderly},
		{func(c Context) bool { return c.HasDisabled }, p.Disabled},
		{func(c Context) bool { return c.HasPregnant }, p.Pregnant},
		{func(c Context) bool { return c.HasChronicIllness }, p.ChronicIllness},
		{func(c Context) bool { return c.LargeFamily }, p.LargeFamily},
		{func(c Context) bool { return c.NewlyDisplaced }, p.NewlyDisplaced},
		{func(c Context) bool { return c.HasOrphans }, p.Orphans},
	}
}

// Evaluate runs the composition rules against c. For each category the
// highest-confidence prediction wins; categories with an open need are
// never predicted. Fallbacks apply only to categories nothing else covered.
// The result is sorted by descending confidence, ties in first-seen order.
func Evaluate(p rules.PredictorRules, c Context) []Prediction {
	byCategory := make(map[model.Category]int)
	var out []Prediction

	put := func(r rules.Prediction, replace bool) {
		if c.OpenCategories[r.Category] {
			return
		}
		next := Prediction{
			Category:          r.Category,
			Confidence:        r.Confidence,
			Reason:            r.Reason,
			SuggestedQuantity: Quantity(p, r.Category, c.FamilySize),
			SuggestedUrgency:  r.Urgency,
		}
		i, seen := byCategory[r.Category]
		switch {
		case !seen:
			byCategory[r.Category] = len(out)
			out = append(out, next)
		case replace && r.Confidence > out[i].Confidence:
			out[i] = next
		}
	}

	for _, rl := range composition(p) {
		if !rl.applies(c) {
			continue
		}
		for _, r := range rl.emits {
			put(r, true)
		}
	}
	for _, r := range p.Fallback {
		put(r, false)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

// Quantity scales the category base by family size:
// ceil(base * max(1, size/divisor)).
func Quantity(p rules.PredictorRules, c model.Category, familySize int) int {
	scale := math.Max(1, float64(familySize)/float64(p.FamilyDivisor))
	return int(math.Ceil(float64(p.BaseQuantity(c)) * scale))
}

// Predictor loads household snapshots and evaluates the rules.
type Predictor struct {
	store  *store.Store
	rules  *rules.Rules
	clock  clock.Clock
	logger *slog.Logger
}

func New(st *store.Store, r *rules.Rules, c clock.Clock, logger *slog.Logger) *Predictor {
	return &Predictor{store: st, rules: r, clock: c, logger: logger}
}

// Predict returns the predicted needs of one household. Unknown IDs return
// a NotFound error.
func (p *Predictor) Predict(ctx context.Context, householdID string) ([]Prediction, error) {
	var snap *scoring.Snapshot
	err := p.store.View(ctx, func(tx *store.Tx) error {
		var err error
		snap, err = scoring.LoadSnapshot(ctx, tx, householdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	c := NewContext(p.rules.Predictor, *snap, p.clock.Now())
	out := Evaluate(p.rules.Predictor, c)
	p.logger.Debug("needs predicted", "household_id", householdID, "predictions", len(out))
	return out, nil
}
