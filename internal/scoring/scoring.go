// Package scoring computes bounded household priority scores.
//
// Compute is a pure function over a household snapshot. Scorer loads the
// snapshot from the store, and RecomputeAll persists fresh totals for every
// household in one transaction, skipping households that fail.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/metrics"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/rules"
	"github.com/roach88/ataa/internal/store"
)

// Factor keys reported alongside the sub-scores.
const (
	FactorFamilySize       = "family_size"
	FactorAgeComposition   = "age_composition"
	FactorOpenNeeds        = "open_needs_count"
	FactorNeedsUrgency     = "needs_urgency_total"
	FactorDaysSince        = "days_since_distribution"
	FactorTimeScore        = "time_score"
	FactorDisplacement     = "displacement"
	factorVulnerabilityPre = "vuln_"
)

// displacementCap bounds the displacement sub-score regardless of rules.
const displacementCap = 5

// Score is the structured result for one household.
type Score struct {
	HouseholdID   string         `json:"household_id"`
	Vulnerability int            `json:"vulnerability_score"`
	Family        int            `json:"family_composition_score"`
	UnmetNeeds    int            `json:"unmet_needs_score"`
	Recency       int            `json:"time_since_distribution_score"`
	Displacement  int            `json:"displacement_score"`
	Total         int            `json:"total_score"`
	Factors       map[string]int `json:"factors"`
}

// Raw is the unnormalized sum of the sub-scores.
func (s Score) Raw() int {
	return s.Vulnerability + s.Family + s.UnmetNeeds + s.Recency + s.Displacement
}

// Snapshot is everything Compute reads about one household.
type Snapshot struct {
	Household     model.Household
	Members       []model.HouseholdMember
	OpenNeeds     []model.Need
	LastDelivered model.Time
}

// Compute scores snap at now.
func Compute(r *rules.Rules, snap Snapshot, now time.Time) Score {
	h := snap.Household
	s := Score{HouseholdID: h.ID, Factors: make(map[string]int)}

	vuln := 0
	for _, flag := range h.VulnerabilityFlags {
		w := r.Vulnerability.Weight(flag)
		vuln += w
		s.Factors[factorVulnerabilityPre+flag] = w
	}
	s.Vulnerability = min(vuln, r.Vulnerability.Cap)

	size := r.Family.SizePoints(h.FamilySize)
	s.Factors[FactorFamilySize] = size
	age := 0
	for _, m := range snap.Members {
		age += r.Family.AgePoints(m.AgeBand)
	}
	age = min(age, r.Family.AgeCap)
	s.Factors[FactorAgeComposition] = age
	s.Family = min(size+age, r.Family.Cap)

	needs := 0
	for _, n := range snap.OpenNeeds {
		needs += r.Urgency.Weight(n.Urgency)
	}
	s.UnmetNeeds = min(needs, r.Urgency.Cap)
	s.Factors[FactorOpenNeeds] = len(snap.OpenNeeds)
	s.Factors[FactorNeedsUrgency] = s.UnmetNeeds

	if snap.LastDelivered.IsZero() {
		s.Recency = r.Recency.Never
		s.Factors[FactorDaysSince] = -1
	} else {
		days := DaysBetween(snap.LastDelivered.Time, now)
		s.Recency = r.Recency.Points(days)
		s.Factors[FactorDaysSince] = days
	}
	s.Factors[FactorTimeScore] = s.Recency

	s.Displacement = min(r.Displacement.Weight(h.DisplacementStatus), displacementCap)
	s.Factors[FactorDisplacement] = s.Displacement

	s.Total = Normalize(r.Score, s.Raw())
	return s
}

// Normalize maps raw onto [0, scale.Max], rounding half away from zero.
func Normalize(scale rules.ScoreScale, raw int) int {
	total := int(math.Round(float64(raw) / float64(scale.RawMax) * float64(scale.Max)))
	return max(0, min(total, scale.Max))
}

// DaysBetween returns whole days elapsed from then to now, floored.
func DaysBetween(then, now time.Time) int {
	return int(math.Floor(now.Sub(then).Hours() / 24))
}

// Scorer reads households from the store and scores them.
type Scorer struct {
	store   *store.Store
	rules   *rules.Rules
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(st *store.Store, r *rules.Rules, c clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Scorer {
	return &Scorer{store: st, rules: r, clock: c, logger: logger, metrics: m}
}

// Score computes the score of one household without writing anything.
// Unknown IDs return a NotFound error.
func (s *Scorer) Score(ctx context.Context, householdID string) (*Score, error) {
	var out *Score
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = s.ScoreTx(ctx, tx, householdID)
		return err
	})
	return out, err
}

// ScoreTx is Score inside the caller's transaction.
func (s *Scorer) ScoreTx(ctx context.Context, tx *store.Tx, householdID string) (*Score, error) {
	snap, err := LoadSnapshot(ctx, tx, householdID)
	if err != nil {
		return nil, err
	}
	score := Compute(s.rules, *snap, s.clock.Now())
	return &score, nil
}

// LoadSnapshot reads the household, its members, its open needs and its
// latest completed distribution.
func LoadSnapshot(ctx context.Context, tx *store.Tx, householdID string) (*Snapshot, error) {
	h, err := tx.GetHousehold(ctx, householdID)
	if err != nil {
		return nil, err
	}
	members, err := tx.Members(ctx, householdID)
	if err != nil {
		return nil, err
	}
	needs, err := tx.OpenNeeds(ctx, householdID)
	if err != nil {
		return nil, err
	}
	last, err := tx.LastDistributedAt(ctx, householdID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Household: *h, Members: members, OpenNeeds: needs, LastDelivered: last}, nil
}

// RecomputeResult counts the outcome of a bulk recompute.
type RecomputeResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// RecomputeAll rescores every household in one transaction and persists
// the totals. A household that fails to score or persist is rolled back to
// its savepoint and skipped.
func (s *Scorer) RecomputeAll(ctx context.Context) (RecomputeResult, error) {
	var res RecomputeResult
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		ids, err := tx.HouseholdIDs(ctx)
		if err != nil {
			return err
		}
		now := clock.Stamp(s.clock)
		for _, id := range ids {
			err := tx.Savepoint(ctx, func() error {
				score, err := s.ScoreTx(ctx, tx, id)
				if err != nil {
					return err
				}
				return tx.SetPriority(ctx, id, score.Total, now)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("skipping household in recompute", "household_id", id, "error", err)
				res.Skipped++
				continue
			}
			res.Updated++
		}
		return nil
	})
	if err != nil {
		return RecomputeResult{}, fmt.Errorf("recompute priorities: %w", err)
	}
	s.metrics.Recomputed(res.Updated, res.Skipped)
	s.logger.Info("priorities recomputed", "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}
