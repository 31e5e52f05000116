package allocate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/metrics"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/queue"
	"github.com/roach88/ataa/internal/rules"
	"github.com/roach88/ataa/internal/store"
)

// Optimizer runs allocation plans against the store and applies them.
type Optimizer struct {
	store    *store.Store
	rules    *rules.Rules
	recorder queue.Recorder
	ids      model.IDGenerator
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(st *store.Store, r *rules.Rules, rec queue.Recorder, ids model.IDGenerator, c clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Optimizer {
	return &Optimizer{store: st, rules: r, recorder: rec, ids: ids, clock: c, logger: logger, metrics: m}
}

// Optimize plans an allocation without writing anything.
func (o *Optimizer) Optimize(ctx context.Context, opts Options) (*Plan, error) {
	if opts.MaxHouseholds < 0 {
		return nil, model.Validationf("allocate: max_households must not be negative")
	}
	limit := opts.MaxHouseholds
	if limit == 0 {
		limit = o.rules.Allocation.MaxHouseholds
	}

	start := time.Now()
	var plan *Plan
	err := o.store.View(ctx, func(tx *store.Tx) error {
		needs, err := tx.AllocationCandidates(ctx, opts.ZoneID)
		if err != nil {
			return err
		}
		inv, err := tx.AvailableInventory(ctx, opts.LocationID)
		if err != nil {
			return err
		}
		plan = Greedy(needs, inv, limit)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("optimize allocation: %w", err)
	}

	o.metrics.AllocationRun(plan.ItemsAllocated, plan.UnmetNeeds, time.Since(start))
	o.logger.Info("allocation planned",
		"zone_id", opts.ZoneID,
		"households", plan.Households,
		"items_allocated", plan.ItemsAllocated,
		"unmet_needs", plan.UnmetNeeds)
	return plan, nil
}

// Apply turns a suggestion into a planned distribution at locationID and
// reserves every suggested line. The suggestion is re-checked against the
// store: each need must still be open, belong to the household and not be
// carried by another open distribution, and each inventory row must have
// enough unreserved stock.
func (o *Optimizer) Apply(ctx context.Context, s Suggestion, locationID string, actor model.Actor) (*model.Distribution, error) {
	if s.HouseholdID == "" || locationID == "" || len(s.Items) == 0 {
		return nil, model.Validationf("apply allocation: household, location and items are required")
	}

	var dist *model.Distribution
	err := o.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetHousehold(ctx, s.HouseholdID); err != nil {
			return err
		}
		now := clock.Stamp(o.clock)
		items := make(model.DistributionItems, 0, len(s.Items))
		for _, it := range s.Items {
			if it.Quantity < 1 {
				return model.Validationf("apply allocation: need %s quantity must be >= 1", it.NeedID)
			}
			if it.NeedID != "" {
				n, err := tx.GetNeed(ctx, it.NeedID)
				if err != nil {
					return err
				}
				if n.HouseholdID != s.HouseholdID || n.Status != model.NeedOpen {
					return model.Validationf("apply allocation: need %s is not open for household %s", n.ID, s.HouseholdID)
				}
				busy, err := tx.NeedInDistribution(ctx, n.ID)
				if err != nil {
					return err
				}
				if busy {
					return model.Validationf("apply allocation: need %s is already on an open distribution", n.ID)
				}
			}
			inv, err := tx.GetInventory(ctx, it.InventoryID)
			if err != nil {
				return err
			}
			if inv.Remaining() < it.Quantity {
				return model.Validationf("apply allocation: inventory %s has %d left, %d requested",
					inv.ID, inv.Remaining(), it.Quantity)
			}
			if err := tx.AdjustInventory(ctx, inv.ID, 0, it.Quantity, now); err != nil {
				return err
			}
			items = append(items, model.DistributionItem{
				Category:    inv.Category,
				ItemName:    inv.ItemName,
				Quantity:    it.Quantity,
				InventoryID: inv.ID,
				NeedID:      it.NeedID,
			})
		}

		dist = &model.Distribution{
			ID:            o.ids.NewID(),
			HouseholdID:   s.HouseholdID,
			LocationID:    locationID,
			Status:        model.DistributionPlanned,
			Items:         items,
			DistributedBy: actor.ID,
		}
		if err := o.recorder.Record(ctx, tx, dist, model.ActionCreate); err != nil {
			return err
		}
		return o.audit(ctx, tx, actor, "create", dist, now, "planned %d items", items.Total())
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("distribution planned", "distribution_id", dist.ID, "household_id", dist.HouseholdID, "items", dist.Items.Total())
	return dist, nil
}

// Complete marks a planned or in-progress distribution completed, consumes
// its reserved stock and moves the linked needs to met.
func (o *Optimizer) Complete(ctx context.Context, distributionID string, actor model.Actor) (*model.Distribution, error) {
	var dist *model.Distribution
	err := o.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		dist, err = tx.GetDistribution(ctx, distributionID)
		if err != nil {
			return err
		}
		if dist.Status != model.DistributionPlanned && dist.Status != model.DistributionInProgress {
			return model.Validationf("distribution %s is %s", dist.ID, dist.Status)
		}
		now := clock.Stamp(o.clock)
		for _, it := range dist.Items {
			if it.InventoryID != "" {
				if err := tx.AdjustInventory(ctx, it.InventoryID, -it.Quantity, -it.Quantity, now); err != nil {
					return err
				}
			}
			if it.NeedID != "" {
				if err := o.closeNeed(ctx, tx, it.NeedID); err != nil {
					return err
				}
			}
		}

		dist.Status = model.DistributionCompleted
		dist.DistributedAt = now
		if actor.ID != "" {
			dist.DistributedBy = actor.ID
		}
		if err := o.recorder.Record(ctx, tx, dist, model.ActionUpdate); err != nil {
			return err
		}
		return o.audit(ctx, tx, actor, "complete", dist, now, "distributed %d items", dist.Items.Total())
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("distribution completed", "distribution_id", dist.ID, "household_id", dist.HouseholdID)
	return dist, nil
}

// Cancel releases the reservations of a planned or in-progress
// distribution.
func (o *Optimizer) Cancel(ctx context.Context, distributionID string, actor model.Actor) (*model.Distribution, error) {
	var dist *model.Distribution
	err := o.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		dist, err = tx.GetDistribution(ctx, distributionID)
		if err != nil {
			return err
		}
		if dist.Status != model.DistributionPlanned && dist.Status != model.DistributionInProgress {
			return model.Validationf("distribution %s is %s", dist.ID, dist.Status)
		}
		now := clock.Stamp(o.clock)
		for _, it := range dist.Items {
			if it.InventoryID == "" {
				continue
			}
			if err := tx.AdjustInventory(ctx, it.InventoryID, 0, -it.Quantity, now); err != nil {
				return err
			}
		}
		dist.Status = model.DistributionCancelled
		if err := o.recorder.Record(ctx, tx, dist, model.ActionUpdate); err != nil {
			return err
		}
		return o.audit(ctx, tx, actor, "cancel", dist, now, "")
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}

// closeNeed moves an open or partially met need to met. Needs that are
// already closed are left alone.
func (o *Optimizer) closeNeed(ctx context.Context, tx *store.Tx, id string) error {
	n, err := tx.GetNeed(ctx, id)
	if err != nil {
		return err
	}
	if n.Status == model.NeedMet || !n.Status.CanTransition(model.NeedMet) {
		return nil
	}
	n.Status = model.NeedMet
	return o.recorder.Record(ctx, tx, n, model.ActionUpdate)
}

func (o *Optimizer) audit(ctx context.Context, tx *store.Tx, actor model.Actor, action string, rec model.Record, now model.Time, details string, args ...any) error {
	entry := model.NewAuditLog(o.ids.NewID(), actor, action, rec, now, details, args...)
	return o.recorder.Record(ctx, tx, entry, model.ActionCreate)
}
