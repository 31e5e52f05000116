package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/metrics"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/queue"
	"github.com/roach88/ataa/internal/store"
)

// Key selects one matching pool.
type Key struct {
	ZoneID   string
	Category model.Category
}

// Engine creates matches and applies match transitions.
type Engine struct {
	store    *store.Store
	matcher  Matcher
	recorder queue.Recorder
	ids      model.IDGenerator
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New builds an engine. A nil matcher means FirstFitMatcher.
func New(st *store.Store, m Matcher, rec queue.Recorder, ids model.IDGenerator, c clock.Clock, logger *slog.Logger, mt *metrics.Metrics) *Engine {
	if m == nil {
		m = FirstFitMatcher{}
	}
	return &Engine{store: st, matcher: m, recorder: rec, ids: ids, clock: c, logger: logger, metrics: mt}
}

// Run matches the open offers and requests of one zone and category inside
// tx. It must share the transaction of the insert that triggered it.
func (e *Engine) Run(ctx context.Context, tx *store.Tx, key Key) ([]model.Match, error) {
	offers, err := tx.OpenOffers(ctx, key.ZoneID, key.Category)
	if err != nil {
		return nil, err
	}
	requests, err := tx.OpenRequests(ctx, key.ZoneID, key.Category)
	if err != nil {
		return nil, err
	}
	if len(offers) == 0 || len(requests) == 0 {
		return nil, nil
	}

	pairs, err := e.matcher.Pairs(ctx, offers, requests, tx.ActiveMatchFor)
	if err != nil {
		return nil, fmt.Errorf("match %s/%s: %w", key.ZoneID, key.Category, err)
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	pickup, err := tx.FirstPickupPoint(ctx, key.ZoneID)
	if err != nil {
		return nil, err
	}

	now := clock.Stamp(e.clock)
	matches := make([]model.Match, 0, len(pairs))
	for _, p := range pairs {
		m := model.Match{
			ID:            e.ids.NewID(),
			OfferID:       p.Offer.ID,
			RequestID:     p.Request.ID,
			Status:        model.MatchPending,
			PickupPointID: pickup,
			CreatedAt:     now,
			Updated:       now,
		}
		if err := tx.Upsert(ctx, &m); err != nil {
			return nil, err
		}
		offer, request := p.Offer, p.Request
		offer.Status = model.ExchangeMatched
		request.Status = model.ExchangeMatched
		if err := e.recorder.Record(ctx, tx, &offer, model.ActionUpdate); err != nil {
			return nil, err
		}
		if err := e.recorder.Record(ctx, tx, &request, model.ActionUpdate); err != nil {
			return nil, err
		}
		matches = append(matches, m)
		e.logger.Info("match created",
			"match_id", m.ID, "offer_id", m.OfferID, "request_id", m.RequestID,
			"zone_id", key.ZoneID, "category", key.Category)
	}
	e.metrics.MatchesCreated(len(matches))
	return matches, nil
}

// RunAll runs every distinct key once, in zone then category order.
func (e *Engine) RunAll(ctx context.Context, tx *store.Tx, keys []Key) ([]model.Match, error) {
	seen := make(map[Key]bool)
	uniq := make([]Key, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Slice(uniq, func(i, j int) bool {
		if uniq[i].ZoneID != uniq[j].ZoneID {
			return uniq[i].ZoneID < uniq[j].ZoneID
		}
		return uniq[i].Category < uniq[j].Category
	})

	var all []model.Match
	for _, k := range uniq {
		ms, err := e.Run(ctx, tx, k)
		if err != nil {
			return nil, err
		}
		all = append(all, ms...)
	}
	return all, nil
}

// CreateOffer stores a new open offer and matches its pool in the same
// transaction.
func (e *Engine) CreateOffer(ctx context.Context, o *model.Offer, actor model.Actor) ([]model.Match, error) {
	if o.ID == "" {
		o.ID = e.ids.NewID()
	}
	if o.CreatedBy == "" {
		o.CreatedBy = actor.ID
	}
	o.Status = model.ExchangeOpen
	return e.create(ctx, o, Key{ZoneID: o.ZoneID, Category: o.Category}, actor)
}

// CreateRequest stores a new open request and matches its pool in the
// same transaction.
func (e *Engine) CreateRequest(ctx context.Context, r *model.Request, actor model.Actor) ([]model.Match, error) {
	if r.ID == "" {
		r.ID = e.ids.NewID()
	}
	r.Status = model.ExchangeOpen
	return e.create(ctx, r, Key{ZoneID: r.ZoneID, Category: r.Category}, actor)
}

func (e *Engine) create(ctx context.Context, rec model.Record, key Key, actor model.Actor) ([]model.Match, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	var matches []model.Match
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		if err := e.recorder.Record(ctx, tx, rec, model.ActionCreate); err != nil {
			return err
		}
		audit := model.NewAuditLog(e.ids.NewID(), actor, "create", rec, clock.Stamp(e.clock), "")
		if err := e.recorder.Record(ctx, tx, audit, model.ActionCreate); err != nil {
			return err
		}
		var err error
		matches, err = e.Run(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Transition moves a match to next. Completing a match completes its offer
// and request; cancelling it reopens them.
func (e *Engine) Transition(ctx context.Context, matchID string, next model.MatchStatus, actor model.Actor) (*model.Match, error) {
	if !next.Valid() {
		return nil, model.Validationf("match %s: unknown status %q", matchID, next)
	}
	var m *model.Match
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		m, err = tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if !m.Status.CanTransition(next) {
			return model.Validationf("match %s: cannot move from %s to %s", m.ID, m.Status, next)
		}
		now := clock.Stamp(e.clock)
		if err := tx.SetMatchStatus(ctx, m.ID, next, now); err != nil {
			return err
		}
		m.Status, m.Updated = next, now

		switch next {
		case model.MatchCompleted:
			err = e.settle(ctx, tx, m, model.ExchangeCompleted)
		case model.MatchCancelled:
			err = e.settle(ctx, tx, m, model.ExchangeOpen)
		}
		if err != nil {
			return err
		}
		audit := model.NewAuditLog(e.ids.NewID(), actor, "update_status", m, now, "status: %s", next)
		return e.recorder.Record(ctx, tx, audit, model.ActionCreate)
	})
	if err != nil {
		return nil, err
	}
	e.metrics.MatchTransition(string(next))
	e.logger.Info("match transitioned", "match_id", m.ID, "status", next)
	return m, nil
}

// settle moves the offer and request of m to status. Only sides still
// marked matched are touched.
func (e *Engine) settle(ctx context.Context, tx *store.Tx, m *model.Match, status model.ExchangeStatus) error {
	o, err := tx.GetOffer(ctx, m.OfferID)
	if err != nil {
		return err
	}
	if o.Status == model.ExchangeMatched {
		o.Status = status
		if err := e.recorder.Record(ctx, tx, o, model.ActionUpdate); err != nil {
			return err
		}
	}
	r, err := tx.GetRequest(ctx, m.RequestID)
	if err != nil {
		return err
	}
	if r.Status == model.ExchangeMatched {
		r.Status = status
		if err := e.recorder.Record(ctx, tx, r, model.ActionUpdate); err != nil {
			return err
		}
	}
	return nil
}
