// Package orchestrator applies pushed sync batches and serves pull
// requests on hub and core tiers.
//
// A push is applied in one store transaction with a savepoint per record:
// a record that fails (foreign key, validation, conflict policy) is rolled
// back on its own and reported, and the rest of the batch commits.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/matching"
	"github.com/roach88/ataa/internal/metrics"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/queue"
	"github.com/roach88/ataa/internal/store"
)

// Options toggle tier-specific behavior.
type Options struct {
	// Relay enqueues every accepted record into this tier's offline queue
	// so it is forwarded upstream. Hubs set it; the core does not.
	Relay bool
	// PullExchange adds offers, requests and distributions to pull
	// responses.
	PullExchange bool
}

// Orchestrator serves push and pull for one tier.
type Orchestrator struct {
	store   *store.Store
	policy  ConflictPolicy
	queue   *queue.Queue
	matcher *matching.Engine
	ids     model.IDGenerator
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	opts    Options
}

// New builds an orchestrator. q is required when opts.Relay is set;
// matcher may be nil to disable matching after pushes.
func New(st *store.Store, policy ConflictPolicy, q *queue.Queue, matcher *matching.Engine, ids model.IDGenerator, c clock.Clock, logger *slog.Logger, m *metrics.Metrics, opts Options) *Orchestrator {
	if policy == nil {
		policy = LastWriteWins{}
	}
	return &Orchestrator{
		store:   st,
		policy:  policy,
		queue:   q,
		matcher: matcher,
		ids:     ids,
		clock:   c,
		logger:  logger,
		metrics: m,
		opts:    opts,
	}
}

// Push applies a batch. Per-record failures are collected as conflicts and
// never roll back the rest of the batch. The returned error is non-nil only
// for malformed payloads and store failures.
func (o *Orchestrator) Push(ctx context.Context, p *model.PushPayload) (*model.PushResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Normalize()
	digest, err := p.Digest()
	if err != nil {
		return nil, fmt.Errorf("digest push from %s: %w", p.HubID, err)
	}

	now := clock.Stamp(o.clock)
	resp := &model.PushResponse{Conflicts: []model.Conflict{}, ServerTimestamp: now}
	var conflictTypes []string

	err = o.store.InTx(ctx, func(tx *store.Tx) error {
		var keys []matching.Key
		for _, rec := range p.Records() {
			err := tx.Savepoint(ctx, func() error { return o.apply(ctx, tx, rec, now) })
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				resp.Conflicts = append(resp.Conflicts, model.Conflict{
					EntityType: rec.Entity(),
					EntityID:   rec.RecordID(),
					Reason:     err.Error(),
				})
				conflictTypes = append(conflictTypes, string(rec.Entity()))
				o.logger.Warn("push record rejected",
					"hub_id", p.HubID, "entity_type", rec.Entity(), "entity_id", rec.RecordID(), "error", err)
				continue
			}
			resp.RecordsAccepted++
			if k, ok := matchKey(rec); ok {
				keys = append(keys, k)
			}
		}

		if o.matcher != nil && len(keys) > 0 {
			err := tx.Savepoint(ctx, func() error {
				_, err := o.matcher.RunAll(ctx, tx, keys)
				return err
			})
			if err != nil {
				o.logger.Warn("matching after push failed", "hub_id", p.HubID, "error", err)
			}
		}

		resp.Status = model.OutcomeOK
		if len(resp.Conflicts) > 0 {
			resp.Status = model.OutcomePartial
		}
		return tx.AppendSyncLog(ctx, model.SyncLogEntry{
			ID:             o.ids.NewID(),
			HubID:          p.HubID,
			Direction:      model.DirectionPush,
			Outcome:        resp.Status,
			RecordsCount:   resp.RecordsAccepted,
			ConflictsCount: len(resp.Conflicts),
			PayloadDigest:  digest,
			Timestamp:      now,
		})
	})
	if err != nil {
		o.logFailure(ctx, p.HubID, model.DirectionPush, digest, err)
		o.metrics.ObserveSync(string(model.DirectionPush), string(model.OutcomeError), 0, nil)
		return nil, fmt.Errorf("apply push from %s: %w", p.HubID, err)
	}

	o.metrics.ObserveSync(string(model.DirectionPush), string(resp.Status), resp.RecordsAccepted, conflictTypes)
	o.logger.Info("push applied",
		"hub_id", p.HubID,
		"status", resp.Status,
		"records_accepted", resp.RecordsAccepted,
		"conflicts", len(resp.Conflicts))
	return resp, nil
}

// apply writes one incoming record under the conflict policy.
func (o *Orchestrator) apply(ctx context.Context, tx *store.Tx, rec model.Record, now model.Time) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	var stored model.Record
	if needsStored(o.policy) {
		var err error
		stored, err = tx.Get(ctx, rec.Entity(), rec.RecordID())
		if err != nil && !model.IsNotFound(err) {
			return err
		}
	}
	if err := o.policy.Resolve(stored, rec); err != nil {
		return err
	}

	if s, ok := rec.(model.Syncable); ok {
		if s.UpdatedAt().IsZero() {
			s.Touch(now)
		}
		if o.opts.Relay {
			s.SetSyncStatus(model.SyncPending)
		} else {
			s.SetSyncStatus(model.SyncSynced)
		}
	}
	if err := tx.Upsert(ctx, rec); err != nil {
		return model.ConflictError(rec.Entity(), rec.RecordID(), err)
	}
	if !o.opts.Relay {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", rec.Entity(), rec.RecordID(), err)
	}
	_, err = o.queue.Enqueue(ctx, tx, rec.Entity(), rec.RecordID(), model.ActionUpdate, payload)
	return err
}

// matchKey returns the matching pool of an open offer or request.
func matchKey(rec model.Record) (matching.Key, bool) {
	switch r := rec.(type) {
	case *model.Offer:
		if r.Status == model.ExchangeOpen {
			return matching.Key{ZoneID: r.ZoneID, Category: r.Category}, true
		}
	case *model.Request:
		if r.Status == model.ExchangeOpen {
			return matching.Key{ZoneID: r.ZoneID, Category: r.Category}, true
		}
	}
	return matching.Key{}, false
}

// Pull returns the zone's records updated strictly after the cursor,
// stamped with the server time as the next cursor.
func (o *Orchestrator) Pull(ctx context.Context, req *model.PullRequest) (*model.PullResponse, error) {
	if req == nil {
		return nil, model.Validationf("pull request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := clock.Stamp(o.clock)
	updates := model.NewPushPayload(req.HubID, now)
	err := o.store.InTx(ctx, func(tx *store.Tx) error {
		changes, err := tx.ChangedSince(ctx, req.ZoneID, req.SinceTimestamp, o.opts.PullExchange)
		if err != nil {
			return err
		}
		updates.Households = changes.Households
		updates.Members = changes.Members
		updates.Needs = changes.Needs
		updates.Offers = changes.Offers
		updates.Requests = changes.Requests
		updates.Distributions = changes.Distributions
		updates.Normalize()

		return tx.AppendSyncLog(ctx, model.SyncLogEntry{
			ID:           o.ids.NewID(),
			HubID:        req.HubID,
			Direction:    model.DirectionPull,
			Outcome:      model.OutcomeOK,
			RecordsCount: updates.Len(),
			Timestamp:    now,
		})
	})
	if err != nil {
		o.metrics.ObserveSync(string(model.DirectionPull), string(model.OutcomeError), 0, nil)
		return nil, fmt.Errorf("serve pull for %s: %w", req.HubID, err)
	}

	o.metrics.ObserveSync(string(model.DirectionPull), string(model.OutcomeOK), updates.Len(), nil)
	o.logger.Info("pull served",
		"hub_id", req.HubID,
		"zone_id", req.ZoneID,
		"since", req.SinceTimestamp,
		"records", updates.Len())
	return &model.PullResponse{
		Status:          model.OutcomeOK,
		Conflicts:       []model.Conflict{},
		ServerTimestamp: now,
		Updates:         updates,
	}, nil
}

// logFailure records a failed sync in its own transaction. Errors writing
// the entry are only logged.
func (o *Orchestrator) logFailure(ctx context.Context, hubID string, dir model.Direction, digest string, cause error) {
	entry := model.SyncLogEntry{
		ID:            o.ids.NewID(),
		HubID:         hubID,
		Direction:     dir,
		Outcome:       model.OutcomeError,
		Error:         cause.Error(),
		PayloadDigest: digest,
		Timestamp:     clock.Stamp(o.clock),
	}
	bg := context.WithoutCancel(ctx)
	err := o.store.InTx(bg, func(tx *store.Tx) error {
		return tx.AppendSyncLog(bg, entry)
	})
	if err != nil {
		o.logger.Error("failed to record sync failure", "hub_id", hubID, "error", err)
	}
	o.logger.Error("sync failed", "hub_id", hubID, "direction", dir, "error", cause)
}
