// Package queue is the offline queue of a field device or hub: a durable
// buffer of local mutations waiting to be pushed upstream.
//
// Items are written in the same store transaction as the domain write they
// describe, so the queue and the domain tables never diverge. Drain does not
// consume; items are removed only after the upstream tier acknowledged them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/store"
)

// Queue stamps and writes queue items. It holds no state of its own; every
// method works inside the caller's transaction.
type Queue struct {
	clock  clock.Clock
	logger *slog.Logger
}

func New(c clock.Clock, logger *slog.Logger) *Queue {
	return &Queue{clock: c, logger: logger}
}

// Key builds the queue key entity_type:entity_id:timestamp.
func Key(entity model.EntityType, id string, ts model.Time) string {
	return fmt.Sprintf("%s:%s:%s", entity, id, ts)
}

// Enqueue appends one mutation.
func (q *Queue) Enqueue(ctx context.Context, tx *store.Tx, entity model.EntityType, id string, action model.SyncAction, payload []byte) (model.SyncQueueItem, error) {
	if !entity.Valid() || id == "" {
		return model.SyncQueueItem{}, model.Validationf("enqueue: entity type and id are required")
	}
	if !action.Valid() {
		return model.SyncQueueItem{}, model.Validationf("enqueue: unknown action %q", action)
	}
	now := clock.Stamp(q.clock)
	item := model.SyncQueueItem{
		ID:         Key(entity, id, now),
		EntityType: entity,
		EntityID:   id,
		Action:     action,
		Payload:    payload,
		EnqueuedAt: now,
	}
	if err := tx.EnqueueItem(ctx, item); err != nil {
		return model.SyncQueueItem{}, err
	}
	q.logger.Debug("enqueued", "entity_type", entity, "entity_id", id, "action", action)
	return item, nil
}

// Drain returns every queued item in enqueue order without removing any.
func (q *Queue) Drain(ctx context.Context, tx *store.Tx) ([]model.SyncQueueItem, error) {
	return tx.QueueItems(ctx)
}

// Remove deletes acknowledged items.
func (q *Queue) Remove(ctx context.Context, tx *store.Tx, ids []string) error {
	return tx.DeleteQueueItems(ctx, ids)
}

func (q *Queue) Count(ctx context.Context, tx *store.Tx) (int, error) {
	return tx.QueueCount(ctx)
}

// Record writes rec to the domain store and enqueues it, both inside tx.
// Syncable records are touched and marked pending first.
func (q *Queue) Record(ctx context.Context, tx *store.Tx, rec model.Record, action model.SyncAction) error {
	if s, ok := rec.(model.Syncable); ok {
		s.Touch(clock.Stamp(q.clock))
		s.SetSyncStatus(model.SyncPending)
	}
	if err := tx.Upsert(ctx, rec); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", rec.Entity(), rec.RecordID(), err)
	}
	_, err = q.Enqueue(ctx, tx, rec.Entity(), rec.RecordID(), action, payload)
	return err
}

// Payload decodes the queued items into one push batch. Items whose entity
// type is not carried by push payloads are skipped and reported.
func Payload(hubID string, ts model.Time, items []model.SyncQueueItem) (*model.PushPayload, []string, error) {
	p := model.NewPushPayload(hubID, ts)
	var skipped []string
	for _, it := range items {
		rec, err := model.DecodeRecord(it.EntityType, it.Payload)
		if err != nil {
			return nil, nil, fmt.Errorf("queue item %s: %w", it.ID, err)
		}
		if err := p.Add(rec); err != nil {
			skipped = append(skipped, it.ID)
		}
	}
	return p, skipped, nil
}

// Recorder writes a domain record inside a transaction. *Queue also
// enqueues it for upstream; Direct only writes.
type Recorder interface {
	Record(ctx context.Context, tx *store.Tx, rec model.Record, action model.SyncAction) error
}

// Direct is the Recorder of a tier with no upstream.
type Direct struct {
	Clock clock.Clock
}

func (d Direct) Record(ctx context.Context, tx *store.Tx, rec model.Record, _ model.SyncAction) error {
	if s, ok := rec.(model.Syncable); ok {
		s.Touch(clock.Stamp(d.Clock))
		s.SetSyncStatus(model.SyncPending)
	}
	return tx.Upsert(ctx, rec)
}
