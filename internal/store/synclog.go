package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ataa/internal/model"
)

// AppendSyncLog writes one sync attempt to the append-only log.
func (t *Tx) AppendSyncLog(ctx context.Context, e model.SyncLogEntry) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO sync_log
		(id, hub_id, direction, outcome, records_count, conflicts_count, error, payload_digest, timestamp)
		VALUES (:id, :hub_id, :direction, :outcome, :records_count, :conflicts_count, :error, :payload_digest, :timestamp)
	`, e)
	if err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	return nil
}

// SyncLog returns the most recent entries, newest first.
func (t *Tx) SyncLog(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	var out []model.SyncLogEntry
	err := t.tx.SelectContext(ctx, &out, `
		SELECT id, hub_id, direction, outcome, records_count, conflicts_count, error, payload_digest, timestamp
		FROM sync_log
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("read sync log: %w", err)
	}
	return out, nil
}

// EnqueueItem inserts one offline-queue row. A row with the same key is
// replaced.
func (t *Tx) EnqueueItem(ctx context.Context, item model.SyncQueueItem) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO sync_queue (id, entity_type, entity_id, action, payload, enqueued_at)
		VALUES (:id, :entity_type, :entity_id, :action, :payload, :enqueued_at)
		ON CONFLICT(id) DO UPDATE SET action = excluded.action, payload = excluded.payload
	`, item)
	if err != nil {
		return fmt.Errorf("enqueue %s %s: %w", item.EntityType, item.EntityID, err)
	}
	return nil
}

// QueueItems returns every queued item in enqueue order.
func (t *Tx) QueueItems(ctx context.Context) ([]model.SyncQueueItem, error) {
	var out []model.SyncQueueItem
	err := t.tx.SelectContext(ctx, &out, `
		SELECT id, entity_type, entity_id, action, payload, enqueued_at
		FROM sync_queue
		ORDER BY enqueued_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read sync queue: %w", err)
	}
	return out, nil
}

// DeleteQueueItems removes the given queue rows.
func (t *Tx) DeleteQueueItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM sync_queue WHERE id IN (%s)", placeholders(len(ids)))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete queue items: %w", err)
	}
	return nil
}

func (t *Tx) QueueCount(ctx context.Context) (int, error) {
	var n int
	if err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM sync_queue`); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return n, nil
}

// State keys stored in sync_state.
const (
	StatePullCursor = "pull_cursor"
)

// GetState returns a stored value, or "" when unset.
func (t *Tx) GetState(ctx context.Context, key string) (string, error) {
	var v string
	err := t.tx.GetContext(ctx, &v, `SELECT value FROM sync_state WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return v, nil
}

func (t *Tx) SetState(ctx context.Context, key, value string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}
