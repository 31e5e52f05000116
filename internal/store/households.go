package store

import (
	"context"
	"fmt"

	"github.com/roach88/ataa/internal/model"
)

func (t *Tx) GetHousehold(ctx context.Context, id string) (*model.Household, error) {
	var h model.Household
	if err := t.getInto(ctx, model.EntityHousehold, id, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// HouseholdIDs lists every household ID in stable order.
func (t *Tx) HouseholdIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := t.tx.SelectContext(ctx, &ids, `SELECT id FROM households ORDER BY id COLLATE BINARY ASC`); err != nil {
		return nil, fmt.Errorf("list household ids: %w", err)
	}
	return ids, nil
}

// SetPriority persists a recomputed score and bumps updated_at so the
// change is picked up by the next pull.
func (t *Tx) SetPriority(ctx context.Context, id string, score int, now model.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE households SET priority_score = ?, updated_at = ? WHERE id = ?`, score, now, id)
	if err != nil {
		return fmt.Errorf("set priority %s: %w", id, err)
	}
	return requireRow(res, model.EntityHousehold, id)
}

func (t *Tx) Members(ctx context.Context, householdID string) ([]model.HouseholdMember, error) {
	return selectAll[model.HouseholdMember](ctx, t, model.EntityMember, Where(Eq("household_id", householdID)))
}

// OpenNeeds returns the household's needs in status open.
func (t *Tx) OpenNeeds(ctx context.Context, householdID string) ([]model.Need, error) {
	return selectAll[model.Need](ctx, t, model.EntityNeed,
		Where(Eq("household_id", householdID), Eq("status", model.NeedOpen)))
}

func (t *Tx) GetNeed(ctx context.Context, id string) (*model.Need, error) {
	var n model.Need
	if err := t.getInto(ctx, model.EntityNeed, id, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// LastDistributedAt returns the latest distributed_at of the household's
// completed distributions, or the zero Time if there is none.
func (t *Tx) LastDistributedAt(ctx context.Context, householdID string) (model.Time, error) {
	var last model.Time
	err := t.tx.GetContext(ctx, &last,
		`SELECT MAX(distributed_at) FROM distributions WHERE household_id = ? AND status = ?`,
		householdID, model.DistributionCompleted)
	if err != nil {
		return model.Time{}, fmt.Errorf("last distribution %s: %w", householdID, err)
	}
	return last, nil
}

// EnsureZone inserts a placeholder zone row when id is unknown. A mirror
// pulling a zone it has never seen needs the row before households can
// reference it.
func (t *Tx) EnsureZone(ctx context.Context, id string, now model.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO zones (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, id, now)
	if err != nil {
		return fmt.Errorf("ensure zone %s: %w", id, err)
	}
	return nil
}

// MarkSynced stamps sync_status on the given rows of a syncable entity.
func (t *Tx) MarkSynced(ctx context.Context, entity model.EntityType, status model.SyncStatus, ids []string) error {
	tbl, err := lookup(entity)
	if err != nil {
		return err
	}
	if !tbl.hasColumn("sync_status") || len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, status)
	for _, id := range ids {
		args = append(args, id)
	}
	marks := placeholders(len(ids))
	query := fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE id IN (%s)", tbl.name, marks)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark %s %s: %w", entity, status, err)
	}
	return nil
}

// PendingCounts returns the number of rows with sync_status pending per
// syncable entity.
func (t *Tx) PendingCounts(ctx context.Context) (map[model.EntityType]int, error) {
	out := make(map[model.EntityType]int)
	for _, entity := range model.SyncableEntities {
		tbl := tables[entity]
		if !tbl.hasColumn("sync_status") {
			continue
		}
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE sync_status = ?", tbl.name)
		if err := t.tx.GetContext(ctx, &n, query, model.SyncPending); err != nil {
			return nil, fmt.Errorf("pending %s: %w", entity, err)
		}
		out[entity] = n
	}
	return out, nil
}
