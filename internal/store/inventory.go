package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ataa/internal/model"
)

func (t *Tx) GetInventory(ctx context.Context, id string) (*model.InventoryItem, error) {
	var i model.InventoryItem
	if err := t.getInto(ctx, model.EntityInventory, id, &i); err != nil {
		return nil, err
	}
	return &i, nil
}

// AvailableInventory lists rows with stock left after reservations,
// ordered by category then item name. An empty locationID means every
// location.
func (t *Tx) AvailableInventory(ctx context.Context, locationID string) ([]model.InventoryItem, error) {
	f := Filter{}
	if locationID != "" {
		f = Where(Eq("location_id", locationID))
	}
	items, err := selectAll[model.InventoryItem](ctx, t, model.EntityInventory, f)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.Remaining() > 0 {
			out = append(out, it)
		}
	}
	return out, nil
}

// AdjustInventory adds deltas to qty_available and qty_reserved. The
// schema CHECK rejects any result with reserved above available; that
// failure is reported as a Validation error.
func (t *Tx) AdjustInventory(ctx context.Context, id string, availableDelta, reservedDelta int, now model.Time) error {
	item, err := t.GetInventory(ctx, id)
	if err != nil {
		return err
	}
	item.QtyAvailable += availableDelta
	item.QtyReserved += reservedDelta
	item.Updated = now
	if err := item.Validate(); err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE inventory SET qty_available = ?, qty_reserved = ?, updated_at = ? WHERE id = ?`,
		item.QtyAvailable, item.QtyReserved, now, id)
	if err != nil {
		return fmt.Errorf("adjust inventory %s: %w", id, err)
	}
	return nil
}

// NeedCandidate is an open need joined with its household, as consumed by
// the allocation optimizer.
type NeedCandidate struct {
	NeedID         string         `db:"need_id"`
	HouseholdID    string         `db:"household_id"`
	Category       model.Category `db:"category"`
	Quantity       int            `db:"quantity"`
	Urgency        model.Urgency  `db:"urgency"`
	CreatedAt      model.Time     `db:"created_at"`
	HouseholdToken string         `db:"household_token"`
	HeadName       string         `db:"head_name"`
	PriorityScore  int            `db:"priority_score"`
	ZoneID         string         `db:"zone_id"`
	ZoneName       string         `db:"zone_name"`
}

// openDistributionNeeds selects planned and in-progress distributions
// whose items carry a need. Callers append the need id expression.
const openDistributionNeeds = `
	SELECT 1 FROM distributions d, json_each(d.items) j
	WHERE d.status IN ('planned', 'in_progress')
		AND json_extract(j.value, '$.need_id') = `

// AllocationCandidates returns open needs ordered by urgency rank, then
// household priority descending, then need age. Needs already carried by
// a planned or in-progress distribution are left out.
func (t *Tx) AllocationCandidates(ctx context.Context, zoneID string) ([]NeedCandidate, error) {
	query := `
		SELECT n.id AS need_id, n.household_id, n.category, n.quantity, n.urgency, n.created_at,
			h.token AS household_token, h.head_of_household_name AS head_name,
			h.priority_score, h.zone_id, COALESCE(z.name, '') AS zone_name
		FROM needs n
		JOIN households h ON n.household_id = h.id
		LEFT JOIN zones z ON h.zone_id = z.id
		WHERE n.status = ? AND (? = '' OR h.zone_id = ?)
			AND NOT EXISTS (` + openDistributionNeeds + `n.id)
		ORDER BY
			CASE n.urgency WHEN 'critical' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 ELSE 4 END,
			h.priority_score DESC,
			n.created_at ASC,
			n.id COLLATE BINARY ASC`
	var out []NeedCandidate
	if err := t.tx.SelectContext(ctx, &out, query, model.NeedOpen, zoneID, zoneID); err != nil {
		return nil, fmt.Errorf("allocation candidates: %w", err)
	}
	return out, nil
}

// NeedInDistribution reports whether a planned or in-progress
// distribution already carries the need.
func (t *Tx) NeedInDistribution(ctx context.Context, needID string) (bool, error) {
	var found bool
	query := `SELECT EXISTS (` + openDistributionNeeds + `?)`
	if err := t.tx.GetContext(ctx, &found, query, needID); err != nil {
		return false, fmt.Errorf("need %s distributions: %w", needID, err)
	}
	return found, nil
}

func (t *Tx) GetDistribution(ctx context.Context, id string) (*model.Distribution, error) {
	var d model.Distribution
	if err := t.getInto(ctx, model.EntityDistribution, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func requireRow(res sql.Result, entity model.EntityType, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
	if n == 0 {
		return model.NotFound(entity, id)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
