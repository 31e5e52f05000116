package store

import (
	"context"
	"fmt"

	"github.com/roach88/ataa/internal/model"
)

// Changes holds zone-scoped rows updated after a cursor.
type Changes struct {
	Households    []model.Household
	Members       []model.HouseholdMember
	Needs         []model.Need
	Offers        []model.Offer
	Requests      []model.Request
	Distributions []model.Distribution
}

// ChangedSince returns rows of the zone whose updated_at is strictly after
// since. Members, needs and distributions are scoped through their
// household. When exchange is false, offers, requests and distributions
// are left out.
func (t *Tx) ChangedSince(ctx context.Context, zoneID string, since model.Time, exchange bool) (*Changes, error) {
	c := &Changes{}
	cursor := since.String()

	var err error
	c.Households, err = selectAll[model.Household](ctx, t, model.EntityHousehold,
		Where(Eq("zone_id", zoneID), Gt("updated_at", cursor)))
	if err != nil {
		return nil, err
	}
	if err := t.viaHousehold(ctx, &c.Members, tables[model.EntityMember], zoneID, cursor); err != nil {
		return nil, err
	}
	if err := t.viaHousehold(ctx, &c.Needs, tables[model.EntityNeed], zoneID, cursor); err != nil {
		return nil, err
	}
	if !exchange {
		return c, nil
	}
	c.Offers, err = selectAll[model.Offer](ctx, t, model.EntityOffer,
		Where(Eq("zone_id", zoneID), Gt("updated_at", cursor)))
	if err != nil {
		return nil, err
	}
	c.Requests, err = selectAll[model.Request](ctx, t, model.EntityRequest,
		Where(Eq("zone_id", zoneID), Gt("updated_at", cursor)))
	if err != nil {
		return nil, err
	}
	if err := t.viaHousehold(ctx, &c.Distributions, tables[model.EntityDistribution], zoneID, cursor); err != nil {
		return nil, err
	}
	return c, nil
}

// viaHousehold selects rows of tbl whose household is in the zone.
func (t *Tx) viaHousehold(ctx context.Context, dest any, tbl *table, zoneID, cursor string) error {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE household_id IN (SELECT id FROM households WHERE zone_id = ?)
		AND updated_at > ?
		ORDER BY %s, id COLLATE BINARY ASC`, tbl.selectList, tbl.name, tbl.orderBy)
	if err := t.tx.SelectContext(ctx, dest, query, zoneID, cursor); err != nil {
		return fmt.Errorf("changes in %s: %w", tbl.name, err)
	}
	return nil
}
