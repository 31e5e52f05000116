package store

import (
	"context"
	"fmt"

	"github.com/roach88/ataa/internal/model"
)

func (t *Tx) GetOffer(ctx context.Context, id string) (*model.Offer, error) {
	var o model.Offer
	if err := t.getInto(ctx, model.EntityOffer, id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *Tx) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	var r model.Request
	if err := t.getInto(ctx, model.EntityRequest, id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *Tx) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	var m model.Match
	if err := t.getInto(ctx, model.EntityMatch, id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// OpenOffers lists open offers of one zone and category, oldest first.
func (t *Tx) OpenOffers(ctx context.Context, zoneID string, category model.Category) ([]model.Offer, error) {
	return selectAll[model.Offer](ctx, t, model.EntityOffer,
		Where(Eq("zone_id", zoneID), Eq("category", category), Eq("status", model.ExchangeOpen)))
}

// OpenRequests lists open requests of one zone and category, oldest first.
func (t *Tx) OpenRequests(ctx context.Context, zoneID string, category model.Category) ([]model.Request, error) {
	return selectAll[model.Request](ctx, t, model.EntityRequest,
		Where(Eq("zone_id", zoneID), Eq("category", category), Eq("status", model.ExchangeOpen)))
}

// ActiveMatchFor reports whether the offer or the request already takes
// part in a non-cancelled match.
func (t *Tx) ActiveMatchFor(ctx context.Context, offerID, requestID string) (bool, error) {
	var n int
	err := t.tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM matches WHERE (offer_id = ? OR request_id = ?) AND status != ?`,
		offerID, requestID, model.MatchCancelled)
	if err != nil {
		return false, fmt.Errorf("active match lookup: %w", err)
	}
	return n > 0, nil
}

// FirstPickupPoint returns the oldest pickup point of the zone, or "".
func (t *Tx) FirstPickupPoint(ctx context.Context, zoneID string) (string, error) {
	points, err := selectAll[model.PickupPoint](ctx, t, model.EntityPickupPoint,
		Where(Eq("zone_id", zoneID)).WithLimit(1))
	if err != nil {
		return "", err
	}
	if len(points) == 0 {
		return "", nil
	}
	return points[0].ID, nil
}

func (t *Tx) SetMatchStatus(ctx context.Context, id string, status model.MatchStatus, now model.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE matches SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	if err != nil {
		return fmt.Errorf("set match status %s: %w", id, err)
	}
	return requireRow(res, model.EntityMatch, id)
}

// Matches lists matches, newest first, optionally narrowed by status.
func (t *Tx) Matches(ctx context.Context, status model.MatchStatus) ([]model.Match, error) {
	f := Filter{}
	if status != "" {
		f = Where(Eq("status", status))
	}
	return selectAll[model.Match](ctx, t, model.EntityMatch, f.OrderBy(OrderKey{Column: "created_at", Desc: true}))
}
