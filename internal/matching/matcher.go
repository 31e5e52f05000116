// Package matching pairs open offers with open requests of the same zone
// and category, and drives the match state machine.
package matching

import (
	"context"

	"github.com/roach88/ataa/internal/model"
)

// Pair is one proposed match.
type Pair struct {
	Offer   model.Offer
	Request model.Request
}

// BusyFunc reports whether the offer or the request already takes part in
// a non-cancelled match.
type BusyFunc func(ctx context.Context, offerID, requestID string) (bool, error)

// Matcher chooses pairs among open offers and requests. Both slices are
// ordered oldest first. A Matcher must never return an offer or a request
// twice, and must skip pairs for which busy returns true.
type Matcher interface {
	Pairs(ctx context.Context, offers []model.Offer, requests []model.Request, busy BusyFunc) ([]Pair, error)
}

// FirstFitMatcher walks offers in creation order and pairs each with the
// oldest request that is still free. It ignores quantities.
type FirstFitMatcher struct{}

func (FirstFitMatcher) Pairs(ctx context.Context, offers []model.Offer, requests []model.Request, busy BusyFunc) ([]Pair, error) {
	var pairs []Pair
	usedOffers := make(map[string]bool)
	usedRequests := make(map[string]bool)

	for _, o := range offers {
		if usedOffers[o.ID] {
			continue
		}
		for _, r := range requests {
			if usedRequests[r.ID] {
				continue
			}
			taken, err := busy(ctx, o.ID, r.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				continue
			}
			pairs = append(pairs, Pair{Offer: o, Request: r})
			usedOffers[o.ID] = true
			usedRequests[r.ID] = true
			break
		}
	}
	return pairs, nil
}
