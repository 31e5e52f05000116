package testutil

import "github.com/roach88/ataa/internal/model"

func Zone(id string) *model.Zone {
	return &model.Zone{ID: id, Name: "Zone " + id, CreatedAt: T0}
}

func PickupPoint(id, zoneID string) *model.PickupPoint {
	return &model.PickupPoint{ID: id, ZoneID: zoneID, Name: "Pickup " + id, CreatedAt: T0}
}

// Household returns a displaced family of four with no flags.
func Household(id, zoneID string) *model.Household {
	return &model.Household{
		ID:                 id,
		Token:              "HH-" + id,
		ZoneID:             zoneID,
		HeadName:           "Head " + id,
		FamilySize:         4,
		DisplacementStatus: model.Displaced,
		VulnerabilityFlags: model.Flags{},
		CreatedBy:          "worker-1",
		CreatedAt:          T0,
		Updated:            T0,
	}
}

func Member(id, householdID string, band model.AgeBand) *model.HouseholdMember {
	return &model.HouseholdMember{
		ID:                id,
		HouseholdID:       householdID,
		AgeBand:           band,
		SpecialNeedsFlags: model.Flags{},
		CreatedAt:         T0,
		Updated:           T0,
	}
}

// Need returns an open need of quantity 1.
func Need(id, householdID string, c model.Category, u model.Urgency) *model.Need {
	return &model.Need{
		ID:          id,
		HouseholdID: householdID,
		Category:    c,
		Quantity:    1,
		Urgency:     u,
		Status:      model.NeedOpen,
		CreatedBy:   "worker-1",
		CreatedAt:   T0,
		Updated:     T0,
	}
}

func Offer(id, zoneID string, c model.Category, created model.Time) *model.Offer {
	return &model.Offer{
		ID:        id,
		ZoneID:    zoneID,
		CreatedBy: "donor-1",
		Category:  c,
		Quantity:  1,
		Status:    model.ExchangeOpen,
		CreatedAt: created,
		Updated:   created,
	}
}

func Request(id, zoneID string, c model.Category, created model.Time) *model.Request {
	return &model.Request{
		ID:        id,
		ZoneID:    zoneID,
		Category:  c,
		Quantity:  1,
		Status:    model.ExchangeOpen,
		CreatedAt: created,
		Updated:   created,
	}
}

func Inventory(id, locationID string, c model.Category, available int) *model.InventoryItem {
	return &model.InventoryItem{
		ID:           id,
		LocationID:   locationID,
		LocationType: "warehouse",
		Category:     c,
		ItemName:     string(c) + " kit",
		QtyAvailable: available,
		CreatedAt:    T0,
		Updated:      T0,
	}
}

// Distribution returns a completed distribution at distributedAt.
func Distribution(id, householdID string, distributedAt model.Time) *model.Distribution {
	return &model.Distribution{
		ID:            id,
		HouseholdID:   householdID,
		LocationID:    "wh-1",
		Status:        model.DistributionCompleted,
		Items:         model.DistributionItems{{Category: model.CategoryFood, ItemName: "food kit", Quantity: 1}},
		DistributedBy: "worker-1",
		DistributedAt: distributedAt,
		CreatedAt:     distributedAt,
		Updated:       distributedAt,
	}
}
