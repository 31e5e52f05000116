// Package allocate plans and applies distributions of inventory to open
// needs.
//
// Optimize is a dry run: it walks open needs by urgency and household
// priority and assigns stock greedily without touching the store. Apply
// turns one suggestion into a planned distribution and reserves its stock;
// Complete consumes the stock and closes the linked needs.
package allocate

import (
	"math"
	"sort"

	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/store"
)

// Options narrow an allocation run. Zero values mean no filter and the
// configured household cap.
type Options struct {
	ZoneID        string `json:"zone_id,omitempty"`
	LocationID    string `json:"location_id,omitempty"`
	MaxHouseholds int    `json:"max_households,omitempty"`
}

// Item is one inventory line suggested for one need.
type Item struct {
	InventoryID string         `json:"inventory_id"`
	ItemName    string         `json:"item_name"`
	Category    model.Category `json:"category"`
	Quantity    int            `json:"quantity_to_distribute"`
	NeedID      string         `json:"need_id"`
	NeedUrgency model.Urgency  `json:"need_urgency"`
}

// Suggestion bundles the items planned for one household.
type Suggestion struct {
	HouseholdID    string `json:"household_id"`
	HouseholdToken string `json:"household_token"`
	HeadName       string `json:"head_name"`
	ZoneName       string `json:"zone_name"`
	PriorityScore  int    `json:"priority_score"`
	Items          []Item `json:"items"`
	TotalItems     int    `json:"total_items"`
}

// Plan is the result of one allocation run.
type Plan struct {
	Suggestions    []Suggestion `json:"suggestions"`
	Households     int          `json:"total_households"`
	ItemsAllocated int          `json:"total_items_allocated"`
	UnmetNeeds     int          `json:"unmet_needs"`
	Utilization    int          `json:"inventory_utilization"`
}

// stock is an inventory row with its in-memory remaining counter.
type stock struct {
	item      model.InventoryItem
	remaining int
}

// Greedy assigns inventory to needs in the given order. needs must already
// be ordered by urgency rank, household priority and age. Once
// maxHouseholds distinct households have received items the walk stops.
func Greedy(needs []store.NeedCandidate, inventory []model.InventoryItem, maxHouseholds int) *Plan {
	byCategory := make(map[model.Category][]*stock)
	totalRemaining := 0
	for _, it := range inventory {
		r := it.Remaining()
		if r <= 0 {
			continue
		}
		totalRemaining += r
		byCategory[it.Category] = append(byCategory[it.Category], &stock{item: it, remaining: r})
	}

	plan := &Plan{Suggestions: []Suggestion{}}
	index := make(map[string]int)

	for _, n := range needs {
		if len(index) >= maxHouseholds {
			break
		}

		var pick *stock
		for _, s := range byCategory[n.Category] {
			if s.remaining > 0 {
				pick = s
				break
			}
		}
		if pick == nil {
			plan.UnmetNeeds++
			continue
		}
		qty := min(n.Quantity, pick.remaining)
		if qty <= 0 {
			plan.UnmetNeeds++
			continue
		}
		pick.remaining -= qty

		i, ok := index[n.HouseholdID]
		if !ok {
			head := n.HeadName
			if head == "" {
				head = n.HouseholdToken
			}
			i = len(plan.Suggestions)
			index[n.HouseholdID] = i
			plan.Suggestions = append(plan.Suggestions, Suggestion{
				HouseholdID:    n.HouseholdID,
				HouseholdToken: n.HouseholdToken,
				HeadName:       head,
				ZoneName:       n.ZoneName,
				PriorityScore:  n.PriorityScore,
				Items:          []Item{},
			})
		}
		s := &plan.Suggestions[i]
		s.Items = append(s.Items, Item{
			InventoryID: pick.item.ID,
			ItemName:    pick.item.ItemName,
			Category:    n.Category,
			Quantity:    qty,
			NeedID:      n.NeedID,
			NeedUrgency: n.Urgency,
		})
		s.TotalItems += qty
		plan.ItemsAllocated += qty
	}

	sort.SliceStable(plan.Suggestions, func(i, j int) bool {
		return plan.Suggestions[i].PriorityScore > plan.Suggestions[j].PriorityScore
	})
	plan.Households = len(plan.Suggestions)
	if totalRemaining > 0 {
		plan.Utilization = int(math.Round(float64(plan.ItemsAllocated) / float64(totalRemaining) * 100))
	}
	return plan
}
