package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeToken trims and NFC-normalizes a household token so that tokens
// typed on different devices compare equal.
func NormalizeToken(token string) string {
	return norm.NFC.String(strings.TrimSpace(token))
}

// Normalize stores the token in its normalized form, so the unique index
// sees one spelling per token.
func (h *Household) Normalize() { h.Token = NormalizeToken(h.Token) }

func requireID(entity EntityType, id string) error {
	if strings.TrimSpace(id) == "" {
		return Validationf("%s: id is required", entity)
	}
	return nil
}

func (h *Household) Validate() error {
	if err := requireID(EntityHousehold, h.ID); err != nil {
		return err
	}
	if NormalizeToken(h.Token) == "" {
		return Validationf("household %s: token is required", h.ID)
	}
	if h.ZoneID == "" {
		return Validationf("household %s: zone_id is required", h.ID)
	}
	if h.FamilySize < 1 {
		return Validationf("household %s: family_size must be >= 1, got %d", h.ID, h.FamilySize)
	}
	if !h.DisplacementStatus.Valid() {
		return Validationf("household %s: unknown displacement_status %q", h.ID, h.DisplacementStatus)
	}
	if h.PriorityScore < 0 || h.PriorityScore > 30 {
		return Validationf("household %s: priority_score %d out of range [0,30]", h.ID, h.PriorityScore)
	}
	return validSyncStatus(EntityHousehold, h.ID, h.SyncStatus)
}

func (m *HouseholdMember) Validate() error {
	if err := requireID(EntityMember, m.ID); err != nil {
		return err
	}
	if m.HouseholdID == "" {
		return Validationf("member %s: household_id is required", m.ID)
	}
	if !m.AgeBand.Valid() {
		return Validationf("member %s: unknown age_band %q", m.ID, m.AgeBand)
	}
	if m.Sex != "" && m.Sex != "male" && m.Sex != "female" {
		return Validationf("member %s: unknown sex %q", m.ID, m.Sex)
	}
	return validSyncStatus(EntityMember, m.ID, m.SyncStatus)
}

func (n *Need) Validate() error {
	if err := requireID(EntityNeed, n.ID); err != nil {
		return err
	}
	if n.HouseholdID == "" {
		return Validationf("need %s: household_id is required", n.ID)
	}
	if !n.Category.Valid() {
		return Validationf("need %s: unknown category %q", n.ID, n.Category)
	}
	if n.Quantity < 1 {
		return Validationf("need %s: quantity must be >= 1", n.ID)
	}
	if !n.Urgency.Valid() {
		return Validationf("need %s: unknown urgency %q", n.ID, n.Urgency)
	}
	if !n.Status.Valid() {
		return Validationf("need %s: unknown status %q", n.ID, n.Status)
	}
	return validSyncStatus(EntityNeed, n.ID, n.SyncStatus)
}

func (o *Offer) Validate() error {
	if err := requireID(EntityOffer, o.ID); err != nil {
		return err
	}
	if o.ZoneID == "" {
		return Validationf("offer %s: zone_id is required", o.ID)
	}
	if !o.Category.Valid() {
		return Validationf("offer %s: unknown category %q", o.ID, o.Category)
	}
	if o.Quantity < 1 {
		return Validationf("offer %s: quantity must be >= 1", o.ID)
	}
	if !o.Status.Valid() {
		return Validationf("offer %s: unknown status %q", o.ID, o.Status)
	}
	return validSyncStatus(EntityOffer, o.ID, o.SyncStatus)
}

func (r *Request) Validate() error {
	if err := requireID(EntityRequest, r.ID); err != nil {
		return err
	}
	if r.ZoneID == "" {
		return Validationf("request %s: zone_id is required", r.ID)
	}
	if !r.Category.Valid() {
		return Validationf("request %s: unknown category %q", r.ID, r.Category)
	}
	if r.Quantity < 1 {
		return Validationf("request %s: quantity must be >= 1", r.ID)
	}
	if !r.Status.Valid() {
		return Validationf("request %s: unknown status %q", r.ID, r.Status)
	}
	return validSyncStatus(EntityRequest, r.ID, r.SyncStatus)
}

func (m *Match) Validate() error {
	if err := requireID(EntityMatch, m.ID); err != nil {
		return err
	}
	if m.OfferID == "" || m.RequestID == "" {
		return Validationf("match %s: offer_id and request_id are required", m.ID)
	}
	if !m.Status.Valid() {
		return Validationf("match %s: unknown status %q", m.ID, m.Status)
	}
	return nil
}

// Validate enforces qty_reserved <= qty_available at write time.
func (i *InventoryItem) Validate() error {
	if err := requireID(EntityInventory, i.ID); err != nil {
		return err
	}
	if i.LocationID == "" || i.ItemName == "" {
		return Validationf("inventory %s: location_id and item_name are required", i.ID)
	}
	if !i.Category.Valid() {
		return Validationf("inventory %s: unknown category %q", i.ID, i.Category)
	}
	if i.QtyAvailable < 0 || i.QtyReserved < 0 {
		return Validationf("inventory %s: quantities must be >= 0", i.ID)
	}
	if i.QtyReserved > i.QtyAvailable {
		return Validationf("inventory %s: qty_reserved %d exceeds qty_available %d",
			i.ID, i.QtyReserved, i.QtyAvailable)
	}
	return nil
}

func (d *Distribution) Validate() error {
	if err := requireID(EntityDistribution, d.ID); err != nil {
		return err
	}
	if d.HouseholdID == "" || d.LocationID == "" {
		return Validationf("distribution %s: household_id and location_id are required", d.ID)
	}
	if !d.Status.Valid() {
		return Validationf("distribution %s: unknown status %q", d.ID, d.Status)
	}
	for i, item := range d.Items {
		if !item.Category.Valid() {
			return Validationf("distribution %s: item %d has unknown category %q", d.ID, i, item.Category)
		}
		if item.Quantity < 1 {
			return Validationf("distribution %s: item %d quantity must be >= 1", d.ID, i)
		}
	}
	return validSyncStatus(EntityDistribution, d.ID, d.SyncStatus)
}

func (a *AuditLog) Validate() error {
	if err := requireID(EntityAuditLog, a.ID); err != nil {
		return err
	}
	if a.Action == "" || a.EntityType == "" {
		return Validationf("audit_log %s: action and entity_type are required", a.ID)
	}
	return nil
}

func (z *Zone) Validate() error {
	if err := requireID(EntityZone, z.ID); err != nil {
		return err
	}
	if z.Name == "" {
		return Validationf("zone %s: name is required", z.ID)
	}
	return nil
}

func (s *Shelter) Validate() error {
	if err := requireID(EntityShelter, s.ID); err != nil {
		return err
	}
	if s.ZoneID == "" || s.Name == "" {
		return Validationf("shelter %s: zone_id and name are required", s.ID)
	}
	return nil
}

func (p *PickupPoint) Validate() error {
	if err := requireID(EntityPickupPoint, p.ID); err != nil {
		return err
	}
	if p.ZoneID == "" || p.Name == "" {
		return Validationf("pickup_point %s: zone_id and name are required", p.ID)
	}
	return nil
}

// validSyncStatus accepts the empty status; the store defaults it.
func validSyncStatus(entity EntityType, id string, s SyncStatus) error {
	if s != "" && !s.Valid() {
		return Validationf("%s %s: unknown sync_status %q", entity, id, s)
	}
	return nil
}
