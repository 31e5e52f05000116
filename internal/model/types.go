package model

// Record is implemented by every entity that can be stored, upserted by ID
// and carried in a sync payload.
type Record interface {
	Entity() EntityType
	RecordID() string
	Validate() error
}

// Syncable records carry a sync status and audit timestamps.
type Syncable interface {
	Record
	SetSyncStatus(SyncStatus)
	Touch(now Time)
	UpdatedAt() Time
}

// Normalizer is implemented by records with fields that have a canonical
// stored form. The store calls Normalize before every write.
type Normalizer interface {
	Normalize()
}

// Household is a registered family unit. Households are never hard-deleted.
type Household struct {
	ID                 string             `json:"id" db:"id"`
	Token              string             `json:"token" db:"token"`
	ZoneID             string             `json:"zone_id" db:"zone_id"`
	ShelterID          string             `json:"shelter_id,omitempty" db:"shelter_id"`
	HeadName           string             `json:"head_of_household_name,omitempty" db:"head_of_household_name"`
	FamilySize         int                `json:"family_size" db:"family_size"`
	DisplacementStatus DisplacementStatus `json:"displacement_status" db:"displacement_status"`
	VulnerabilityFlags Flags              `json:"vulnerability_flags" db:"vulnerability_flags"`
	PriorityScore      int                `json:"priority_score" db:"priority_score"`
	AreaDescription    string             `json:"area_description,omitempty" db:"area_description"`
	Notes              string             `json:"notes,omitempty" db:"notes"`
	CreatedBy          string             `json:"created_by" db:"created_by"`
	CreatedAt          Time               `json:"created_at" db:"created_at"`
	Updated            Time               `json:"updated_at" db:"updated_at"`
	SyncStatus         SyncStatus         `json:"sync_status" db:"sync_status"`
}

// HouseholdMember belongs to exactly one household and is deleted with it.
type HouseholdMember struct {
	ID                string     `json:"id" db:"id"`
	HouseholdID       string     `json:"household_id" db:"household_id"`
	AgeBand           AgeBand    `json:"age_band" db:"age_band"`
	Sex               string     `json:"sex,omitempty" db:"sex"`
	SpecialNeedsFlags Flags      `json:"special_needs_flags" db:"special_needs_flags"`
	CreatedAt         Time       `json:"created_at" db:"created_at"`
	Updated           Time       `json:"updated_at" db:"updated_at"`
	SyncStatus        SyncStatus `json:"sync_status" db:"sync_status"`
}

// Need is a household's request for one category of aid.
type Need struct {
	ID          string     `json:"id" db:"id"`
	HouseholdID string     `json:"household_id" db:"household_id"`
	Category    Category   `json:"category" db:"category"`
	Description string     `json:"description,omitempty" db:"description"`
	Quantity    int        `json:"quantity" db:"quantity"`
	Urgency     Urgency    `json:"urgency" db:"urgency"`
	Status      NeedStatus `json:"status" db:"status"`
	CreatedBy   string     `json:"created_by" db:"created_by"`
	CreatedAt   Time       `json:"created_at" db:"created_at"`
	Updated     Time       `json:"updated_at" db:"updated_at"`
	SyncStatus  SyncStatus `json:"sync_status" db:"sync_status"`
}

// Offer is zone-scoped supply, optionally from a household (family to family
// exchange) or a donor.
type Offer struct {
	ID          string         `json:"id" db:"id"`
	ZoneID      string         `json:"zone_id" db:"zone_id"`
	CreatedBy   string         `json:"created_by" db:"created_by"`
	HouseholdID string         `json:"household_id,omitempty" db:"household_id"`
	DonorID     string         `json:"donor_id,omitempty" db:"donor_id"`
	Category    Category       `json:"category" db:"category"`
	Description string         `json:"description,omitempty" db:"description"`
	Quantity    int            `json:"quantity" db:"quantity"`
	Expiry      Time           `json:"expiry" db:"expiry"`
	Status      ExchangeStatus `json:"status" db:"status"`
	CreatedAt   Time           `json:"created_at" db:"created_at"`
	Updated     Time           `json:"updated_at" db:"updated_at"`
	SyncStatus  SyncStatus     `json:"sync_status" db:"sync_status"`
}

// Request is zone-scoped demand.
type Request struct {
	ID          string         `json:"id" db:"id"`
	HouseholdID string         `json:"household_id,omitempty" db:"household_id"`
	ZoneID      string         `json:"zone_id" db:"zone_id"`
	Category    Category       `json:"category" db:"category"`
	Description string         `json:"description,omitempty" db:"description"`
	Quantity    int            `json:"quantity" db:"quantity"`
	Status      ExchangeStatus `json:"status" db:"status"`
	CreatedAt   Time           `json:"created_at" db:"created_at"`
	Updated     Time           `json:"updated_at" db:"updated_at"`
	SyncStatus  SyncStatus     `json:"sync_status" db:"sync_status"`
}

// Match pairs one offer with one request.
type Match struct {
	ID            string      `json:"id" db:"id"`
	OfferID       string      `json:"offer_id" db:"offer_id"`
	RequestID     string      `json:"request_id" db:"request_id"`
	Status        MatchStatus `json:"status" db:"status"`
	PickupPointID string      `json:"pickup_point_id,omitempty" db:"pickup_point_id"`
	CreatedAt     Time        `json:"created_at" db:"created_at"`
	Updated       Time        `json:"updated_at" db:"updated_at"`
}

// InventoryItem is stock of one item at one location.
type InventoryItem struct {
	ID           string   `json:"id" db:"id"`
	LocationID   string   `json:"location_id" db:"location_id"`
	LocationType string   `json:"location_type" db:"location_type"`
	Category     Category `json:"category" db:"category"`
	ItemName     string   `json:"item_name" db:"item_name"`
	QtyAvailable int      `json:"qty_available" db:"qty_available"`
	QtyReserved  int      `json:"qty_reserved" db:"qty_reserved"`
	BatchInfo    string   `json:"batch_info,omitempty" db:"batch_info"`
	ExpiryDate   Time     `json:"expiry_date" db:"expiry_date"`
	CreatedAt    Time     `json:"created_at" db:"created_at"`
	Updated      Time     `json:"updated_at" db:"updated_at"`
}

// Remaining is the unreserved stock, never negative.
func (i InventoryItem) Remaining() int {
	return max(0, i.QtyAvailable-i.QtyReserved)
}

// Distribution records aid handed (or planned to be handed) to a household.
type Distribution struct {
	ID            string             `json:"id" db:"id"`
	HouseholdID   string             `json:"household_id" db:"household_id"`
	LocationID    string             `json:"location_id" db:"location_id"`
	Status        DistributionStatus `json:"status" db:"status"`
	Items         DistributionItems  `json:"items" db:"items"`
	DistributedBy string             `json:"distributed_by" db:"distributed_by"`
	DistributedAt Time               `json:"distributed_at" db:"distributed_at"`
	CreatedAt     Time               `json:"created_at" db:"created_at"`
	Updated       Time               `json:"updated_at" db:"updated_at"`
	SyncStatus    SyncStatus         `json:"sync_status" db:"sync_status"`
}

// AuditLog is an append-only record of who did what.
type AuditLog struct {
	ID         string `json:"id" db:"id"`
	ActorID    string `json:"actor_id" db:"actor_id"`
	ActorRole  string `json:"actor_role" db:"actor_role"`
	Action     string `json:"action" db:"action"`
	EntityType string `json:"entity_type" db:"entity_type"`
	EntityID   string `json:"entity_id" db:"entity_id"`
	Details    string `json:"details,omitempty" db:"details"`
	Timestamp  Time   `json:"timestamp" db:"timestamp"`
}

type Zone struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Description  string `json:"description,omitempty" db:"description"`
	ParentZoneID string `json:"parent_zone_id,omitempty" db:"parent_zone_id"`
	CreatedAt    Time   `json:"created_at" db:"created_at"`
}

type Shelter struct {
	ID        string `json:"id" db:"id"`
	ZoneID    string `json:"zone_id" db:"zone_id"`
	Name      string `json:"name" db:"name"`
	Capacity  int    `json:"capacity" db:"capacity"`
	CreatedAt Time   `json:"created_at" db:"created_at"`
	Updated   Time   `json:"updated_at" db:"updated_at"`
}

type PickupPoint struct {
	ID          string `json:"id" db:"id"`
	ZoneID      string `json:"zone_id" db:"zone_id"`
	ShelterID   string `json:"shelter_id,omitempty" db:"shelter_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	CreatedAt   Time   `json:"created_at" db:"created_at"`
}

// SyncQueueItem is a pending local mutation on a field device or hub.
// ID is entity_type:entity_id:timestamp.
type SyncQueueItem struct {
	ID         string     `json:"id" db:"id"`
	EntityType EntityType `json:"entity_type" db:"entity_type"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	Action     SyncAction `json:"action" db:"action"`
	Payload    []byte     `json:"-" db:"payload"`
	EnqueuedAt Time       `json:"enqueued_at" db:"enqueued_at"`
}

// SyncLogEntry is the append-only audit trail of sync attempts.
type SyncLogEntry struct {
	ID             string    `json:"id" db:"id"`
	HubID          string    `json:"hub_id" db:"hub_id"`
	Direction      Direction `json:"direction" db:"direction"`
	Outcome        Outcome   `json:"outcome" db:"outcome"`
	RecordsCount   int       `json:"records_count" db:"records_count"`
	ConflictsCount int       `json:"conflicts_count" db:"conflicts_count"`
	Error          string    `json:"error,omitempty" db:"error"`
	PayloadDigest  string    `json:"payload_digest,omitempty" db:"payload_digest"`
	Timestamp      Time      `json:"timestamp" db:"timestamp"`
}

func (h *Household) Entity() EntityType       { return EntityHousehold }
func (m *HouseholdMember) Entity() EntityType { return EntityMember }
func (n *Need) Entity() EntityType            { return EntityNeed }
func (o *Offer) Entity() EntityType           { return EntityOffer }
func (r *Request) Entity() EntityType         { return EntityRequest }
func (m *Match) Entity() EntityType           { return EntityMatch }
func (i *InventoryItem) Entity() EntityType   { return EntityInventory }
func (d *Distribution) Entity() EntityType    { return EntityDistribution }
func (a *AuditLog) Entity() EntityType        { return EntityAuditLog }
func (z *Zone) Entity() EntityType            { return EntityZone }
func (s *Shelter) Entity() EntityType         { return EntityShelter }
func (p *PickupPoint) Entity() EntityType     { return EntityPickupPoint }

func (h *Household) RecordID() string       { return h.ID }
func (m *HouseholdMember) RecordID() string { return m.ID }
func (n *Need) RecordID() string            { return n.ID }
func (o *Offer) RecordID() string           { return o.ID }
func (r *Request) RecordID() string         { return r.ID }
func (m *Match) RecordID() string           { return m.ID }
func (i *InventoryItem) RecordID() string   { return i.ID }
func (d *Distribution) RecordID() string    { return d.ID }
func (a *AuditLog) RecordID() string        { return a.ID }
func (z *Zone) RecordID() string            { return z.ID }
func (s *Shelter) RecordID() string         { return s.ID }
func (p *PickupPoint) RecordID() string     { return p.ID }

func (h *Household) SetSyncStatus(s SyncStatus)       { h.SyncStatus = s }
func (m *HouseholdMember) SetSyncStatus(s SyncStatus) { m.SyncStatus = s }
func (n *Need) SetSyncStatus(s SyncStatus)            { n.SyncStatus = s }
func (o *Offer) SetSyncStatus(s SyncStatus)           { o.SyncStatus = s }
func (r *Request) SetSyncStatus(s SyncStatus)         { r.SyncStatus = s }
func (d *Distribution) SetSyncStatus(s SyncStatus)    { d.SyncStatus = s }

func (h *Household) UpdatedAt() Time       { return h.Updated }
func (m *HouseholdMember) UpdatedAt() Time { return m.Updated }
func (n *Need) UpdatedAt() Time            { return n.Updated }
func (o *Offer) UpdatedAt() Time           { return o.Updated }
func (r *Request) UpdatedAt() Time         { return r.Updated }
func (d *Distribution) UpdatedAt() Time    { return d.Updated }

// Touch sets updated_at to now, and created_at as well when it is unset.
func (h *Household) Touch(now Time)       { h.CreatedAt, h.Updated = touch(h.CreatedAt, now) }
func (m *HouseholdMember) Touch(now Time) { m.CreatedAt, m.Updated = touch(m.CreatedAt, now) }
func (n *Need) Touch(now Time)            { n.CreatedAt, n.Updated = touch(n.CreatedAt, now) }
func (o *Offer) Touch(now Time)           { o.CreatedAt, o.Updated = touch(o.CreatedAt, now) }
func (r *Request) Touch(now Time)         { r.CreatedAt, r.Updated = touch(r.CreatedAt, now) }
func (d *Distribution) Touch(now Time)    { d.CreatedAt, d.Updated = touch(d.CreatedAt, now) }

func touch(created, now Time) (Time, Time) {
	if created.IsZero() {
		created = now
	}
	return created, now
}
