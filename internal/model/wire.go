package model

import (
	"encoding/json"
	"fmt"
)

// PushPayload is the batch a field device sends to its hub, or a hub to the
// core. Pull responses reuse it for their updates.
type PushPayload struct {
	HubID         string            `json:"hub_id"`
	Timestamp     Time              `json:"timestamp"`
	Households    []Household       `json:"households"`
	Members       []HouseholdMember `json:"members"`
	Needs         []Need            `json:"needs"`
	Distributions []Distribution    `json:"distributions"`
	Offers        []Offer           `json:"offers"`
	Requests      []Request         `json:"requests"`
	AuditLogs     []AuditLog        `json:"audit_logs"`
}

// NewPushPayload returns a payload with every array non-nil so that it
// encodes as [] rather than null.
func NewPushPayload(hubID string, ts Time) *PushPayload {
	p := &PushPayload{HubID: hubID, Timestamp: ts}
	p.Normalize()
	return p
}

// Normalize replaces nil arrays with empty ones.
func (p *PushPayload) Normalize() {
	if p.Households == nil {
		p.Households = []Household{}
	}
	if p.Members == nil {
		p.Members = []HouseholdMember{}
	}
	if p.Needs == nil {
		p.Needs = []Need{}
	}
	if p.Distributions == nil {
		p.Distributions = []Distribution{}
	}
	if p.Offers == nil {
		p.Offers = []Offer{}
	}
	if p.Requests == nil {
		p.Requests = []Request{}
	}
	if p.AuditLogs == nil {
		p.AuditLogs = []AuditLog{}
	}
}

// Validate checks the envelope only. Records are validated one by one when
// applied, so a bad record becomes a conflict instead of failing the batch.
func (p *PushPayload) Validate() error {
	if p == nil {
		return Validationf("push payload is required")
	}
	if p.HubID == "" {
		return Validationf("push payload: hub_id is required")
	}
	return nil
}

// Len returns the number of records across all arrays.
func (p *PushPayload) Len() int {
	return len(p.Households) + len(p.Members) + len(p.Needs) + len(p.Distributions) +
		len(p.Offers) + len(p.Requests) + len(p.AuditLogs)
}

// Add appends rec to the array for its entity type.
func (p *PushPayload) Add(rec Record) error {
	switch r := rec.(type) {
	case *Household:
		p.Households = append(p.Households, *r)
	case *HouseholdMember:
		p.Members = append(p.Members, *r)
	case *Need:
		p.Needs = append(p.Needs, *r)
	case *Distribution:
		p.Distributions = append(p.Distributions, *r)
	case *Offer:
		p.Offers = append(p.Offers, *r)
	case *Request:
		p.Requests = append(p.Requests, *r)
	case *AuditLog:
		p.AuditLogs = append(p.AuditLogs, *r)
	default:
		return Validationf("entity %s is not carried by sync payloads", rec.Entity())
	}
	return nil
}

// Records returns pointers to every record in SyncableEntities order, so
// parents are applied before the rows that reference them.
func (p *PushPayload) Records() []Record {
	out := make([]Record, 0, p.Len())
	for i := range p.Households {
		out = append(out, &p.Households[i])
	}
	for i := range p.Members {
		out = append(out, &p.Members[i])
	}
	for i := range p.Needs {
		out = append(out, &p.Needs[i])
	}
	for i := range p.Distributions {
		out = append(out, &p.Distributions[i])
	}
	for i := range p.Offers {
		out = append(out, &p.Offers[i])
	}
	for i := range p.Requests {
		out = append(out, &p.Requests[i])
	}
	for i := range p.AuditLogs {
		out = append(out, &p.AuditLogs[i])
	}
	return out
}

// Digest is the canonical SHA-256 of the payload, written to the sync log.
func (p *PushPayload) Digest() (string, error) {
	return Digest(DomainPushPayload, p)
}

// Conflict identifies a record that failed to apply.
type Conflict struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Reason     string     `json:"reason,omitempty"`
}

type PushResponse struct {
	Status          Outcome    `json:"status"`
	Conflicts       []Conflict `json:"conflicts"`
	ServerTimestamp Time       `json:"server_timestamp"`
	RecordsAccepted int        `json:"records_accepted"`
}

type PullRequest struct {
	HubID          string `json:"hub_id"`
	SinceTimestamp Time   `json:"since_timestamp"`
	ZoneID         string `json:"zone_id"`
}

func (r *PullRequest) Validate() error {
	if r.HubID == "" {
		return Validationf("pull request: hub_id is required")
	}
	if r.ZoneID == "" {
		return Validationf("pull request: zone_id is required")
	}
	return nil
}

type PullResponse struct {
	Status          Outcome      `json:"status"`
	Conflicts       []Conflict   `json:"conflicts"`
	ServerTimestamp Time         `json:"server_timestamp"`
	Updates         *PushPayload `json:"updates"`
}

// NewRecord returns an empty record for entity, or nil for unknown types.
func NewRecord(entity EntityType) Record {
	switch entity {
	case EntityHousehold:
		return &Household{}
	case EntityMember:
		return &HouseholdMember{}
	case EntityNeed:
		return &Need{}
	case EntityOffer:
		return &Offer{}
	case EntityRequest:
		return &Request{}
	case EntityMatch:
		return &Match{}
	case EntityInventory:
		return &InventoryItem{}
	case EntityDistribution:
		return &Distribution{}
	case EntityAuditLog:
		return &AuditLog{}
	case EntityZone:
		return &Zone{}
	case EntityShelter:
		return &Shelter{}
	case EntityPickupPoint:
		return &PickupPoint{}
	}
	return nil
}

// DecodeRecord unmarshals a queued JSON payload into a record of entity.
func DecodeRecord(entity EntityType, data []byte) (Record, error) {
	rec := NewRecord(entity)
	if rec == nil {
		return nil, Validationf("unknown entity type %q", entity)
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entity, err)
	}
	return rec, nil
}
