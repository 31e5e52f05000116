package model

// EntityType names a record kind in the store and on the wire.
type EntityType string

const (
	EntityHousehold    EntityType = "household"
	EntityMember       EntityType = "member"
	EntityNeed         EntityType = "need"
	EntityOffer        EntityType = "offer"
	EntityRequest      EntityType = "request"
	EntityMatch        EntityType = "match"
	EntityInventory    EntityType = "inventory"
	EntityDistribution EntityType = "distribution"
	EntityAuditLog     EntityType = "audit_log"
	EntityZone         EntityType = "zone"
	EntityShelter      EntityType = "shelter"
	EntityPickupPoint  EntityType = "pickup_point"
	EntitySyncLog      EntityType = "sync_log"
)

// SyncableEntities lists the entity types carried by a push payload, in the
// order they must be applied so that foreign keys resolve.
var SyncableEntities = []EntityType{
	EntityHousehold,
	EntityMember,
	EntityNeed,
	EntityDistribution,
	EntityOffer,
	EntityRequest,
	EntityAuditLog,
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityHousehold, EntityMember, EntityNeed, EntityOffer, EntityRequest,
		EntityMatch, EntityInventory, EntityDistribution, EntityAuditLog,
		EntityZone, EntityShelter, EntityPickupPoint, EntitySyncLog:
		return true
	}
	return false
}

// SyncStatus tracks whether a record still has to be pushed upstream.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncConflict SyncStatus = "conflict"
)

func (s SyncStatus) Valid() bool {
	return s == SyncPending || s == SyncSynced || s == SyncConflict
}

// Category is the closed set of aid categories used by needs, offers,
// requests, inventory and distributions.
type Category string

const (
	CategoryFood      Category = "food"
	CategoryWater     Category = "water"
	CategoryHygiene   Category = "hygiene"
	CategoryBabyItems Category = "baby_items"
	CategoryMedicine  Category = "medicine"
	CategoryShelter   Category = "shelter"
	CategoryClothing  Category = "clothing"
	CategoryEducation Category = "education"
	CategoryOther     Category = "other"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryFood, CategoryWater, CategoryHygiene, CategoryBabyItems, CategoryMedicine,
	CategoryShelter, CategoryClothing, CategoryEducation, CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Urgency of a need.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	return u == UrgencyLow || u == UrgencyMedium || u == UrgencyHigh || u == UrgencyCritical
}

// Rank orders urgencies for allocation: critical=1 ... low=4.
// Unknown values sort after low.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 3
	case UrgencyLow:
		return 4
	}
	return 5
}

// NeedStatus moves forward only: open → partially_met/met/cancelled.
type NeedStatus string

const (
	NeedOpen         NeedStatus = "open"
	NeedPartiallyMet NeedStatus = "partially_met"
	NeedMet          NeedStatus = "met"
	NeedCancelled    NeedStatus = "cancelled"
)

func (s NeedStatus) Valid() bool {
	return s == NeedOpen || s == NeedPartiallyMet || s == NeedMet || s == NeedCancelled
}

// CanTransition reports whether a need may move from s to next.
// Needs are never reopened.
func (s NeedStatus) CanTransition(next NeedStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case NeedOpen:
		return next == NeedPartiallyMet || next == NeedMet || next == NeedCancelled
	case NeedPartiallyMet:
		return next == NeedMet || next == NeedCancelled
	}
	return false
}

// ExchangeStatus is the lifecycle of an Offer or a Request.
type ExchangeStatus string

const (
	ExchangeOpen      ExchangeStatus = "open"
	ExchangeMatched   ExchangeStatus = "matched"
	ExchangeCompleted ExchangeStatus = "completed"
	ExchangeExpired   ExchangeStatus = "expired"
	ExchangeCancelled ExchangeStatus = "cancelled"
)

func (s ExchangeStatus) Valid() bool {
	switch s {
	case ExchangeOpen, ExchangeMatched, ExchangeCompleted, ExchangeExpired, ExchangeCancelled:
		return true
	}
	return false
}

// MatchStatus is the match state machine:
//
//	pending → accepted → picked_up → completed
//	pending|accepted → cancelled
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchAccepted  MatchStatus = "accepted"
	MatchPickedUp  MatchStatus = "picked_up"
	MatchCompleted MatchStatus = "completed"
	MatchCancelled MatchStatus = "cancelled"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchPending, MatchAccepted, MatchPickedUp, MatchCompleted, MatchCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a match may move from s to next.
func (s MatchStatus) CanTransition(next MatchStatus) bool {
	switch s {
	case MatchPending:
		return next == MatchAccepted || next == MatchCancelled
	case MatchAccepted:
		return next == MatchPickedUp || next == MatchCancelled
	case MatchPickedUp:
		return next == MatchCompleted
	}
	return false
}

// Active reports whether the match still holds its offer and request.
func (s MatchStatus) Active() bool {
	return s != MatchCancelled
}

type DistributionStatus string

const (
	DistributionPlanned    DistributionStatus = "planned"
	DistributionInProgress DistributionStatus = "in_progress"
	DistributionCompleted  DistributionStatus = "completed"
	DistributionCancelled  DistributionStatus = "cancelled"
)

func (s DistributionStatus) Valid() bool {
	switch s {
	case DistributionPlanned, DistributionInProgress, DistributionCompleted, DistributionCancelled:
		return true
	}
	return false
}

type DisplacementStatus string

const (
	Displaced DisplacementStatus = "displaced"
	Returnee  DisplacementStatus = "returnee"
	Host      DisplacementStatus = "host"
	OtherDisp DisplacementStatus = "other"
)

func (s DisplacementStatus) Valid() bool {
	return s == Displaced || s == Returnee || s == Host || s == OtherDisp
}

// AgeBand tokens keep the field devices' wire values.
type AgeBand string

const (
	AgeInfant  AgeBand = "0-2"
	AgeChild   AgeBand = "3-12"
	AgeTeen    AgeBand = "13-17"
	AgeAdult   AgeBand = "18-59"
	AgeElderly AgeBand = "60+"
)

func (b AgeBand) Valid() bool {
	switch b {
	case AgeInfant, AgeChild, AgeTeen, AgeAdult, AgeElderly:
		return true
	}
	return false
}

// Vulnerability flags with dedicated scoring weights. Other flag values are
// accepted and scored with the unknown-flag weight.
const (
	FlagOrphans        = "orphans"
	FlagDisabled       = "disabled"
	FlagElderlyAlone   = "elderly_alone"
	FlagPregnant       = "pregnant"
	FlagChronicIllness = "chronic_illness"
	FlagFemaleHeaded   = "female_headed"
	FlagLargeFamily    = "large_family"
)

// SyncAction is the mutation recorded in the offline queue.
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

func (a SyncAction) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Outcome of a sync attempt.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
	OutcomeError   Outcome = "error"
)

// Role carried by bearer credentials.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleFieldWorker Role = "field_worker"
	RoleDonor       Role = "donor"
	RoleAuditor     Role = "auditor"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleFieldWorker || r == RoleDonor || r == RoleAuditor
}
