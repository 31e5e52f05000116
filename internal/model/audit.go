package model

import "fmt"

// Actor identifies the caller behind a mutation.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor is the actor of scheduled and automatic work.
var SystemActor = Actor{ID: "system", Role: RoleAdmin}

// NewAuditLog builds one audit entry. details is formatted like Sprintf.
func NewAuditLog(id string, actor Actor, action string, rec Record, now Time, details string, args ...any) *AuditLog {
	if len(args) > 0 {
		details = fmt.Sprintf(details, args...)
	}
	return &AuditLog{
		ID:         id,
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		Action:     action,
		EntityType: string(rec.Entity()),
		EntityID:   rec.RecordID(),
		Details:    details,
		Timestamp:  now,
	}
}
