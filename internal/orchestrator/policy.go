package orchestrator

import (
	"fmt"

	"github.com/roach88/ataa/internal/model"
)

// ConflictPolicy decides whether an incoming record may replace the stored
// copy. stored is nil when the record is new to this tier. A non-nil error
// turns the record into a conflict.
type ConflictPolicy interface {
	Name() string
	Resolve(stored, incoming model.Record) error
}

// Policy names accepted by PolicyByName.
const (
	PolicyLastWriteWins = "last_write_wins"
	PolicyNewerWins     = "newer_wins"
)

// LastWriteWins overwrites on every ID collision, with no version check.
type LastWriteWins struct{}

func (LastWriteWins) Name() string { return PolicyLastWriteWins }

func (LastWriteWins) Resolve(_, _ model.Record) error { return nil }

// NewerWins rejects incoming records whose updated_at is older than the
// stored copy. Ties and records without timestamps are applied.
type NewerWins struct{}

func (NewerWins) Name() string { return PolicyNewerWins }

func (NewerWins) Resolve(stored, incoming model.Record) error {
	if stored == nil {
		return nil
	}
	s, ok := stored.(model.Syncable)
	if !ok {
		return nil
	}
	in, ok := incoming.(model.Syncable)
	if !ok {
		return nil
	}
	if in.UpdatedAt().IsZero() || s.UpdatedAt().IsZero() {
		return nil
	}
	if in.UpdatedAt().Before(s.UpdatedAt()) {
		return model.Stale(incoming.Entity(), incoming.RecordID())
	}
	return nil
}

// needsStored reports whether the policy looks at the stored copy.
func needsStored(p ConflictPolicy) bool {
	_, lww := p.(LastWriteWins)
	return !lww
}

// PolicyByName maps a configured name to a policy. "" means last write
// wins.
func PolicyByName(name string) (ConflictPolicy, error) {
	switch name {
	case "", PolicyLastWriteWins:
		return LastWriteWins{}, nil
	case PolicyNewerWins:
		return NewerWins{}, nil
	}
	return nil, fmt.Errorf("unknown conflict policy %q", name)
}
