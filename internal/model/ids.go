package model

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator assigns globally unique record IDs.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 IDs.
//
// UUIDv7 embeds a millisecond timestamp in the high bits, so IDs created on
// one device sort by creation time, which keeps store order stable in logs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID panics only if the system random source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewID returns a fresh UUIDv7.
func NewID() string {
	return UUIDv7Generator{}.NewID()
}

// SequenceGenerator returns predetermined IDs, then falls back to a prefix
// and counter. Used to make tests deterministic.
type SequenceGenerator struct {
	mu     sync.Mutex
	ids    []string
	prefix string
	n      int
}

// NewSequenceGenerator returns ids in order, then prefix-1, prefix-2, ...
func NewSequenceGenerator(prefix string, ids ...string) *SequenceGenerator {
	return &SequenceGenerator{ids: ids, prefix: prefix}
}

func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) > 0 {
		id := g.ids[0]
		g.ids = g.ids[1:]
		return id
	}
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}
