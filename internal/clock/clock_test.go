package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceAndSet(t *testing.T) {
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)
	assert.Equal(t, start, c.Now())

	assert.Equal(t, start.Add(time.Hour), c.Advance(time.Hour))
	assert.Equal(t, start.Add(time.Hour), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, "2025-05-01T12:00:00.000000Z", Stamp(c).String())
}

func TestFake_Concurrent(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()
	assert.Equal(t, time.Unix(100, 0).UTC(), c.Now())
}

func TestSystem_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, System{}.Now().Location())
}
