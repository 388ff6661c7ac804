// Package testutil holds fixtures shared by the package tests: circuit keys
// that are expensive to set up, member identities and a settable clock.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/garagevoting/garage-node/circuits/semaphore"
	"github.com/garagevoting/garage-node/identity"
)

var (
	keysMu sync.Mutex
	keys   = map[int]*semaphore.Keys{}
)

// Keys returns circuit keys for depth, running the setup once per process.
func Keys(tb testing.TB, depth int) *semaphore.Keys {
	tb.Helper()
	keysMu.Lock()
	defer keysMu.Unlock()
	if k, ok := keys[depth]; ok {
		return k
	}
	k, err := semaphore.Setup(depth)
	if err != nil {
		tb.Fatalf("circuit setup depth %d: %v", depth, err)
	}
	keys[depth] = k
	return k
}

// Identities returns n fresh member identities.
func Identities(tb testing.TB, n int) []*identity.Identity {
	tb.Helper()
	out := make([]*identity.Identity, n)
	for i := range out {
		id, err := identity.New()
		if err != nil {
			tb.Fatal(err)
		}
		out[i] = id
	}
	return out
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
