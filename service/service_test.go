package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/api"
	"github.com/garagevoting/garage-node/circuits/semaphore"
	"github.com/garagevoting/garage-node/db/metadb"
	"github.com/garagevoting/garage-node/events"
	"github.com/garagevoting/garage-node/internal/testutil"
	"github.com/garagevoting/garage-node/poll"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/storage"
)

type acceptAll struct{}

func (acceptAll) VerifyProof(*prover.Proof, int) bool { return true }

func (acceptAll) ID(depth int) ([]byte, error) { return []byte{byte(depth)}, nil }

type countingChecker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingChecker) CheckPhases() ([]poll.PollPhaseChanged, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, c.err
}

func (c *countingChecker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestPollMonitorPublishesPhaseChanges(t *testing.T) {
	c := qt.New(t)
	t0 := time.Unix(1_700_000_000, 0).UTC()
	clock := testutil.NewClock(t0)
	bus := events.NewBus(nil)
	c.Cleanup(bus.Stop)
	ctrl, err := poll.New(poll.Config{
		Storage:  storage.New(metadb.NewTest(c)),
		Verifier: acceptAll{},
		Checker:  access.RoleChecker{},
		Bus:      bus,
		Clock:    clock.Now,
	})
	c.Assert(err, qt.IsNil)
	p, err := ctrl.CreatePoll(access.Actor{ID: "a", Role: access.RoleAdmin}, poll.CreatePollParams{
		Name: "p", Options: []string{"x"}, StartTime: t0.Add(time.Minute), EndTime: t0.Add(time.Hour),
	})
	c.Assert(err, qt.IsNil)

	_, ch := bus.Subscribe(poll.EventPollPhaseChanged)
	pm := NewPollMonitor(ctrl, 10*time.Millisecond)
	c.Assert(pm.Start(context.Background()), qt.IsNil)
	c.Assert(pm.Start(context.Background()), qt.ErrorMatches, "service already running")
	defer pm.Stop()

	clock.Advance(time.Minute)
	select {
	case evt := <-ch:
		change := evt.Data.(poll.PollPhaseChanged)
		c.Assert(change.PollID, qt.Equals, p.ID())
		c.Assert(change.New.String(), qt.Equals, "open")
	case <-time.After(2 * time.Second):
		c.Fatal("no phase change published")
	}
}

func TestPollMonitorStop(t *testing.T) {
	c := qt.New(t)
	checker := &countingChecker{}
	pm := NewPollMonitor(checker, time.Millisecond)
	c.Assert(pm.Start(context.Background()), qt.IsNil)
	deadline := time.Now().Add(2 * time.Second)
	for checker.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	pm.Stop()
	stopped := checker.count()
	c.Assert(stopped >= 3, qt.IsTrue)
	time.Sleep(10 * time.Millisecond)
	c.Assert(checker.count(), qt.Equals, stopped)
	pm.Stop()

	failing := &countingChecker{err: errors.New("db closed")}
	c.Assert(NewPollMonitor(failing, 0).Start(context.Background()), qt.ErrorMatches, "failed to read poll phases: db closed")
}

func TestAPIService(t *testing.T) {
	c := qt.New(t)
	ctrl, err := poll.New(poll.Config{
		Storage:  storage.New(metadb.NewTest(c)),
		Verifier: acceptAll{},
		Checker:  access.RoleChecker{},
	})
	c.Assert(err, qt.IsNil)
	as := NewAPI(api.APIConfig{Host: "127.0.0.1", Controller: ctrl}, true)
	c.Assert(as.Start(context.Background()), qt.IsNil)
	c.Assert(as.Start(context.Background()), qt.ErrorMatches, "service already running")

	res, err := http.Get("http://" + as.API.Addr() + api.PingEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(res.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(res.Body.Close(), qt.IsNil)

	as.Stop()
	c.Assert(as.API, qt.IsNil)
	as.Stop()
}

func TestPrepareArtifacts(t *testing.T) {
	if testing.Short() {
		t.Skip("circuit setup is slow")
	}
	c := qt.New(t)
	dir := t.TempDir()
	const depth = 2

	_, err := PrepareArtifacts(context.Background(), ArtifactsConfig{Dir: dir, Depths: []int{depth}})
	c.Assert(err, qt.ErrorIs, semaphore.ErrArtifactMissing)

	ring, err := PrepareArtifacts(context.Background(), ArtifactsConfig{Dir: dir, Depths: []int{depth}, Setup: true})
	c.Assert(err, qt.IsNil)
	id, err := ring.VerifyingKeyID(depth)
	c.Assert(err, qt.IsNil)

	// the second run is served by the cache
	cached, err := PrepareArtifacts(context.Background(), ArtifactsConfig{Dir: dir, Depths: []int{depth}})
	c.Assert(err, qt.IsNil)
	cachedID, err := cached.VerifyingKeyID(depth)
	c.Assert(err, qt.IsNil)
	c.Assert(cachedID, qt.DeepEquals, id)
	keys, ok := cached.Get(depth)
	c.Assert(ok, qt.IsTrue)
	c.Assert(keys.ProvingKey, qt.IsNotNil)
	c.Assert(keys.CCS, qt.IsNotNil)

	_, err = PrepareArtifacts(context.Background(), ArtifactsConfig{Dir: dir})
	c.Assert(err, qt.ErrorMatches, "no tree depths configured")
}
