package poll

import (
	"bytes"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/db/metadb"
	"github.com/garagevoting/garage-node/events"
	"github.com/garagevoting/garage-node/identity"
	"github.com/garagevoting/garage-node/internal/testutil"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/storage"
	"github.com/garagevoting/garage-node/types"
)

var (
	admin  = access.Actor{ID: "admin", Role: access.RoleAdmin}
	member = access.Actor{ID: "member", Role: access.RoleUser}

	t0 = time.Unix(1_700_000_000, 0).UTC()
)

// fakeVerifier accepts every proof whose bytes are not "bad". The public
// signal checks are the controller's own.
type fakeVerifier struct {
	id          []byte
	unsupported map[int]bool
}

func (v *fakeVerifier) VerifyProof(proof *prover.Proof, _ int) bool {
	return !bytes.Equal(proof.Proof, []byte("bad"))
}

func (v *fakeVerifier) ID(depth int) ([]byte, error) {
	if v.unsupported[depth] {
		return nil, errors.New("no key")
	}
	return append(append([]byte(nil), v.id...), byte(depth)), nil
}

type harness struct {
	ctrl    *Controller
	storage *storage.Storage
	clock   *testutil.Clock
	bus     *events.Bus
	cipher  *ballot.Cipher
}

func newHarness(c *qt.C, verifier Verifier) *harness {
	if verifier == nil {
		verifier = &fakeVerifier{id: []byte{0xaa}}
	}
	cipher, err := ballot.NewCipher([]byte("test secret"), ballot.WithIterations(10))
	c.Assert(err, qt.IsNil)
	h := &harness{
		storage: storage.New(metadb.NewTest(c)),
		clock:   testutil.NewClock(t0),
		bus:     events.NewBus(nil),
		cipher:  cipher,
	}
	c.Cleanup(h.bus.Stop)
	h.ctrl, err = New(Config{
		Storage:  h.storage,
		Verifier: verifier,
		Checker:  access.RoleChecker{},
		Cipher:   cipher,
		Bus:      h.bus,
		Clock:    h.clock.Now,
	})
	c.Assert(err, qt.IsNil)
	return h
}

// newPoll creates a poll open during [t0+start, t0+start+duration).
func (h *harness) newPoll(c *qt.C, start, duration time.Duration) *Poll {
	p, err := h.ctrl.CreatePoll(admin, CreatePollParams{
		Name:      "Test Poll",
		Options:   []string{"Option 1", "Option 2", "Option 3"},
		StartTime: t0.Add(start),
		EndTime:   t0.Add(start + duration),
	})
	c.Assert(err, qt.IsNil)
	return p
}

func (h *harness) register(c *qt.C, p *Poll, ids []*identity.Identity) {
	for _, id := range ids {
		_, err := h.ctrl.AddVoter(admin, p.ID(), id.Commitment())
		c.Assert(err, qt.IsNil)
	}
}

// fakeProof builds the public signals a real proof by id would carry.
func fakeProof(c *qt.C, p *Poll, id *identity.Identity, vote common.Hash) *prover.Proof {
	root, err := p.Root()
	c.Assert(err, qt.IsNil)
	scope := prover.ExternalNullifier(p.ID())
	return &prover.Proof{
		MerkleRoot:        types.NewBigInt(root),
		NullifierHash:     types.NewBigInt(id.NullifierHash(scope)),
		ExternalNullifier: types.NewBigInt(scope),
		Signal:            types.NewBigInt(prover.SignalFromVoteCommitment(vote)),
		Depth:             p.Depth(),
		Proof:             types.HexBytes("ok"),
	}
}

func nullifierOf(p *Poll, id *identity.Identity) *big.Int {
	return id.NullifierHash(prover.ExternalNullifier(p.ID()))
}

func receive(c *qt.C, ch <-chan events.Event) events.Event {
	c.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		c.Fatal("timeout waiting for event")
	}
	return events.Event{}
}
