package poll

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"

	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/group"
	"github.com/garagevoting/garage-node/identity"
	"github.com/garagevoting/garage-node/internal/testutil"
	"github.com/garagevoting/garage-node/prover"
)

type ballotCast struct {
	id         *identity.Identity
	ciphertext []byte
	commitment common.Hash
	proof      *prover.Proof
}

// prepareBallot does what a member's client does: encrypt the choice, hash it,
// rebuild the tree from the published members and prove membership.
func prepareBallot(c *qt.C, h *harness, pr *prover.Prover, p *Poll, id *identity.Identity, option int) *ballotCast {
	ct, err := h.cipher.EncryptVoteFor(option, len(p.Options()))
	c.Assert(err, qt.IsNil)
	commitment := ballot.CalculateVoteHash(ct)

	leaves, err := p.Members()
	c.Assert(err, qt.IsNil)
	tree, err := group.FromLeaves(p.ID(), p.Depth(), leaves)
	c.Assert(err, qt.IsNil)
	proof, err := pr.GenerateProof(context.Background(), id, tree, p.ID(), commitment)
	c.Assert(err, qt.IsNil)
	return &ballotCast{id: id, ciphertext: ct, commitment: commitment, proof: proof}
}

func newProvingHarness(c *qt.C) (*harness, *prover.Prover) {
	if testing.Short() {
		c.Skip("proving at depth 20 is slow")
	}
	ring := prover.NewKeyRing(testutil.Keys(c, group.DefaultDepth))
	return newHarness(c, prover.NewVerifier(ring)), prover.NewProver(ring)
}

func TestEndToEnd(t *testing.T) {
	c := qt.New(t)
	h, pr := newProvingHarness(c)

	p, err := h.ctrl.CreatePoll(admin, CreatePollParams{
		Name:      "Test Poll",
		Options:   []string{"Option 1", "Option 2", "Option 3"},
		StartTime: h.clock.Now(),
		EndTime:   h.clock.Now().Add(86400 * time.Second),
	})
	c.Assert(err, qt.IsNil)
	ids := testutil.Identities(c, 5)
	h.register(c, p, ids)

	members := make([]*ballotCast, len(ids))
	for i, id := range ids {
		members[i] = prepareBallot(c, h, pr, p, id, i%3)
	}
	for _, m := range members {
		_, err := p.CastVote(m.commitment, m.proof.NullifierHash.MathBigInt(), m.proof)
		c.Assert(err, qt.IsNil)
	}

	votes, err := p.EncryptedVotes()
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 5)
	nullifiers := make(map[string]struct{})
	for i, m := range members {
		c.Assert(votes[i], qt.Equals, ballot.CalculateVoteHash(m.ciphertext))
		nullifiers[m.proof.NullifierHash.String()] = struct{}{}
	}
	c.Assert(nullifiers, qt.HasLen, 5)

	// everyone reveals after the poll closes
	h.clock.Advance(86400 * time.Second)
	for _, m := range members {
		_, err := h.ctrl.RevealVote(p.ID(), m.ciphertext)
		c.Assert(err, qt.IsNil)
	}
	res, err := h.ctrl.Results(admin, p.ID())
	c.Assert(err, qt.IsNil)
	c.Assert(res.Counts, qt.DeepEquals, []uint64{2, 2, 1})
}

func TestDoubleVoteAndClosedPoll(t *testing.T) {
	c := qt.New(t)
	h, pr := newProvingHarness(c)

	p, err := h.ctrl.CreatePoll(admin, CreatePollParams{
		Name:      "Test Poll",
		Options:   []string{"Option 1", "Option 2", "Option 3"},
		StartTime: h.clock.Now(),
		EndTime:   h.clock.Now().Add(86400 * time.Second),
	})
	c.Assert(err, qt.IsNil)
	ids := testutil.Identities(c, 5)
	h.register(c, p, ids)

	first := prepareBallot(c, h, pr, p, ids[0], 0)
	_, err = p.CastVote(first.commitment, first.proof.NullifierHash.MathBigInt(), first.proof)
	c.Assert(err, qt.IsNil)
	_, err = p.CastVote(first.commitment, first.proof.NullifierHash.MathBigInt(), first.proof)
	c.Assert(err, qt.ErrorIs, ErrNullifierReused)

	// a second ballot by the same member carries the same nullifier hash
	again := prepareBallot(c, h, pr, p, ids[0], 1)
	c.Assert(again.proof.NullifierHash.Equal(first.proof.NullifierHash), qt.IsTrue)
	_, err = p.CastVote(again.commitment, again.proof.NullifierHash.MathBigInt(), again.proof)
	c.Assert(err, qt.ErrorIs, ErrNullifierReused)

	// a forged proof is rejected by the verifier itself
	forged := prepareBallot(c, h, pr, p, ids[2], 2)
	forged.proof.Proof[len(forged.proof.Proof)/2] ^= 0xff
	_, err = p.CastVote(forged.commitment, forged.proof.NullifierHash.MathBigInt(), forged.proof)
	c.Assert(err, qt.ErrorIs, ErrInvalidProof)

	// a valid proof replayed with another commitment does not spend the
	// member's nullifier
	honest := prepareBallot(c, h, pr, p, ids[3], 1)
	replayed := honest.commitment
	replayed[31] ^= 0xff
	_, err = p.CastVote(replayed, honest.proof.NullifierHash.MathBigInt(), honest.proof)
	c.Assert(err, qt.ErrorIs, ErrInvalidProof)
	_, err = p.CastVote(honest.commitment, honest.proof.NullifierHash.MathBigInt(), honest.proof)
	c.Assert(err, qt.IsNil)

	h.clock.Advance(86400 * time.Second)
	late := prepareBallot(c, h, pr, p, ids[1], 1)
	_, err = p.CastVote(late.commitment, late.proof.NullifierHash.MathBigInt(), late.proof)
	c.Assert(err, qt.ErrorIs, ErrTimeWindow)

	votes, err := p.EncryptedVotes()
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.DeepEquals, []common.Hash{first.commitment, honest.commitment})
}
