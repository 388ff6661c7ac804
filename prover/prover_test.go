package prover_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
	"github.com/garagevoting/garage-node/group"
	"github.com/garagevoting/garage-node/identity"
	"github.com/garagevoting/garage-node/internal/testutil"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/types"
	"github.com/garagevoting/garage-node/util"
)

const pollID = 7

type fixture struct {
	ring     *prover.KeyRing
	prover   *prover.Prover
	verifier *prover.Verifier
	members  []*identity.Identity
	tree     *group.Group
}

func newFixture(c *qt.C) *fixture {
	ring := prover.NewKeyRing(testutil.Keys(c, group.DefaultDepth))
	members := testutil.Identities(c, 3)
	tree, err := group.New(pollID, group.DefaultDepth)
	c.Assert(err, qt.IsNil)
	for _, m := range members {
		_, err := tree.AddMember(m.Commitment())
		c.Assert(err, qt.IsNil)
	}
	return &fixture{
		ring:     ring,
		prover:   prover.NewProver(ring),
		verifier: prover.NewVerifier(ring),
		members:  members,
		tree:     tree,
	}
}

func clone(p *prover.Proof) *prover.Proof {
	cp := *p
	cp.Proof = bytes.Clone(p.Proof)
	return &cp
}

func TestGenerateAndVerify(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	vote := crypto.Keccak256Hash([]byte("0xciphertext"))
	proof, err := f.prover.GenerateProof(context.Background(), f.members[1], f.tree, pollID, vote)
	c.Assert(err, qt.IsNil)

	c.Assert(proof.Depth, qt.Equals, group.DefaultDepth)
	c.Assert(proof.MerkleRoot.MathBigInt().Cmp(f.tree.Root()), qt.Equals, 0)
	c.Assert(proof.ExternalNullifier.MathBigInt().Uint64(), qt.Equals, uint64(pollID))
	c.Assert(proof.Signal.MathBigInt().Cmp(prover.SignalFromVoteCommitment(vote)), qt.Equals, 0)
	c.Assert(proof.NullifierHash.MathBigInt().Cmp(f.members[1].NullifierHash(big.NewInt(pollID))), qt.Equals, 0)

	c.Assert(f.verifier.VerifyProof(proof, group.DefaultDepth), qt.IsTrue)

	c.Run("tampered public signals", func(c *qt.C) {
		for name, mutate := range map[string]func(p *prover.Proof){
			"signal":            func(p *prover.Proof) { p.Signal = types.NewInt(1) },
			"nullifier hash":    func(p *prover.Proof) { p.NullifierHash = types.NewInt(2) },
			"root":              func(p *prover.Proof) { p.MerkleRoot = types.NewInt(3) },
			"external nullifer": func(p *prover.Proof) { p.ExternalNullifier = types.NewInt(pollID + 1) },
			"out of field":      func(p *prover.Proof) { p.Signal = types.NewBigInt(util.FieldModulus) },
			"missing signal":    func(p *prover.Proof) { p.Signal = nil },
		} {
			p := clone(proof)
			mutate(p)
			c.Assert(f.verifier.VerifyProof(p, group.DefaultDepth), qt.IsFalse, qt.Commentf(name))
		}
	})

	c.Run("tampered proof bytes", func(c *qt.C) {
		p := clone(proof)
		p.Proof[len(p.Proof)/2] ^= 0x01
		c.Assert(f.verifier.VerifyProof(p, group.DefaultDepth), qt.IsFalse)

		p = clone(proof)
		p.Proof = util.RandomBytes(len(proof.Proof))
		c.Assert(f.verifier.VerifyProof(p, group.DefaultDepth), qt.IsFalse)

		p = clone(proof)
		p.Proof = []byte{0x01, 0x02}
		c.Assert(f.verifier.VerifyProof(p, group.DefaultDepth), qt.IsFalse)
	})

	c.Run("wrong depth", func(c *qt.C) {
		c.Assert(f.verifier.VerifyProof(proof, 16), qt.IsFalse)
	})

	c.Assert(f.verifier.VerifyProof(nil, group.DefaultDepth), qt.IsFalse)
}

func TestGenerateProofErrors(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	outsider := testutil.Identities(c, 1)[0]
	_, err := f.prover.GenerateProof(context.Background(), outsider, f.tree, pollID, common.Hash{})
	c.Assert(err, qt.ErrorIs, prover.ErrProofGeneration)

	small, err := group.New(pollID, 4)
	c.Assert(err, qt.IsNil)
	_, err = small.AddMember(f.members[0].Commitment())
	c.Assert(err, qt.IsNil)
	_, err = f.prover.GenerateProof(context.Background(), f.members[0], small, pollID, common.Hash{})
	c.Assert(err, qt.ErrorIs, prover.ErrProofGeneration)
}

func TestPool(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	pool := prover.NewPool(f.prover, 2)
	pool.Start(context.Background())

	ids := make([]string, len(f.members))
	for i, m := range f.members {
		id, err := pool.Submit(context.Background(), prover.Request{
			Identity:       m,
			Tree:           f.tree,
			PollID:         pollID,
			VoteCommitment: crypto.Keccak256Hash([]byte{byte(i)}),
		})
		c.Assert(err, qt.IsNil)
		ids[i] = id
	}
	// a registration after submission does not affect queued jobs
	_, err := f.tree.AddMember(big.NewInt(99))
	c.Assert(err, qt.IsNil)

	nullifiers := map[string]bool{}
	for _, id := range ids {
		proof, err := pool.Wait(context.Background(), id)
		c.Assert(err, qt.IsNil)
		c.Assert(f.verifier.VerifyProof(proof, group.DefaultDepth), qt.IsTrue)
		nullifiers[proof.NullifierHash.String()] = true
	}
	c.Assert(nullifiers, qt.HasLen, 3)

	_, err = pool.Wait(context.Background(), ids[0])
	c.Assert(err, qt.ErrorIs, prover.ErrUnknownJob)

	pool.Stop()
	_, err = pool.Submit(context.Background(), prover.Request{Identity: f.members[0], Tree: f.tree})
	c.Assert(err, qt.ErrorIs, prover.ErrPoolStopped)
}

func TestGenerateProofs(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	reqs := make([]prover.Request, len(f.members))
	for i, m := range f.members {
		reqs[i] = prover.Request{Identity: m, Tree: f.tree, PollID: pollID, VoteCommitment: crypto.Keccak256Hash([]byte{byte(i)})}
	}
	proofs, err := prover.GenerateProofs(context.Background(), f.prover, reqs, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(proofs, qt.HasLen, 3)
	for i, p := range proofs {
		c.Assert(p.NullifierHash.MathBigInt().Cmp(f.members[i].NullifierHash(big.NewInt(pollID))), qt.Equals, 0)
	}

	reqs[1].Identity = testutil.Identities(c, 1)[0]
	_, err = prover.GenerateProofs(context.Background(), f.prover, reqs, 2)
	c.Assert(err, qt.ErrorIs, prover.ErrProofGeneration)
}

func TestSignalFromVoteCommitment(t *testing.T) {
	c := qt.New(t)
	var full common.Hash
	for i := range full {
		full[i] = 0xff
	}
	c.Assert(util.InField(prover.SignalFromVoteCommitment(full)), qt.IsTrue)
	c.Assert(util.InField(prover.SignalFromVoteCommitment(common.Hash{})), qt.IsTrue)

	// each byte of the commitment changes the signal, the last one included
	base := prover.SignalFromVoteCommitment(full)
	c.Assert(prover.SignalFromVoteCommitment(full).Cmp(base), qt.Equals, 0)
	for i := range full {
		flipped := full
		flipped[i] ^= 0x01
		c.Assert(prover.SignalFromVoteCommitment(flipped).Cmp(base), qt.Not(qt.Equals), 0,
			qt.Commentf("byte %d", i))
	}
}
