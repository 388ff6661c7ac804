// Package semaphore defines the membership circuit: knowledge of an identity
// whose commitment is a leaf under MerkleRoot, whose nullifier hash for
// ExternalNullifier is NullifierHash, bound to the public Signal.
package semaphore

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/gnark-crypto-primitives/hash/native/bn254/poseidon"
)

// Circuit is sized by the tree depth through the length of Siblings and
// PathBits. Build it with NewCircuit for compilation and NewAssignment for
// witnesses.
type Circuit struct {
	MerkleRoot        frontend.Variable `gnark:",public"`
	NullifierHash     frontend.Variable `gnark:",public"`
	ExternalNullifier frontend.Variable `gnark:",public"`
	Signal            frontend.Variable `gnark:",public"`

	Trapdoor  frontend.Variable
	Nullifier frontend.Variable
	Siblings  []frontend.Variable
	PathBits  []frontend.Variable
}

// NewCircuit returns an empty circuit for a tree of the given depth.
func NewCircuit(depth int) *Circuit {
	return &Circuit{
		Siblings: make([]frontend.Variable, depth),
		PathBits: make([]frontend.Variable, depth),
	}
}

func (c *Circuit) Define(api frontend.API) error {
	if len(c.Siblings) != len(c.PathBits) {
		return fmt.Errorf("siblings and path bits differ in length: %d != %d", len(c.Siblings), len(c.PathBits))
	}
	commitment, err := poseidon.Hash(api, c.Trapdoor, c.Nullifier)
	if err != nil {
		return fmt.Errorf("commitment: %w", err)
	}

	node := commitment
	for i, sibling := range c.Siblings {
		bit := c.PathBits[i]
		api.AssertIsBoolean(bit)
		left := api.Select(bit, sibling, node)
		right := api.Select(bit, node, sibling)
		if node, err = poseidon.Hash(api, left, right); err != nil {
			return fmt.Errorf("path level %d: %w", i, err)
		}
	}
	api.AssertIsEqual(node, c.MerkleRoot)

	nullifierHash, err := poseidon.Hash(api, c.ExternalNullifier, c.Nullifier)
	if err != nil {
		return fmt.Errorf("nullifier hash: %w", err)
	}
	api.AssertIsEqual(nullifierHash, c.NullifierHash)

	// the signal is otherwise unconstrained, squaring binds it to the proof
	api.Mul(c.Signal, c.Signal)
	return nil
}

// Inputs are the values of a witness.
type Inputs struct {
	MerkleRoot        *big.Int
	NullifierHash     *big.Int
	ExternalNullifier *big.Int
	Signal            *big.Int
	Trapdoor          *big.Int
	Nullifier         *big.Int
	Siblings          []*big.Int
	PathBits          []uint8
}

// NewAssignment turns inputs into a full witness assignment.
func NewAssignment(in *Inputs) *Circuit {
	c := NewCircuit(len(in.Siblings))
	c.MerkleRoot = in.MerkleRoot
	c.NullifierHash = in.NullifierHash
	c.ExternalNullifier = in.ExternalNullifier
	c.Signal = in.Signal
	c.Trapdoor = in.Trapdoor
	c.Nullifier = in.Nullifier
	for i := range in.Siblings {
		c.Siblings[i] = in.Siblings[i]
		c.PathBits[i] = in.PathBits[i]
	}
	return c
}

// NewPublicAssignment returns an assignment carrying only public values,
// used to build the public witness a verifier checks.
func NewPublicAssignment(depth int, root, nullifierHash, externalNullifier, signal *big.Int) *Circuit {
	c := NewCircuit(depth)
	c.MerkleRoot = root
	c.NullifierHash = nullifierHash
	c.ExternalNullifier = externalNullifier
	c.Signal = signal
	return c
}
