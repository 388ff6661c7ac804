package prover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common"
	"github.com/garagevoting/garage-node/circuits/semaphore"
	"github.com/garagevoting/garage-node/group"
	"github.com/garagevoting/garage-node/identity"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/types"
)

// ErrProofGeneration is returned when a proof cannot be produced, either
// because the identity is not a member of the tree or because the proving
// keys of the tree depth are not loaded.
var ErrProofGeneration = errors.New("proof generation failed")

// CPUProver builds the witness and runs groth16.Prove.
func CPUProver(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, assignment frontend.Circuit) (groth16.Proof, error) {
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to create witness: %w", err)
	}
	return groth16.Prove(ccs, pk, witness)
}

// Prover generates membership proofs with the keys of a KeyRing.
type Prover struct {
	keys *KeyRing
}

func NewProver(keys *KeyRing) *Prover {
	return &Prover{keys: keys}
}

// GenerateProof proves that id's commitment is a leaf of tree, scoped to
// pollID and bound to voteCommitment.
func (p *Prover) GenerateProof(ctx context.Context, id *identity.Identity, tree *group.Group,
	pollID uint64, voteCommitment common.Hash,
) (*Proof, error) {
	keys, ok := p.keys.Get(tree.Depth())
	if !ok || keys.ProvingKey == nil || keys.CCS == nil {
		return nil, fmt.Errorf("%w: no proving key for depth %d", ErrProofGeneration, tree.Depth())
	}
	index, ok := tree.IndexOf(id.Commitment())
	if !ok {
		return nil, fmt.Errorf("%w: identity is not a member of poll %d", ErrProofGeneration, pollID)
	}
	path, err := tree.Proof(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofGeneration, err)
	}
	scope := ExternalNullifier(pollID)
	in := &semaphore.Inputs{
		MerkleRoot:        path.Root,
		NullifierHash:     id.NullifierHash(scope),
		ExternalNullifier: scope,
		Signal:            SignalFromVoteCommitment(voteCommitment),
		Trapdoor:          id.Trapdoor(),
		Nullifier:         id.Nullifier(),
		Siblings:          path.Siblings,
		PathBits:          path.PathBits,
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	proof, err := CPUProver(keys.CCS, keys.ProvingKey, semaphore.NewAssignment(in))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProofGeneration, err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize proof: %w", ErrProofGeneration, err)
	}
	log.Debugw("membership proof generated", "pollID", pollID, "depth", tree.Depth(), "took", time.Since(start).String())

	return &Proof{
		MerkleRoot:        types.NewBigInt(in.MerkleRoot),
		NullifierHash:     types.NewBigInt(in.NullifierHash),
		ExternalNullifier: types.NewBigInt(in.ExternalNullifier),
		Signal:            types.NewBigInt(in.Signal),
		Depth:             tree.Depth(),
		Proof:             buf.Bytes(),
	}, nil
}
