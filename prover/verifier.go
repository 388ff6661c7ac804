package prover

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/garagevoting/garage-node/circuits/semaphore"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/types"
	"github.com/garagevoting/garage-node/util"
)

// Verifier checks proofs against the verifying keys of a KeyRing.
type Verifier struct {
	keys *KeyRing
}

func NewVerifier(keys *KeyRing) *Verifier {
	return &Verifier{keys: keys}
}

// ID identifies the verifying key used for depth.
func (v *Verifier) ID(depth int) ([]byte, error) {
	return v.keys.VerifyingKeyID(depth)
}

// VerifyProof reports whether proof is a valid proof of its own public
// signals for a tree of depth. Malformed input yields false, never a panic.
func (v *Verifier) VerifyProof(proof *Proof, depth int) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnw("proof verification panicked", "recovered", fmt.Sprint(r))
			ok = false
		}
	}()
	if err := v.verify(proof, depth); err != nil {
		log.Debugw("proof rejected", "error", err.Error())
		return false
	}
	return true
}

func (v *Verifier) verify(proof *Proof, depth int) error {
	if proof == nil || len(proof.Proof) == 0 {
		return fmt.Errorf("empty proof")
	}
	if proof.Depth != depth {
		return fmt.Errorf("proof depth %d, want %d", proof.Depth, depth)
	}
	signals := []struct {
		name  string
		value *types.BigInt
	}{
		{"merkleTreeRoot", proof.MerkleRoot},
		{"nullifierHash", proof.NullifierHash},
		{"externalNullifier", proof.ExternalNullifier},
		{"signal", proof.Signal},
	}
	for _, s := range signals {
		if s.value == nil {
			return fmt.Errorf("missing public signal %s", s.name)
		}
		if !util.InField(s.value.MathBigInt()) {
			return fmt.Errorf("public signal %s outside the scalar field", s.name)
		}
	}
	keys, ok := v.keys.Get(depth)
	if !ok || keys.VerifyingKey == nil {
		return fmt.Errorf("no verifying key for depth %d", depth)
	}
	gproof := groth16.NewProof(ecc.BN254)
	if _, err := gproof.ReadFrom(bytes.NewReader(proof.Proof)); err != nil {
		return fmt.Errorf("decode proof: %w", err)
	}
	public := semaphore.NewPublicAssignment(depth,
		proof.MerkleRoot.MathBigInt(),
		proof.NullifierHash.MathBigInt(),
		proof.ExternalNullifier.MathBigInt(),
		proof.Signal.MathBigInt(),
	)
	witness, err := frontend.NewWitness(public, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness: %w", err)
	}
	return groth16.Verify(gproof, keys.VerifyingKey, witness)
}
