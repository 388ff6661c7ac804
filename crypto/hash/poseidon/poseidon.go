// Package poseidon is the native Poseidon hash over the BN254 scalar field.
// It matches the in-circuit gadget of gnark-crypto-primitives, so commitments,
// tree nodes and nullifier hashes computed here verify inside the circuit.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Hash hashes between 1 and 16 field elements.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 || len(inputs) > 16 {
		return nil, fmt.Errorf("poseidon: %d inputs, want 1 to 16", len(inputs))
	}
	return poseidon.Hash(inputs)
}

// Hash2 hashes a pair of elements already known to be in the field. It
// panics otherwise.
func Hash2(a, b *big.Int) *big.Int {
	h, err := poseidon.Hash([]*big.Int{a, b})
	if err != nil {
		panic(fmt.Sprintf("poseidon: %v", err))
	}
	return h
}
