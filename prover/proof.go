// Package prover generates and verifies membership proofs. Generation runs
// on the member's side and never touches poll state; verification is a pure
// check of a proof against its own public signals.
package prover

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/garagevoting/garage-node/types"
)

// Proof is a Groth16 proof with the public signals it was generated for.
type Proof struct {
	MerkleRoot        *types.BigInt  `json:"merkleTreeRoot"`
	NullifierHash     *types.BigInt  `json:"nullifierHash"`
	ExternalNullifier *types.BigInt  `json:"externalNullifier"`
	Signal            *types.BigInt  `json:"signal"`
	Depth             int            `json:"merkleTreeDepth"`
	Proof             types.HexBytes `json:"proof"`
}

// ExternalNullifier is the proof scope of a poll.
func ExternalNullifier(pollID uint64) *big.Int {
	return new(big.Int).SetUint64(pollID)
}

// SignalFromVoteCommitment maps a vote commitment into the scalar field as
// keccak256(commitment) >> 8. Every bit of the commitment reaches the
// signal, so a proof binds exactly one commitment.
func SignalFromVoteCommitment(commitment common.Hash) *big.Int {
	v := new(big.Int).SetBytes(crypto.Keccak256(commitment[:]))
	return v.Rsh(v, 8)
}
