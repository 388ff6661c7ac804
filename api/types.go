package api

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/types"
)

// InfoResponse describes the node settings new polls are created with.
type InfoResponse struct {
	MerkleTreeDepth int            `json:"merkleTreeDepth"`
	VerifierID      types.HexBytes `json:"verifierId"`
	Implementation  string         `json:"implementation"`
	Implementations []string       `json:"implementations"`
	PollsAmount     uint64         `json:"pollsAmount"`
}

// CipherKeyResponse carries the secret members derive the vote cipher from.
type CipherKeyResponse struct {
	CipherKey string `json:"cipherKey"`
}

// DepthRequest is the body of PUT /config/depth.
type DepthRequest struct {
	MerkleTreeDepth int `json:"merkleTreeDepth"`
}

// ImplementationRequest is the body of PUT /config/implementation.
type ImplementationRequest struct {
	Implementation string `json:"implementation"`
}

// VerifyingKey is a serialized Groth16 verifying key for one tree depth.
type VerifyingKey struct {
	Depth int            `json:"merkleTreeDepth"`
	Key   types.HexBytes `json:"key"`
}

// VerifierRequest is the body of PUT /config/verifier.
type VerifierRequest struct {
	VerifyingKeys []VerifyingKey `json:"verifyingKeys"`
}

// CreatePollRequest is the body of POST /polls. Timestamps are unix seconds.
type CreatePollRequest struct {
	Name           string   `json:"name"`
	Options        []string `json:"options"`
	StartTimestamp int64    `json:"startTimestamp"`
	EndTimestamp   int64    `json:"endTimestamp"`
}

// PollsResponse is returned by GET /polls.
type PollsResponse struct {
	PollsAmount uint64 `json:"pollsAmount"`
}

// PollResponse describes a poll. Timestamps are unix seconds.
type PollResponse struct {
	ID             uint64        `json:"id"`
	Name           string        `json:"name"`
	Options        []string      `json:"options"`
	StartTimestamp int64         `json:"startTimestamp"`
	EndTimestamp   int64         `json:"endTimestamp"`
	Depth          int           `json:"merkleTreeDepth"`
	Implementation string        `json:"implementation"`
	Coordinator    string        `json:"coordinator"`
	CreatedAt      int64         `json:"createdAt"`
	Phase          string        `json:"phase"`
	Members        uint64        `json:"members"`
	Root           *types.BigInt `json:"merkleTreeRoot"`
	VoteCount      uint64        `json:"voteCount"`
	RevealCount    uint64        `json:"revealCount"`
}

func pollResponse(p *types.Poll, phase types.PollPhase) *PollResponse {
	return &PollResponse{
		ID:             p.ID,
		Name:           p.Name,
		Options:        p.Options,
		StartTimestamp: p.StartTime.Unix(),
		EndTimestamp:   p.EndTime.Unix(),
		Depth:          p.Depth,
		Implementation: p.Implementation,
		Coordinator:    p.Coordinator,
		CreatedAt:      p.CreatedAt.Unix(),
		Phase:          phase.String(),
		Members:        p.Members,
		Root:           p.Root,
		VoteCount:      p.VoteCount,
		RevealCount:    p.RevealCount,
	}
}

// MembersRequest is the body of POST /polls/{pollId}/members.
type MembersRequest struct {
	Commitments []*types.BigInt `json:"commitments"`
}

// Member is a registered commitment and the root right after it.
type Member struct {
	Index      int           `json:"index"`
	Commitment *types.BigInt `json:"commitment"`
	Root       *types.BigInt `json:"merkleTreeRoot"`
}

// MembersAddedResponse lists the members added by one request, in order.
type MembersAddedResponse struct {
	Members []Member `json:"members"`
}

// MembersResponse is returned by GET /polls/{pollId}/members. Provers
// rebuild the membership tree from Commitments.
type MembersResponse struct {
	Commitments []*types.BigInt `json:"commitments"`
	Root        *types.BigInt   `json:"merkleTreeRoot"`
	Depth       int             `json:"merkleTreeDepth"`
}

// VoteRequest is the body of POST /polls/{pollId}/votes.
type VoteRequest struct {
	VoteCommitment common.Hash   `json:"voteCommitment"`
	NullifierHash  *types.BigInt `json:"nullifierHash"`
	Proof          *prover.Proof `json:"proof"`
}

// VoteResponse is returned for an accepted vote.
type VoteResponse struct {
	Index          uint64      `json:"index"`
	VoteCommitment common.Hash `json:"voteCommitment"`
}

// VotesResponse lists the encrypted votes of a poll in acceptance order.
type VotesResponse struct {
	Votes   []common.Hash       `json:"votes"`
	Records []*types.VoteRecord `json:"records,omitempty"`
}

// RevealRequest is the body of POST /polls/{pollId}/reveals.
type RevealRequest struct {
	Ciphertext types.HexBytes `json:"ciphertext"`
}

// RevealResponse names the vote a ciphertext was matched to.
type RevealResponse struct {
	VoteCommitment common.Hash `json:"voteCommitment"`
}

// ResultsResponse is the tally of a closed poll.
type ResultsResponse struct {
	Options    []string `json:"options"`
	Counts     []uint64 `json:"counts"`
	Invalid    uint64   `json:"invalid"`
	Unrevealed uint64   `json:"unrevealed"`
}
