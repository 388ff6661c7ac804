package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PollPhase is the lifecycle phase of a poll, derived from its window, its
// member count and the current time.
type PollPhase uint8

const (
	PollPhaseCreated     = PollPhase(iota) // No members yet, voting not started
	PollPhaseRegistering                   // Members registered, voting not started
	PollPhaseOpen                          // Inside [start, end)
	PollPhaseClosed                        // At or after end

	PollPhaseCreatedName     = "created"
	PollPhaseRegisteringName = "registering"
	PollPhaseOpenName        = "open"
	PollPhaseClosedName      = "closed"
)

func (p PollPhase) String() string {
	switch p {
	case PollPhaseCreated:
		return PollPhaseCreatedName
	case PollPhaseRegistering:
		return PollPhaseRegisteringName
	case PollPhaseOpen:
		return PollPhaseOpenName
	case PollPhaseClosed:
		return PollPhaseClosedName
	default:
		return "unknown"
	}
}

func (p PollPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Poll is the stored record of a poll. Name, Options, StartTime, EndTime,
// Depth and Implementation are fixed at creation.
type Poll struct {
	ID             uint64    `json:"id"                 cbor:"0,keyasint"`
	Name           string    `json:"name"               cbor:"1,keyasint,omitempty"`
	Options        []string  `json:"options"            cbor:"2,keyasint,omitempty"`
	StartTime      time.Time `json:"startTimestamp"     cbor:"3,keyasint,omitempty"`
	EndTime        time.Time `json:"endTimestamp"       cbor:"4,keyasint,omitempty"`
	Depth          int       `json:"merkleTreeDepth"    cbor:"5,keyasint,omitempty"`
	Implementation string    `json:"implementation"     cbor:"6,keyasint,omitempty"`
	Coordinator    string    `json:"coordinator"        cbor:"7,keyasint,omitempty"`
	CreatedAt      time.Time `json:"createdAt"          cbor:"8,keyasint,omitempty"`
	Members        uint64    `json:"members"            cbor:"9,keyasint,omitempty"`
	Root           *BigInt   `json:"merkleTreeRoot"     cbor:"10,keyasint,omitempty"`
	VoteCount      uint64    `json:"voteCount"          cbor:"11,keyasint,omitempty"`
	RevealCount    uint64    `json:"revealCount"        cbor:"12,keyasint,omitempty"`
}

// PhaseAt returns the phase of the poll at now.
func (p *Poll) PhaseAt(now time.Time) PollPhase {
	switch {
	case !now.Before(p.EndTime):
		return PollPhaseClosed
	case !now.Before(p.StartTime):
		return PollPhaseOpen
	case p.Members > 0:
		return PollPhaseRegistering
	default:
		return PollPhaseCreated
	}
}

// VoteRecord is an accepted vote. It is never mutated once stored.
type VoteRecord struct {
	Index          uint64      `json:"index"          cbor:"0,keyasint"`
	VoteCommitment common.Hash `json:"voteCommitment" cbor:"1,keyasint"`
	NullifierHash  *BigInt     `json:"nullifierHash"  cbor:"2,keyasint"`
	MerkleRoot     *BigInt     `json:"merkleTreeRoot" cbor:"3,keyasint,omitempty"`
	Timestamp      time.Time   `json:"timestamp"      cbor:"4,keyasint,omitempty"`
}

// Settings are the node wide protocol parameters changed by the
// configuration operations. They apply to polls created afterwards.
type Settings struct {
	MerkleTreeDepth int      `json:"merkleTreeDepth" cbor:"0,keyasint"`
	VerifierID      HexBytes `json:"verifier"        cbor:"1,keyasint,omitempty"`
	Implementation  string   `json:"implementation"  cbor:"2,keyasint,omitempty"`
}
