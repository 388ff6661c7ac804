package poll

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/garagevoting/garage-node/events"
	"github.com/garagevoting/garage-node/types"
)

const (
	EventPollCreated               events.Type = "poll.created"
	EventMemberAdded               events.Type = "poll.member_added"
	EventVoteCast                  events.Type = "poll.vote_cast"
	EventVoteRevealed              events.Type = "poll.vote_revealed"
	EventPollPhaseChanged          events.Type = "poll.phase_changed"
	EventMerkleTreeDepthChanged    events.Type = "config.merkle_tree_depth_changed"
	EventVerifierChanged           events.Type = "config.verifier_changed"
	EventPollImplementationChanged events.Type = "config.poll_implementation_changed"
)

type PollCreated struct {
	PollID         uint64    `json:"pollId"`
	Name           string    `json:"name"`
	Coordinator    string    `json:"coordinator"`
	StartTime      time.Time `json:"startTimestamp"`
	EndTime        time.Time `json:"endTimestamp"`
	Depth          int       `json:"merkleTreeDepth"`
	Implementation string    `json:"implementation"`
}

// MemberAdded carries the root of the tree right after the member's leaf
// was appended.
type MemberAdded struct {
	PollID     uint64   `json:"pollId"`
	Index      int      `json:"index"`
	Commitment *big.Int `json:"identityCommitment"`
	Root       *big.Int `json:"merkleTreeRoot"`
}

type VoteCast struct {
	PollID         uint64      `json:"pollId"`
	Index          uint64      `json:"index"`
	VoteCommitment common.Hash `json:"voteCommitment"`
	NullifierHash  *big.Int    `json:"nullifierHash"`
}

type VoteRevealed struct {
	PollID         uint64      `json:"pollId"`
	VoteCommitment common.Hash `json:"voteCommitment"`
}

type PollPhaseChanged struct {
	PollID uint64          `json:"pollId"`
	Old    types.PollPhase `json:"old"`
	New    types.PollPhase `json:"new"`
}

type MerkleTreeDepthChanged struct {
	Old int `json:"old"`
	New int `json:"new"`
}

type VerifierChanged struct {
	Old types.HexBytes `json:"old"`
	New types.HexBytes `json:"new"`
}

type PollImplementationChanged struct {
	Old string `json:"old"`
	New string `json:"new"`
}

func (c *Controller) publish(typ events.Type, data any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{Type: typ, Timestamp: c.now(), Data: data})
}
