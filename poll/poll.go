package poll

import (
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/types"
)

// Poll is the handle of one poll. The fields fixed at creation are held by
// the handle; everything else is read from the controller on each call.
type Poll struct {
	c      *Controller
	record *types.Poll
}

func newPollHandle(c *Controller, record *types.Poll) *Poll {
	return &Poll{c: c, record: record}
}

func (p *Poll) ID() uint64 { return p.record.ID }

func (p *Poll) Name() string { return p.record.Name }

// Options returns a copy of the option labels.
func (p *Poll) Options() []string { return slices.Clone(p.record.Options) }

func (p *Poll) StartTimestamp() time.Time { return p.record.StartTime }

func (p *Poll) EndTimestamp() time.Time { return p.record.EndTime }

func (p *Poll) Depth() int { return p.record.Depth }

func (p *Poll) Implementation() string { return p.record.Implementation }

// Record returns the current stored record of the poll.
func (p *Poll) Record() (*types.Poll, error) {
	return p.c.record(p.record.ID)
}

// Phase returns the current phase.
func (p *Poll) Phase() (types.PollPhase, error) {
	return p.c.Phase(p.record.ID)
}

func (p *Poll) Root() (*big.Int, error) {
	return p.c.Root(p.record.ID)
}

func (p *Poll) Members() ([]*big.Int, error) {
	return p.c.Members(p.record.ID)
}

func (p *Poll) CastVote(voteCommitment common.Hash, nullifierHash *big.Int, proof *prover.Proof) (*types.VoteRecord, error) {
	return p.c.CastVote(p.record.ID, voteCommitment, nullifierHash, proof)
}

func (p *Poll) EncryptedVotes() ([]common.Hash, error) {
	return p.c.EncryptedVotes(p.record.ID)
}
