package poll

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/storage"
	"github.com/garagevoting/garage-node/types"
)

// CastVote accepts a vote if, in this order: the poll is inside its time
// window, the nullifier hash is unused, and the proof verifies for the
// poll's current root, scope and vote commitment. The vote and its
// nullifier are then stored together. Nothing is written on rejection.
func (c *Controller) CastVote(pollID uint64, voteCommitment common.Hash, nullifierHash *big.Int,
	proof *prover.Proof,
) (*types.VoteRecord, error) {
	vote, err := c.castVote(pollID, voteCommitment, nullifierHash, proof)
	if err != nil {
		if c.metrics != nil {
			c.metrics.votesRejected.WithLabelValues(rejectReason(err)).Inc()
		}
		log.Debugw("vote rejected", "pollId", pollID, "reason", rejectReason(err), "error", err.Error())
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.votesAccepted.Inc()
	}
	log.Infow("vote accepted", "pollId", pollID, "index", vote.Index, "voteCommitment", vote.VoteCommitment.Hex())
	c.publish(EventVoteCast, VoteCast{
		PollID:         pollID,
		Index:          vote.Index,
		VoteCommitment: vote.VoteCommitment,
		NullifierHash:  vote.NullifierHash.MathBigInt(),
	})
	return vote, nil
}

func (c *Controller) castVote(pollID uint64, voteCommitment common.Hash, nullifierHash *big.Int,
	proof *prover.Proof,
) (*types.VoteRecord, error) {
	if nullifierHash == nil {
		return nil, fmt.Errorf("%w: missing nullifier hash", ErrInvalidProof)
	}
	l := c.lock(pollID)
	l.Lock()
	defer l.Unlock()

	record, err := c.record(pollID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if now.Before(record.StartTime) || !now.Before(record.EndTime) {
		return nil, fmt.Errorf("%w: now %s, window [%s, %s)", ErrTimeWindow, now.UTC().Format(time.RFC3339),
			record.StartTime.Format(time.RFC3339), record.EndTime.Format(time.RFC3339))
	}
	spent, err := c.storage.IsNullifierSpent(pollID, nullifierHash)
	if err != nil {
		return nil, err
	}
	if spent {
		return nil, ErrNullifierReused
	}
	if err := c.checkProof(record, voteCommitment, nullifierHash, proof); err != nil {
		return nil, err
	}

	vote := &types.VoteRecord{
		VoteCommitment: voteCommitment,
		NullifierHash:  types.NewBigInt(nullifierHash),
		MerkleRoot:     proof.MerkleRoot,
		Timestamp:      now.Truncate(time.Second).UTC(),
	}
	if _, err := c.storage.CommitVote(pollID, vote); err != nil {
		if errors.Is(err, storage.ErrNullifierExists) {
			return nil, ErrNullifierReused
		}
		return nil, err
	}
	return vote, nil
}

// checkProof matches the proof's public signals against the poll and the
// submitted vote, then verifies it.
func (c *Controller) checkProof(record *types.Poll, voteCommitment common.Hash, nullifierHash *big.Int,
	proof *prover.Proof,
) error {
	if proof == nil || proof.MerkleRoot == nil || proof.NullifierHash == nil ||
		proof.ExternalNullifier == nil || proof.Signal == nil {
		return fmt.Errorf("%w: incomplete public signals", ErrInvalidProof)
	}
	if proof.Depth != record.Depth {
		return fmt.Errorf("%w: proof depth %d, poll depth %d", ErrInvalidProof, proof.Depth, record.Depth)
	}
	if !proof.MerkleRoot.Equal(record.Root) {
		if _, err := c.storage.RootSize(record.ID, proof.MerkleRoot.MathBigInt()); err == nil {
			return ErrStaleRoot
		}
		return fmt.Errorf("%w: unknown merkle tree root", ErrInvalidProof)
	}
	if proof.ExternalNullifier.MathBigInt().Cmp(prover.ExternalNullifier(record.ID)) != 0 {
		return fmt.Errorf("%w: proof is scoped to another poll", ErrInvalidProof)
	}
	if proof.NullifierHash.MathBigInt().Cmp(nullifierHash) != 0 {
		return fmt.Errorf("%w: nullifier hash does not match the proof", ErrInvalidProof)
	}
	if proof.Signal.MathBigInt().Cmp(prover.SignalFromVoteCommitment(voteCommitment)) != 0 {
		return fmt.Errorf("%w: signal does not match the vote commitment", ErrInvalidProof)
	}
	c.settingsLock.RLock()
	verifier := c.verifier
	c.settingsLock.RUnlock()
	if !verifier.VerifyProof(proof, record.Depth) {
		return fmt.Errorf("%w: verification failed", ErrInvalidProof)
	}
	return nil
}

// EncryptedVotes returns the accepted vote commitments in acceptance order.
func (c *Controller) EncryptedVotes(pollID uint64) ([]common.Hash, error) {
	votes, err := c.Votes(pollID)
	if err != nil {
		return nil, err
	}
	out := make([]common.Hash, len(votes))
	for i, v := range votes {
		out[i] = v.VoteCommitment
	}
	return out, nil
}

// Votes returns the accepted vote records in acceptance order.
func (c *Controller) Votes(pollID uint64) ([]*types.VoteRecord, error) {
	l := c.lock(pollID)
	l.RLock()
	defer l.RUnlock()
	if _, err := c.record(pollID); err != nil {
		return nil, err
	}
	return c.storage.Votes(pollID)
}

// RevealVote publishes the ciphertext behind an accepted vote commitment
// once the poll is closed.
func (c *Controller) RevealVote(pollID uint64, ciphertext []byte) (common.Hash, error) {
	commitment := ballot.CalculateVoteHash(ciphertext)
	l := c.lock(pollID)
	l.Lock()
	defer l.Unlock()

	record, err := c.record(pollID)
	if err != nil {
		return common.Hash{}, err
	}
	if record.PhaseAt(c.now()) != types.PollPhaseClosed {
		return common.Hash{}, ErrPollNotClosed
	}
	ok, err := c.storage.HasVoteCommitment(pollID, commitment)
	if err != nil {
		return common.Hash{}, err
	}
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownVote, commitment.Hex())
	}
	if _, err := c.storage.SetReveal(pollID, commitment, ciphertext); err != nil {
		if errors.Is(err, storage.ErrKeyAlreadyExists) {
			return common.Hash{}, ErrAlreadyRevealed
		}
		return common.Hash{}, err
	}
	c.publish(EventVoteRevealed, VoteRevealed{PollID: pollID, VoteCommitment: commitment})
	return commitment, nil
}

// Results tallies the revealed votes of a closed poll.
func (c *Controller) Results(actor access.Actor, pollID uint64) (*ballot.Result, error) {
	if err := c.requireAdmin(actor, "results"); err != nil {
		return nil, err
	}
	if c.cipher == nil {
		return nil, ErrNoCipher
	}
	l := c.lock(pollID)
	l.RLock()
	defer l.RUnlock()

	record, err := c.record(pollID)
	if err != nil {
		return nil, err
	}
	if record.PhaseAt(c.now()) != types.PollPhaseClosed {
		return nil, ErrPollNotClosed
	}
	votes, err := c.storage.Votes(pollID)
	if err != nil {
		return nil, err
	}
	reveals, err := c.storage.Reveals(pollID)
	if err != nil {
		return nil, err
	}
	commitments := make([]common.Hash, len(votes))
	for i, v := range votes {
		commitments[i] = v.VoteCommitment
	}
	return c.cipher.Tally(len(record.Options), commitments, reveals), nil
}
