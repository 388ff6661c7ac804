package storage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/garagevoting/garage-node/db"
	"github.com/garagevoting/garage-node/db/prefixeddb"
	"github.com/garagevoting/garage-node/types"
)

// CommitVote appends vote to the poll and marks its nullifier hash as
// spent in a single transaction. It fails with ErrNullifierExists, and
// writes nothing, if the nullifier was already spent. The vote index is
// assigned here.
func (s *Storage) CommitVote(pollID uint64, vote *types.VoteRecord) (*types.Poll, error) {
	if vote == nil || vote.NullifierHash == nil {
		return nil, fmt.Errorf("incomplete vote record")
	}
	var updated *types.Poll
	err := s.commit(func(wtx db.WriteTx) error {
		nullifiers := prefixeddb.NewPrefixedWriteTx(wtx, nullifierPrefix)
		nKey := hashKey(pollID, vote.NullifierHash.Bytes32())
		if _, err := nullifiers.Get(nKey); err == nil {
			return ErrNullifierExists
		} else if !errors.Is(err, db.ErrKeyNotFound) {
			return err
		}
		var err error
		updated, err = updatePoll(wtx, pollID, func(p *types.Poll) {
			vote.Index = p.VoteCount
			p.VoteCount++
		})
		if err != nil {
			return err
		}
		if err := nullifiers.Set(nKey, pollKey(vote.Index)); err != nil {
			return err
		}
		return setArtifact(wtx, votePrefix, indexKey(pollID, vote.Index), vote)
	})
	if err != nil {
		if errors.Is(err, ErrNullifierExists) {
			return nil, err
		}
		return nil, fmt.Errorf("commit vote: %w", err)
	}
	s.cache.Add(pollID, clonePoll(updated))
	return updated, nil
}

// IsNullifierSpent reports whether nullifierHash was used in the poll.
func (s *Storage) IsNullifierSpent(pollID uint64, nullifierHash *big.Int) (bool, error) {
	_, err := prefixeddb.NewPrefixedReader(s.db, nullifierPrefix).Get(hashKey(pollID, types.NewBigInt(nullifierHash).Bytes32()))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check nullifier: %w", err)
	}
	return true, nil
}

// Votes returns the poll's accepted votes in acceptance order.
func (s *Storage) Votes(pollID uint64) ([]*types.VoteRecord, error) {
	var (
		votes   []*types.VoteRecord
		iterErr error
	)
	err := prefixeddb.NewPrefixedReader(s.db, votePrefix).Iterate(pollKey(pollID), func(_, v []byte) bool {
		vote := &types.VoteRecord{}
		if iterErr = DecodeArtifact(v, vote); iterErr != nil {
			return false
		}
		votes = append(votes, vote)
		return true
	})
	if err == nil {
		err = iterErr
	}
	if err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}

// HasVoteCommitment reports whether commitment belongs to an accepted vote.
func (s *Storage) HasVoteCommitment(pollID uint64, commitment common.Hash) (bool, error) {
	votes, err := s.Votes(pollID)
	if err != nil {
		return false, err
	}
	for _, v := range votes {
		if v.VoteCommitment == commitment {
			return true, nil
		}
	}
	return false, nil
}

// SetReveal stores the ciphertext behind an accepted vote commitment. A
// commitment is revealed at most once; ErrKeyAlreadyExists otherwise.
func (s *Storage) SetReveal(pollID uint64, commitment common.Hash, ciphertext []byte) (*types.Poll, error) {
	var updated *types.Poll
	err := s.commit(func(wtx db.WriteTx) error {
		reveals := prefixeddb.NewPrefixedWriteTx(wtx, revealPrefix)
		key := hashKey(pollID, commitment[:])
		if _, err := reveals.Get(key); err == nil {
			return ErrKeyAlreadyExists
		} else if !errors.Is(err, db.ErrKeyNotFound) {
			return err
		}
		if err := reveals.Set(key, ciphertext); err != nil {
			return err
		}
		var err error
		updated, err = updatePoll(wtx, pollID, func(p *types.Poll) { p.RevealCount++ })
		return err
	})
	if err != nil {
		if errors.Is(err, ErrKeyAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("store reveal: %w", err)
	}
	s.cache.Add(pollID, clonePoll(updated))
	return updated, nil
}

// Reveals returns the revealed ciphertexts of a poll keyed by commitment.
func (s *Storage) Reveals(pollID uint64) (map[common.Hash][]byte, error) {
	out := make(map[common.Hash][]byte)
	prefix := pollKey(pollID)
	err := prefixeddb.NewPrefixedReader(s.db, revealPrefix).Iterate(prefix, func(k, v []byte) bool {
		out[common.BytesToHash(k[len(prefix):])] = append([]byte(nil), v...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("iterate reveals: %w", err)
	}
	return out, nil
}
