package storage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/garagevoting/garage-node/db"
	"github.com/garagevoting/garage-node/db/prefixeddb"
	"github.com/garagevoting/garage-node/types"
)

// AddLeaves appends leaves to the poll membership starting at the poll's
// current member count, records root as a root the tree has had and
// updates the poll record, all in one transaction.
func (s *Storage) AddLeaves(pollID uint64, leaves []*big.Int, root *big.Int) (*types.Poll, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("no leaves")
	}
	var updated *types.Poll
	err := s.commit(func(wtx db.WriteTx) error {
		p := &types.Poll{}
		if err := getArtifact(wtx, pollPrefix, pollKey(pollID), p); err != nil {
			return fmt.Errorf("poll %d: %w", pollID, err)
		}
		leafTx := prefixeddb.NewPrefixedWriteTx(wtx, leafPrefix)
		for i, leaf := range leaves {
			if err := leafTx.Set(indexKey(pollID, p.Members+uint64(i)), types.NewBigInt(leaf).Bytes32()); err != nil {
				return err
			}
		}
		size := p.Members + uint64(len(leaves))
		rootKey := hashKey(pollID, types.NewBigInt(root).Bytes32())
		if err := prefixeddb.NewPrefixedWriteTx(wtx, rootPrefix).Set(rootKey, pollKey(size)); err != nil {
			return err
		}
		var err error
		updated, err = updatePoll(wtx, pollID, func(p *types.Poll) {
			p.Members = size
			p.Root = types.NewBigInt(root)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add leaves: %w", err)
	}
	s.cache.Add(pollID, clonePoll(updated))
	return updated, nil
}

// Leaves returns the poll's member commitments in insertion order.
func (s *Storage) Leaves(pollID uint64) ([]*big.Int, error) {
	var leaves []*big.Int
	err := prefixeddb.NewPrefixedReader(s.db, leafPrefix).Iterate(pollKey(pollID), func(_, v []byte) bool {
		leaves = append(leaves, new(big.Int).SetBytes(v))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("iterate leaves: %w", err)
	}
	return leaves, nil
}

// RootSize returns the tree size at which root was the poll's root, or
// ErrNotFound if the poll never had that root.
func (s *Storage) RootSize(pollID uint64, root *big.Int) (uint64, error) {
	v, err := prefixeddb.NewPrefixedReader(s.db, rootPrefix).Get(hashKey(pollID, types.NewBigInt(root).Bytes32()))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return decodeIndex(v)
}
