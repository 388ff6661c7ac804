package storage

import (
	"errors"
	"fmt"

	"github.com/garagevoting/garage-node/db"
	"github.com/garagevoting/garage-node/types"
)

// NewPoll assigns the next poll id to p and stores it. Ids start at zero
// and are never reused.
func (s *Storage) NewPoll(p *types.Poll) (uint64, error) {
	if p == nil {
		return 0, fmt.Errorf("nil poll")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var id uint64
	err := s.commit(func(wtx db.WriteTx) error {
		next, err := pollsAmount(wtx)
		if err != nil {
			return err
		}
		id = next
		p.ID = id
		if err := setArtifact(wtx, pollPrefix, pollKey(id), p); err != nil {
			return err
		}
		return wtx.Set(pollCounterKey, pollKey(id+1))
	})
	if err != nil {
		return 0, fmt.Errorf("store poll: %w", err)
	}
	s.cache.Add(id, clonePoll(p))
	return id, nil
}

// Poll returns the poll record, or ErrNotFound.
func (s *Storage) Poll(pollID uint64) (*types.Poll, error) {
	if p, ok := s.cache.Get(pollID); ok {
		return clonePoll(p), nil
	}
	p := &types.Poll{}
	if err := getArtifact(s.db, pollPrefix, pollKey(pollID), p); err != nil {
		return nil, err
	}
	s.cache.Add(pollID, clonePoll(p))
	return p, nil
}

// PollsAmount returns the number of polls ever created.
func (s *Storage) PollsAmount() (uint64, error) {
	return pollsAmount(s.db)
}

func pollsAmount(r db.Reader) (uint64, error) {
	v, err := r.Get(pollCounterKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return decodeIndex(v)
}

// updatePoll applies fn to the stored poll inside wtx. The cache is
// refreshed by the caller once wtx commits.
func updatePoll(wtx db.WriteTx, pollID uint64, fn func(*types.Poll)) (*types.Poll, error) {
	p := &types.Poll{}
	if err := getArtifact(wtx, pollPrefix, pollKey(pollID), p); err != nil {
		return nil, fmt.Errorf("poll %d: %w", pollID, err)
	}
	fn(p)
	if err := setArtifact(wtx, pollPrefix, pollKey(pollID), p); err != nil {
		return nil, err
	}
	return p, nil
}

func clonePoll(p *types.Poll) *types.Poll {
	cp := *p
	cp.Options = append([]string(nil), p.Options...)
	if p.Root != nil {
		cp.Root = types.NewBigInt(p.Root.MathBigInt())
	}
	return &cp
}
