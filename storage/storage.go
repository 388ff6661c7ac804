/*
Package storage persists poll state for the garage node.

# Storage Organization

The storage uses a key-value database with prefixed namespaces. Poll ids are
encoded as 8 byte big-endian integers so that iteration follows creation
order.

## Polls
  - p/  : pollID → Poll record (name, options, window, member and vote counts)
  - pc  : poll counter, the next poll id

## Membership
  - l/  : pollID + leafIndex → commitment (32 bytes)
  - r/  : pollID + root → tree size when the root was current

## Votes
  - v/  : pollID + voteIndex → VoteRecord
  - n/  : pollID + nullifierHash → voteIndex
  - rv/ : pollID + voteCommitment → revealed ciphertext

## Node
  - cfg : Settings (tree depth, verifier id, poll implementation)
  - ck  : vote cipher secret
*/
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/garagevoting/garage-node/db"
	"github.com/garagevoting/garage-node/db/prefixeddb"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/types"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNullifierExists  = errors.New("nullifier already spent")

	// Prefixes
	pollPrefix      = []byte("p/")
	leafPrefix      = []byte("l/")
	rootPrefix      = []byte("r/")
	votePrefix      = []byte("v/")
	nullifierPrefix = []byte("n/")
	revealPrefix    = []byte("rv/")

	pollCounterKey  = []byte("pc")
	settingsKey     = []byte("cfg")
	cipherSecretKey = []byte("ck")
)

const cacheSize = 1000

// Storage is the persistent poll state. Writers to the same poll must be
// serialized by the caller; Storage only serializes the node wide keys.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex // poll counter, settings and cipher secret
	cache      *lru.Cache[uint64, *types.Poll]
}

// New creates a new Storage on database.
func New(database db.Database) *Storage {
	cache, err := lru.New[uint64, *types.Poll](cacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{db: database, cache: cache}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err.Error())
	}
}

func pollKey(pollID uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, pollID)
}

func indexKey(pollID, index uint64) []byte {
	return binary.BigEndian.AppendUint64(pollKey(pollID), index)
}

func hashKey(pollID uint64, h []byte) []byte {
	return append(pollKey(pollID), h...)
}

func decodeIndex(v []byte) (uint64, error) {
	if len(v) != 8 {
		return 0, fmt.Errorf("malformed index of %d bytes", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// getArtifact reads and decodes the artifact stored under prefix+key.
func getArtifact(r db.Reader, prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(r, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := DecodeArtifact(data, out); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

// setArtifact encodes artifact and stores it in wtx under prefix+key.
func setArtifact(wtx db.WriteTx, prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(wtx, prefix).Set(key, data)
}

// commit runs fn inside a write transaction and commits it.
func (s *Storage) commit(fn func(wtx db.WriteTx) error) error {
	wtx := s.db.WriteTx()
	defer wtx.Discard()
	if err := fn(wtx); err != nil {
		return err
	}
	return wtx.Commit()
}
