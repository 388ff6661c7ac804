// Package db defines the key-value interface every storage backend of the
// node implements. Poll state is written through WriteTx so that a vote,
// its nullifier and the counters it bumps land together or not at all.
package db

import (
	"errors"
	"io"
)

const (
	TypePebble   = "pebble"
	TypeLevelDB  = "leveldb"
	TypeInMemory = "inmemory"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// ErrConflict is returned by Commit when a key read by the transaction was
// modified after the transaction started.
var ErrConflict = errors.New("transaction conflict")

// Options configures a backend. Path is the data directory.
type Options struct {
	Path string
}

// Reader is the read side shared by Database and WriteTx.
type Reader interface {
	// Get returns a copy of the value stored under key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback for every key starting with prefix in
	// ascending order until it returns false. The prefix is kept in the
	// keys handed to the callback.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx buffers writes until Commit. Reads observe the pending writes.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	// Apply copies every pending write of other into this transaction.
	Apply(other WriteTx) error
	Commit() error
	// Discard drops the pending writes. It is safe to call after Commit.
	Discard()
}

// Database is a key-value store.
type Database interface {
	io.Closer
	Reader
	WriteTx() WriteTx
	Compact() error
}
