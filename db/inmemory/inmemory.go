// Package inmemory is an ephemeral db.Database with optimistic conflict
// detection, used by tests and by nodes started without a data directory.
package inmemory

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/garagevoting/garage-node/db"
)

type entry struct {
	value   []byte
	version uint64
	deleted bool
}

// InMemoryDB implements db.Database on a versioned map.
type InMemoryDB struct {
	mu      sync.RWMutex
	data    map[string]entry
	version uint64
}

var _ db.Database = (*InMemoryDB)(nil)

// New returns an empty database. Options are ignored.
func New(db.Options) (*InMemoryDB, error) {
	return &InMemoryDB{data: make(map[string]entry)}, nil
}

func (d *InMemoryDB) Close() error   { return nil }
func (d *InMemoryDB) Compact() error { return nil }

func (d *InMemoryDB) WriteTx() db.WriteTx {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &WriteTx{
		db:      d,
		base:    d.version,
		writes:  make(map[string]*[]byte),
		readVer: make(map[string]uint64),
	}
}

func (d *InMemoryDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.data[string(key)]
	if !ok || e.deleted {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(e.value), nil
}

func (d *InMemoryDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries, _ := d.snapshot(prefix)
	return walk(entries, callback)
}

// snapshot copies the live entries under prefix together with their versions.
func (d *InMemoryDB) snapshot(prefix []byte) (map[string][]byte, map[string]uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entries := make(map[string][]byte)
	versions := make(map[string]uint64)
	for k, e := range d.data {
		if e.deleted || !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		entries[k] = bytes.Clone(e.value)
		versions[k] = e.version
	}
	return entries, versions
}

func (d *InMemoryDB) versionOf(key string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data[key].version
}

// WriteTx records the version of every key it touches and refuses to commit
// if any of them moved in the meantime.
type WriteTx struct {
	db      *InMemoryDB
	base    uint64
	writes  map[string]*[]byte
	readVer map[string]uint64
	done    bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) track(key string, version uint64) {
	if _, ok := tx.readVer[key]; !ok {
		tx.readVer[key] = version
	}
}

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if pending, ok := tx.writes[k]; ok {
		if pending == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*pending), nil
	}
	tx.db.mu.RLock()
	e, ok := tx.db.data[k]
	tx.db.mu.RUnlock()
	tx.track(k, e.version)
	if !ok || e.deleted {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(e.value), nil
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries, versions := tx.db.snapshot(prefix)
	for k, v := range versions {
		tx.track(k, v)
	}
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(*v)
	}
	return walk(entries, callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	k := string(key)
	tx.track(k, tx.db.versionOf(k))
	v := bytes.Clone(value)
	tx.writes[k] = &v
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	k := string(key)
	tx.track(k, tx.db.versionOf(k))
	tx.writes[k] = nil
	return nil
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	var setErr error
	err := other.Iterate(nil, func(k, v []byte) bool {
		setErr = tx.Set(k, v)
		return setErr == nil
	})
	if err != nil {
		return err
	}
	return setErr
}

func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("inmemory tx already committed or discarded")
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for k, seen := range tx.readVer {
		if seen > tx.base || tx.db.data[k].version != seen {
			return db.ErrConflict
		}
	}
	for k, v := range tx.writes {
		tx.db.version++
		e := entry{version: tx.db.version}
		if v == nil {
			e.deleted = true
		} else {
			e.value = bytes.Clone(*v)
		}
		tx.db.data[k] = e
	}
	tx.done = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.writes = map[string]*[]byte{}
	tx.readVer = map[string]uint64{}
	tx.done = true
}

func walk(entries map[string][]byte, callback func(key, value []byte) bool) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !callback([]byte(k), entries[k]) {
			break
		}
	}
	return nil
}
