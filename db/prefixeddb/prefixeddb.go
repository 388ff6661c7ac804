// Package prefixeddb scopes a db.Database to a key prefix, so that each
// storage namespace (polls, leaves, votes, nullifiers) sees its own key space.
package prefixeddb

import (
	"github.com/garagevoting/garage-node/db"
)

func prefixed(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

func iterateStripped(r db.Reader, prefix, sub []byte, callback func(key, value []byte) bool) error {
	return r.Iterate(prefixed(prefix, sub), func(k, v []byte) bool {
		return callback(k[len(prefix):], v)
	})
}

// PrefixedDatabase prepends prefix to every key of the wrapped database.
type PrefixedDatabase struct {
	db     db.Database
	prefix []byte
}

var _ db.Database = (*PrefixedDatabase)(nil)

func NewPrefixedDatabase(database db.Database, prefix []byte) *PrefixedDatabase {
	return &PrefixedDatabase{db: database, prefix: prefix}
}

// Close does nothing, the wrapped database is owned by the caller.
func (d *PrefixedDatabase) Close() error { return nil }

func (d *PrefixedDatabase) Compact() error { return d.db.Compact() }

func (d *PrefixedDatabase) Get(key []byte) ([]byte, error) {
	return d.db.Get(prefixed(d.prefix, key))
}

func (d *PrefixedDatabase) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return iterateStripped(d.db, d.prefix, prefix, callback)
}

func (d *PrefixedDatabase) WriteTx() db.WriteTx {
	return NewPrefixedWriteTx(d.db.WriteTx(), d.prefix)
}

// PrefixedReader is a read only prefixed view, usable on a Database or on
// an open WriteTx.
type PrefixedReader struct {
	r      db.Reader
	prefix []byte
}

var _ db.Reader = (*PrefixedReader)(nil)

func NewPrefixedReader(r db.Reader, prefix []byte) *PrefixedReader {
	return &PrefixedReader{r: r, prefix: prefix}
}

func (p *PrefixedReader) Get(key []byte) ([]byte, error) {
	return p.r.Get(prefixed(p.prefix, key))
}

func (p *PrefixedReader) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return iterateStripped(p.r, p.prefix, prefix, callback)
}

// PrefixedWriteTx prepends prefix to every key of the wrapped transaction.
type PrefixedWriteTx struct {
	tx     db.WriteTx
	prefix []byte
}

var _ db.WriteTx = (*PrefixedWriteTx)(nil)

// NewPrefixedWriteTx scopes tx to prefix. Several prefixed views of the same
// transaction commit together through the underlying tx.
func NewPrefixedWriteTx(tx db.WriteTx, prefix []byte) *PrefixedWriteTx {
	return &PrefixedWriteTx{tx: tx, prefix: prefix}
}

// Unwrap returns the underlying transaction.
func (t *PrefixedWriteTx) Unwrap() db.WriteTx { return t.tx }

func (t *PrefixedWriteTx) Get(key []byte) ([]byte, error) {
	return t.tx.Get(prefixed(t.prefix, key))
}

func (t *PrefixedWriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return iterateStripped(t.tx, t.prefix, prefix, callback)
}

func (t *PrefixedWriteTx) Set(key, value []byte) error {
	return t.tx.Set(prefixed(t.prefix, key), value)
}

func (t *PrefixedWriteTx) Delete(key []byte) error {
	return t.tx.Delete(prefixed(t.prefix, key))
}

// Apply merges other into the underlying transaction. A prefixed other is
// unwrapped first so its keys keep their own prefix.
func (t *PrefixedWriteTx) Apply(other db.WriteTx) error {
	if o, ok := other.(*PrefixedWriteTx); ok {
		return t.tx.Apply(o.tx)
	}
	return t.tx.Apply(other)
}

func (t *PrefixedWriteTx) Commit() error { return t.tx.Commit() }

func (t *PrefixedWriteTx) Discard() { t.tx.Discard() }
