// Package dbtest holds the conformance checks every db.Database backend runs.
package dbtest

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/garagevoting/garage-node/db"
)

// TestWriteTx checks read-your-writes, commit visibility and deletes.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	tx := database.WriteTx()
	_, err := tx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(tx.Set([]byte("a"), []byte("b")), qt.IsNil)
	v, err := tx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(tx.Commit(), qt.IsNil)
	tx.Discard()

	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	tx = database.WriteTx()
	c.Assert(tx.Delete([]byte("a")), qt.IsNil)
	_, err = tx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(tx.Commit(), qt.IsNil)
	tx.Discard()

	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks prefix filtering, ordering and early stop.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	tx := database.WriteTx()
	for i := range 10 {
		c.Assert(tx.Set(fmt.Appendf(nil, "v/%02d", i), []byte{byte(i)}), qt.IsNil)
	}
	c.Assert(tx.Set([]byte("n/00"), []byte{0xff}), qt.IsNil)
	c.Assert(tx.Commit(), qt.IsNil)
	tx.Discard()

	var keys []string
	c.Assert(database.Iterate([]byte("v/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 10)
	c.Assert(keys[0], qt.Equals, "v/00")
	c.Assert(keys[9], qt.Equals, "v/09")

	count := 0
	c.Assert(database.Iterate([]byte("v/"), func(k, v []byte) bool {
		count++
		return count < 3
	}), qt.IsNil)
	c.Assert(count, qt.Equals, 3)

	tx = database.WriteTx()
	defer tx.Discard()
	c.Assert(tx.Set([]byte("v/10"), []byte{10}), qt.IsNil)
	c.Assert(tx.Delete([]byte("v/00")), qt.IsNil)
	keys = keys[:0]
	c.Assert(tx.Iterate([]byte("v/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 10)
	c.Assert(keys[0], qt.Equals, "v/01")
	c.Assert(keys[9], qt.Equals, "v/10")
}

// TestWriteTxApply checks that applying one transaction into another
// commits both sets of writes.
func TestWriteTxApply(t *testing.T, database db.Database) {
	c := qt.New(t)

	tx1 := database.WriteTx()
	c.Assert(tx1.Set([]byte("k1"), []byte("v1")), qt.IsNil)
	tx2 := database.WriteTx()
	c.Assert(tx2.Set([]byte("k2"), []byte("v2")), qt.IsNil)

	c.Assert(tx1.Apply(tx2), qt.IsNil)
	c.Assert(tx1.Commit(), qt.IsNil)
	tx1.Discard()
	tx2.Discard()

	v, err := database.Get([]byte("k1"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v1"))
	v, err = database.Get([]byte("k2"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v2"))
}

// TestWriteTxApplyPrefixed checks that prefixed transactions keep their
// prefix when merged and committed.
func TestWriteTxApplyPrefixed(t *testing.T, database, prefixed db.Database, prefix []byte) {
	c := qt.New(t)

	tx1 := prefixed.WriteTx()
	c.Assert(tx1.Set([]byte("k1"), []byte("v1")), qt.IsNil)
	tx2 := prefixed.WriteTx()
	c.Assert(tx2.Set([]byte("k2"), []byte("v2")), qt.IsNil)

	c.Assert(tx1.Apply(tx2), qt.IsNil)
	c.Assert(tx1.Commit(), qt.IsNil)
	tx1.Discard()
	tx2.Discard()

	for _, k := range []string{"k1", "k2"} {
		_, err := prefixed.Get([]byte(k))
		c.Assert(err, qt.IsNil)
		_, err = database.Get(append(append([]byte{}, prefix...), k...))
		c.Assert(err, qt.IsNil)
		_, err = database.Get([]byte(k))
		c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	}
}

// TestConcurrentWriteTx checks that of two transactions writing a key both
// read, only the first commits.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	tx1 := database.WriteTx()
	tx2 := database.WriteTx()
	_, err := tx1.Get([]byte("n"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	_, err = tx2.Get([]byte("n"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(tx1.Set([]byte("n"), []byte("first")), qt.IsNil)
	c.Assert(tx2.Set([]byte("n"), []byte("second")), qt.IsNil)

	c.Assert(tx1.Commit(), qt.IsNil)
	c.Assert(tx2.Commit(), qt.ErrorIs, db.ErrConflict)

	v, err := database.Get([]byte("n"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("first"))
}
