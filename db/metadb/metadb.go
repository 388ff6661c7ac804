// Package metadb opens a db.Database by backend name.
package metadb

import (
	"fmt"
	"testing"

	"github.com/garagevoting/garage-node/db"
	"github.com/garagevoting/garage-node/db/inmemory"
	"github.com/garagevoting/garage-node/db/leveldb"
	"github.com/garagevoting/garage-node/db/pebbledb"
)

// New opens a database of the given type at dir.
func New(typ, dir string) (db.Database, error) {
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		return pebbledb.New(opts)
	case db.TypeLevelDB:
		return leveldb.New(opts)
	case db.TypeInMemory:
		return inmemory.New(opts)
	default:
		return nil, fmt.Errorf("unknown db type %q", typ)
	}
}

// NewTest returns an in-memory database closed when the test ends.
func NewTest(tb testing.TB) db.Database {
	database, err := inmemory.New(db.Options{})
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { _ = database.Close() })
	return database
}
