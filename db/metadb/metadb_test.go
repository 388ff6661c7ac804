package metadb

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/garagevoting/garage-node/db"
)

func TestNew(t *testing.T) {
	c := qt.New(t)

	for _, typ := range []string{db.TypePebble, db.TypeLevelDB, db.TypeInMemory} {
		c.Run(typ, func(c *qt.C) {
			database, err := New(typ, c.TempDir())
			c.Assert(err, qt.IsNil)
			tx := database.WriteTx()
			c.Assert(tx.Set([]byte("k"), []byte("v")), qt.IsNil)
			c.Assert(tx.Commit(), qt.IsNil)
			c.Assert(database.Close(), qt.IsNil)
		})
	}

	_, err := New("badger", c.TempDir())
	c.Assert(err, qt.ErrorMatches, `unknown db type "badger"`)
}
