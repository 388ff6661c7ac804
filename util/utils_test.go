package util

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestRandomFieldElement(t *testing.T) {
	c := qt.New(t)
	for range 32 {
		v, err := RandomFieldElement()
		c.Assert(err, qt.IsNil)
		c.Assert(InField(v), qt.IsTrue)
		c.Assert(v.Sign(), qt.Equals, 1)
	}
	c.Assert(InField(new(big.Int).Set(FieldModulus)), qt.IsFalse)
	c.Assert(InField(big.NewInt(-1)), qt.IsFalse)
	c.Assert(InField(nil), qt.IsFalse)
}

func TestTrimHex(t *testing.T) {
	c := qt.New(t)
	c.Assert(TrimHex("0xabc"), qt.Equals, "abc")
	c.Assert(TrimHex("0Xabc"), qt.Equals, "abc")
	c.Assert(TrimHex("abc"), qt.Equals, "abc")
	c.Assert(len(RandomHex(8)), qt.Equals, 16)
}
