package util

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
)

// FieldModulus is the BN254 scalar field order. Every commitment, root,
// nullifier hash and signal is an element of this field.
var FieldModulus = ecc.BN254.ScalarField()

// RandomBytes generates a random byte slice of length n.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandomHex generates a random hex string of n bytes.
func RandomHex(n int) string {
	return fmt.Sprintf("%x", RandomBytes(n))
}

// RandomFieldElement draws a uniform non-zero element of the scalar field.
func RandomFieldElement() (*big.Int, error) {
	for {
		v, err := rand.Int(rand.Reader, FieldModulus)
		if err != nil {
			return nil, err
		}
		if v.Sign() != 0 {
			return v, nil
		}
	}
}

// InField reports whether 0 <= v < FieldModulus.
func InField(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(FieldModulus) < 0
}

// TrimHex trims the '0x' prefix from a hex string.
func TrimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
