package types

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/garagevoting/garage-node/util"
)

// HexBytes is a []byte that travels as a 0x prefixed hexadecimal JSON
// string. Proofs and ciphertexts use it on the wire.
type HexBytes []byte

// HexBytesFromString decodes s, with or without the 0x prefix.
func HexBytesFromString(s string) (HexBytes, error) {
	b, err := hex.DecodeString(util.TrimHex(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	return b, nil
}

// Hex returns the hexadecimal form without prefix.
func (b HexBytes) Hex() string {
	return hex.EncodeToString(b)
}

// String returns the 0x prefixed hexadecimal form.
func (b HexBytes) String() string {
	return "0x" + b.Hex()
}

// LeftPad returns a copy of b padded with leading zeros up to n bytes.
func (b HexBytes) LeftPad(n int) HexBytes {
	if len(b) >= n {
		return bytes.Clone(b)
	}
	out := make(HexBytes, n)
	copy(out[n-len(b):], b)
	return out
}

func (b HexBytes) Equal(other HexBytes) bool {
	return bytes.Equal(b, other)
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+4)
	copy(enc, `"0x`)
	hex.Encode(enc[3:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	dec, err := HexBytesFromString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*b = dec
	return nil
}
