// Package ballot turns a chosen option into an opaque ciphertext and the
// ciphertext into the public vote commitment, Keccak-256 of the ciphertext.
//
// Ciphertexts are AES-256-GCM envelopes laid out as salt || iv || tag ||
// sealed, with the key derived from the organization secret by
// PBKDF2-SHA512 over a fresh random salt, so two encryptions of the same
// option never share a commitment.
package ballot

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/garagevoting/garage-node/types"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength        = 64
	ivLength          = 16
	tagLength         = 16
	keyLength         = 32
	DefaultIterations = 100000
	// SecretLength is the entropy, in bytes, of secrets made by
	// GenerateSecret.
	SecretLength = 32
)

var (
	// ErrDecryption is returned when a ciphertext was not produced under
	// the cipher's secret or is malformed.
	ErrDecryption = errors.New("vote decryption failed")
	// ErrInvalidOption is returned for an option index outside the poll.
	ErrInvalidOption = errors.New("invalid vote option")
)

// Cipher encrypts and decrypts votes under one secret.
type Cipher struct {
	secret     []byte
	iterations int
}

// Option tunes a Cipher.
type Option func(*Cipher)

// WithIterations sets the PBKDF2 iteration count.
func WithIterations(n int) Option {
	return func(c *Cipher) { c.iterations = n }
}

// GenerateSecret draws a new random secret, hex encoded so that it can be
// handed to members and passed on a command line.
func GenerateSecret() ([]byte, error) {
	raw := make([]byte, SecretLength)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	return []byte(hex.EncodeToString(raw)), nil
}

// NewCipher returns a cipher for secret.
func NewCipher(secret []byte, opts ...Option) (*Cipher, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty vote cipher secret")
	}
	c := &Cipher{secret: append([]byte(nil), secret...), iterations: DefaultIterations}
	for _, o := range opts {
		o(c)
	}
	if c.iterations < 1 {
		return nil, fmt.Errorf("invalid pbkdf2 iterations %d", c.iterations)
	}
	return c, nil
}

// Secret returns a copy of the cipher's secret.
func (c *Cipher) Secret() []byte {
	return append([]byte(nil), c.secret...)
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secret, salt, c.iterations, keyLength, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLength)
}

// EncryptVote encrypts the decimal form of option.
func (c *Cipher) EncryptVote(option int) (types.HexBytes, error) {
	if option < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOption, option)
	}
	salt := make([]byte, saltLength+ivLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	salt, iv := salt[:saltLength], salt[saltLength:]
	aead, err := c.aead(salt)
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, iv, []byte(strconv.Itoa(option)), nil)
	body, tag := sealed[:len(sealed)-tagLength], sealed[len(sealed)-tagLength:]

	out := make(types.HexBytes, 0, saltLength+ivLength+tagLength+len(body))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, tag...)
	return append(out, body...), nil
}

// EncryptVoteFor encrypts option after checking it against the number of
// options of the poll.
func (c *Cipher) EncryptVoteFor(option, numOptions int) (types.HexBytes, error) {
	if option < 0 || option >= numOptions {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidOption, option, numOptions)
	}
	return c.EncryptVote(option)
}

// DecryptVote recovers the option index of ciphertext.
func (c *Cipher) DecryptVote(ciphertext []byte) (int, error) {
	if len(ciphertext) <= saltLength+ivLength+tagLength {
		return 0, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	salt := ciphertext[:saltLength]
	iv := ciphertext[saltLength : saltLength+ivLength]
	tag := ciphertext[saltLength+ivLength : saltLength+ivLength+tagLength]
	body := ciphertext[saltLength+ivLength+tagLength:]

	aead, err := c.aead(salt)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	sealed := make([]byte, 0, len(body)+tagLength)
	sealed = append(append(sealed, body...), tag...)
	plain, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	option, err := strconv.Atoi(string(plain))
	if err != nil || option < 0 {
		return 0, fmt.Errorf("%w: plaintext is not an option index", ErrDecryption)
	}
	return option, nil
}

// CalculateVoteHash returns the Keccak-256 commitment of ciphertext.
func CalculateVoteHash(ciphertext []byte) common.Hash {
	return crypto.Keccak256Hash(ciphertext)
}
