// Package identity holds a member's secret key material. An identity is a
// trapdoor and a nullifier seed; only the Poseidon commitment of both is ever
// shared with the organization, and the nullifier seed derives one nullifier
// hash per poll.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/garagevoting/garage-node/crypto/hash/poseidon"
	"github.com/garagevoting/garage-node/types"
	"github.com/garagevoting/garage-node/util"
)

// ErrInvalidSecret is returned when a secret is zero or outside the field.
var ErrInvalidSecret = errors.New("invalid identity secret")

// Identity is a member's private key material.
type Identity struct {
	trapdoor   *big.Int
	nullifier  *big.Int
	commitment *big.Int
}

// New draws fresh secrets.
func New() (*Identity, error) {
	trapdoor, err := util.RandomFieldElement()
	if err != nil {
		return nil, fmt.Errorf("draw trapdoor: %w", err)
	}
	nullifier, err := util.RandomFieldElement()
	if err != nil {
		return nil, fmt.Errorf("draw nullifier: %w", err)
	}
	return FromSecrets(trapdoor, nullifier)
}

// FromSecrets rebuilds an identity from stored secrets.
func FromSecrets(trapdoor, nullifier *big.Int) (*Identity, error) {
	for name, v := range map[string]*big.Int{"trapdoor": trapdoor, "nullifier": nullifier} {
		if !util.InField(v) || v.Sign() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSecret, name)
		}
	}
	id := &Identity{
		trapdoor:  new(big.Int).Set(trapdoor),
		nullifier: new(big.Int).Set(nullifier),
	}
	id.commitment = poseidon.Hash2(id.trapdoor, id.nullifier)
	return id, nil
}

// Trapdoor returns a copy of the trapdoor.
func (id *Identity) Trapdoor() *big.Int { return new(big.Int).Set(id.trapdoor) }

// Nullifier returns a copy of the nullifier seed.
func (id *Identity) Nullifier() *big.Int { return new(big.Int).Set(id.nullifier) }

// Commitment is Poseidon(trapdoor, nullifier), the public leaf value.
func (id *Identity) Commitment() *big.Int { return new(big.Int).Set(id.commitment) }

// NullifierHash is Poseidon(scope, nullifier). The same identity always
// yields the same hash for a scope and unrelated hashes across scopes.
func (id *Identity) NullifierHash(scope *big.Int) *big.Int {
	return poseidon.Hash2(new(big.Int).Mod(scope, util.FieldModulus), id.nullifier)
}

// String prints the commitment only.
func (id *Identity) String() string {
	return fmt.Sprintf("identity(%s)", id.commitment)
}

type identityJSON struct {
	Trapdoor  *types.BigInt `json:"trapdoor"`
	Nullifier *types.BigInt `json:"nullifier"`
}

// MarshalJSON exports the secrets, used for the member's key file.
func (id *Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(identityJSON{
		Trapdoor:  types.NewBigInt(id.trapdoor),
		Nullifier: types.NewBigInt(id.nullifier),
	})
}

func (id *Identity) UnmarshalJSON(data []byte) error {
	var raw identityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Trapdoor == nil || raw.Nullifier == nil {
		return fmt.Errorf("%w: missing field", ErrInvalidSecret)
	}
	parsed, err := FromSecrets(raw.Trapdoor.MathBigInt(), raw.Nullifier.MathBigInt())
	if err != nil {
		return err
	}
	*id = *parsed
	return nil
}
