package semaphore

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Keys bundles the compiled circuit and the Groth16 keys of one depth. A
// verifier only needs VerifyingKey.
type Keys struct {
	Depth        int
	CCS          constraint.ConstraintSystem
	ProvingKey   groth16.ProvingKey
	VerifyingKey groth16.VerifyingKey
}

// Compile compiles the circuit for depth over BN254.
func Compile(depth int) (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, NewCircuit(depth))
	if err != nil {
		return nil, fmt.Errorf("compile depth %d: %w", depth, err)
	}
	return ccs, nil
}

// Setup compiles the circuit and runs a fresh Groth16 setup. The toxic
// waste is discarded by gnark, so a single party setup is only suitable for
// deployments that trust the operator running it.
func Setup(depth int) (*Keys, error) {
	ccs, err := Compile(depth)
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup depth %d: %w", depth, err)
	}
	return &Keys{Depth: depth, CCS: ccs, ProvingKey: pk, VerifyingKey: vk}, nil
}

// VerifyingKeyID is the sha256 of the serialized verifying key. It names the
// verifier a node is running.
func VerifyingKeyID(vk groth16.VerifyingKey) ([]byte, error) {
	h := sha256.New()
	if _, err := vk.WriteTo(h); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func serialize(w io.WriterTo) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Artifacts serializes the keys into content addressed artifacts.
func (k *Keys) Artifacts() (*CircuitArtifacts, error) {
	ca := &CircuitArtifacts{Depth: k.Depth}
	for _, item := range []struct {
		dst  **Artifact
		name string
		src  io.WriterTo
	}{
		{&ca.Circuit, "ccs", k.CCS},
		{&ca.ProvingKey, "pk", k.ProvingKey},
		{&ca.VerifyingKey, "vk", k.VerifyingKey},
	} {
		if item.src == nil {
			continue
		}
		content, err := serialize(item.src)
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", item.name, err)
		}
		*item.dst = NewArtifact(fmt.Sprintf("%s-%d", item.name, k.Depth), content)
	}
	return ca, nil
}

// KeysFromArtifacts decodes loaded artifacts. Missing artifacts leave the
// matching field nil.
func KeysFromArtifacts(ca *CircuitArtifacts) (*Keys, error) {
	keys := &Keys{Depth: ca.Depth}
	if a := ca.Circuit; a != nil && len(a.Content) > 0 {
		ccs := groth16.NewCS(ecc.BN254)
		if _, err := ccs.ReadFrom(bytes.NewReader(a.Content)); err != nil {
			return nil, fmt.Errorf("decode circuit: %w", err)
		}
		keys.CCS = ccs
	}
	if a := ca.ProvingKey; a != nil && len(a.Content) > 0 {
		pk := groth16.NewProvingKey(ecc.BN254)
		if _, err := pk.ReadFrom(bytes.NewReader(a.Content)); err != nil {
			return nil, fmt.Errorf("decode proving key: %w", err)
		}
		keys.ProvingKey = pk
	}
	if a := ca.VerifyingKey; a != nil && len(a.Content) > 0 {
		vk := groth16.NewVerifyingKey(ecc.BN254)
		if _, err := vk.ReadFrom(bytes.NewReader(a.Content)); err != nil {
			return nil, fmt.Errorf("decode verifying key: %w", err)
		}
		keys.VerifyingKey = vk
	}
	return keys, nil
}
