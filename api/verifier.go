package api

import (
	"fmt"

	"github.com/garagevoting/garage-node/circuits/semaphore"
	"github.com/garagevoting/garage-node/poll"
	"github.com/garagevoting/garage-node/prover"
)

// VerifierFromKeys decodes Groth16 verifying keys into a verifier. It is the
// VerifierLoader used by the node.
func VerifierFromKeys(keys []VerifyingKey) (poll.Verifier, error) {
	ring := prover.NewKeyRing()
	for _, k := range keys {
		if _, ok := ring.Get(k.Depth); ok {
			return nil, fmt.Errorf("duplicate key for depth %d", k.Depth)
		}
		decoded, err := semaphore.KeysFromArtifacts(&semaphore.CircuitArtifacts{
			Depth:        k.Depth,
			VerifyingKey: semaphore.NewArtifact(fmt.Sprintf("vk-%d", k.Depth), k.Key),
		})
		if err != nil {
			return nil, fmt.Errorf("depth %d: %w", k.Depth, err)
		}
		if decoded.VerifyingKey == nil {
			return nil, fmt.Errorf("depth %d: empty key", k.Depth)
		}
		ring.Add(decoded)
	}
	return prover.NewVerifier(ring), nil
}
