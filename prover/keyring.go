package prover

import (
	"fmt"
	"slices"
	"sync"

	"github.com/garagevoting/garage-node/circuits/semaphore"
)

// KeyRing holds the circuit keys of every tree depth the node serves.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[int]*semaphore.Keys
}

func NewKeyRing(keys ...*semaphore.Keys) *KeyRing {
	kr := &KeyRing{keys: make(map[int]*semaphore.Keys)}
	for _, k := range keys {
		kr.Add(k)
	}
	return kr
}

// Add registers or replaces the keys of k.Depth.
func (kr *KeyRing) Add(k *semaphore.Keys) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	kr.keys[k.Depth] = k
}

// Get returns the keys of depth.
func (kr *KeyRing) Get(depth int) (*semaphore.Keys, bool) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	k, ok := kr.keys[depth]
	return k, ok
}

// Depths returns the loaded depths in ascending order.
func (kr *KeyRing) Depths() []int {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	out := make([]int, 0, len(kr.keys))
	for d := range kr.keys {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// VerifyingKeyID returns the id of the verifying key of depth.
func (kr *KeyRing) VerifyingKeyID(depth int) ([]byte, error) {
	k, ok := kr.Get(depth)
	if !ok || k.VerifyingKey == nil {
		return nil, fmt.Errorf("no verifying key for depth %d", depth)
	}
	return semaphore.VerifyingKeyID(k.VerifyingKey)
}
