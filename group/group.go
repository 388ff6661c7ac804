// Package group implements the membership tree of a poll: an append-only,
// fixed-depth binary Poseidon tree whose leaves are member commitments in
// registration order. Empty leaves are zero and every empty subtree of
// height i hashes to zeros[i] = Poseidon(zeros[i-1], zeros[i-1]).
//
// A Group is not safe for concurrent use; the poll controller owns one per
// poll and serializes access to it.
package group

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/garagevoting/garage-node/crypto/hash/poseidon"
	"github.com/garagevoting/garage-node/util"
)

const (
	// DefaultDepth gives room for 2^20 members.
	DefaultDepth = 20
	MinDepth     = 1
	MaxDepth     = 32
)

var (
	// ErrTreeFull is returned when an insertion would exceed 2^depth leaves.
	ErrTreeFull = errors.New("membership tree is full")
	// ErrInvalidCommitment is returned for zero or out of field commitments.
	ErrInvalidCommitment = errors.New("invalid member commitment")
	// ErrMemberExists is returned when a commitment is already a leaf.
	ErrMemberExists = errors.New("member already registered")
	// ErrLeafNotFound is returned by Proof for an index past the last leaf.
	ErrLeafNotFound = errors.New("leaf not found")
	// ErrInvalidDepth is returned by New outside [MinDepth, MaxDepth].
	ErrInvalidDepth = errors.New("invalid tree depth")
)

var (
	zerosOnce sync.Once
	zeros     []*big.Int
)

// Zeros returns the empty subtree hashes for heights 0..depth.
func Zeros(depth int) []*big.Int {
	zerosOnce.Do(func() {
		zeros = make([]*big.Int, MaxDepth+1)
		zeros[0] = big.NewInt(0)
		for i := 1; i <= MaxDepth; i++ {
			zeros[i] = poseidon.Hash2(zeros[i-1], zeros[i-1])
		}
	})
	return zeros[:depth+1]
}

// Group is a fixed-depth incremental Merkle tree.
type Group struct {
	id     uint64
	depth  int
	zeros  []*big.Int
	levels [][]*big.Int
	index  map[string]int
}

// New returns an empty tree for the poll id.
func New(id uint64, depth int) (*Group, error) {
	if depth < MinDepth || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	return &Group{
		id:     id,
		depth:  depth,
		zeros:  Zeros(depth),
		levels: make([][]*big.Int, depth+1),
		index:  make(map[string]int),
	}, nil
}

// ID returns the poll id the tree belongs to.
func (g *Group) ID() uint64 { return g.id }

func (g *Group) Depth() int { return g.depth }

// Size returns the number of leaves.
func (g *Group) Size() int { return len(g.levels[0]) }

// Capacity returns 2^depth.
func (g *Group) Capacity() uint64 { return uint64(1) << g.depth }

// Root returns the current root.
func (g *Group) Root() *big.Int {
	if top := g.levels[g.depth]; len(top) > 0 {
		return new(big.Int).Set(top[0])
	}
	return new(big.Int).Set(g.zeros[g.depth])
}

// Leaves returns a copy of the leaves in insertion order.
func (g *Group) Leaves() []*big.Int {
	out := make([]*big.Int, len(g.levels[0]))
	for i, l := range g.levels[0] {
		out[i] = new(big.Int).Set(l)
	}
	return out
}

// IndexOf returns the leaf index of commitment.
func (g *Group) IndexOf(commitment *big.Int) (int, bool) {
	if commitment == nil {
		return 0, false
	}
	i, ok := g.index[commitment.String()]
	return i, ok
}

// AddMember appends commitment and returns its leaf index.
func (g *Group) AddMember(commitment *big.Int) (int, error) {
	return g.AddMembers([]*big.Int{commitment})
}

// AddMembers appends commitments in order and returns the index of the
// first one. The batch is validated as a whole first: if any element is
// rejected the tree is left untouched.
func (g *Group) AddMembers(commitments []*big.Int) (int, error) {
	if err := g.CheckMembers(commitments); err != nil {
		return 0, err
	}
	first := g.Size()
	for _, c := range commitments {
		g.insert(new(big.Int).Set(c))
	}
	return first, nil
}

// CheckMembers reports whether AddMembers(commitments) would succeed,
// without modifying the tree.
func (g *Group) CheckMembers(commitments []*big.Int) error {
	size := g.Size()
	if uint64(size)+uint64(len(commitments)) > g.Capacity() {
		return fmt.Errorf("%w: %d leaves, capacity %d", ErrTreeFull, size+len(commitments), g.Capacity())
	}
	seen := make(map[string]struct{}, len(commitments))
	for i, c := range commitments {
		if err := ValidateCommitment(c); err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
		key := c.String()
		if _, ok := g.index[key]; ok {
			return fmt.Errorf("member %d: %w", i, ErrMemberExists)
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("member %d: %w (repeated in batch)", i, ErrMemberExists)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ValidateCommitment checks that c can be a leaf.
func ValidateCommitment(c *big.Int) error {
	if !util.InField(c) {
		return fmt.Errorf("%w: outside the scalar field", ErrInvalidCommitment)
	}
	if c.Sign() == 0 {
		return fmt.Errorf("%w: zero is the empty leaf", ErrInvalidCommitment)
	}
	return nil
}

func (g *Group) insert(leaf *big.Int) {
	idx := len(g.levels[0])
	g.index[leaf.String()] = idx
	g.levels[0] = append(g.levels[0], leaf)
	node := leaf
	for level := 0; level < g.depth; level++ {
		if idx%2 == 0 {
			node = poseidon.Hash2(node, g.zeros[level])
		} else {
			node = poseidon.Hash2(g.levels[level][idx-1], node)
		}
		idx /= 2
		if idx < len(g.levels[level+1]) {
			g.levels[level+1][idx] = node
		} else {
			g.levels[level+1] = append(g.levels[level+1], node)
		}
	}
}

// MerkleProof is the authentication path of a leaf. PathBits[i] is 1 when
// the path node at height i is a right child.
type MerkleProof struct {
	Root     *big.Int
	Leaf     *big.Int
	Index    int
	Siblings []*big.Int
	PathBits []uint8
}

// Proof returns the authentication path of the leaf at index.
func (g *Group) Proof(index int) (*MerkleProof, error) {
	if index < 0 || index >= g.Size() {
		return nil, fmt.Errorf("%w: index %d, size %d", ErrLeafNotFound, index, g.Size())
	}
	p := &MerkleProof{
		Root:     g.Root(),
		Leaf:     new(big.Int).Set(g.levels[0][index]),
		Index:    index,
		Siblings: make([]*big.Int, g.depth),
		PathBits: make([]uint8, g.depth),
	}
	idx := index
	for level := 0; level < g.depth; level++ {
		sibling := idx ^ 1
		if sibling < len(g.levels[level]) {
			p.Siblings[level] = new(big.Int).Set(g.levels[level][sibling])
		} else {
			p.Siblings[level] = new(big.Int).Set(g.zeros[level])
		}
		p.PathBits[level] = uint8(idx & 1)
		idx /= 2
	}
	return p, nil
}

// VerifyMerkleProof recomputes the root from the path and compares it with
// p.Root.
func VerifyMerkleProof(p *MerkleProof) bool {
	if p == nil || p.Leaf == nil || p.Root == nil || len(p.Siblings) != len(p.PathBits) {
		return false
	}
	node := p.Leaf
	for i, sibling := range p.Siblings {
		if !util.InField(sibling) {
			return false
		}
		if p.PathBits[i] == 1 {
			node = poseidon.Hash2(sibling, node)
		} else {
			node = poseidon.Hash2(node, sibling)
		}
	}
	return node.Cmp(p.Root) == 0
}

// Clone returns a deep copy.
func (g *Group) Clone() *Group {
	c := &Group{
		id:     g.id,
		depth:  g.depth,
		zeros:  g.zeros,
		levels: make([][]*big.Int, len(g.levels)),
		index:  make(map[string]int, len(g.index)),
	}
	for i, level := range g.levels {
		c.levels[i] = slices.Clone(level)
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	return c
}

// FromLeaves rebuilds a tree from stored leaves.
func FromLeaves(id uint64, depth int, leaves []*big.Int) (*Group, error) {
	g, err := New(id, depth)
	if err != nil {
		return nil, err
	}
	if _, err := g.AddMembers(leaves); err != nil {
		return nil, err
	}
	return g, nil
}
