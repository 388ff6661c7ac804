// Package poll is the poll lifecycle controller. It owns every poll's
// membership tree, accepted votes and spent nullifier hashes, and applies
// all the checks a vote has to pass before it is recorded.
//
// Mutations of one poll are serialized by a per-poll lock and persisted in
// a single storage transaction, so two concurrent votes with the same
// nullifier hash can never both be accepted.
package poll

import (
	"cmp"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/events"
	"github.com/garagevoting/garage-node/group"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/storage"
	"github.com/garagevoting/garage-node/types"
)

const (
	MinTreeDepth = 16
	MaxTreeDepth = group.MaxDepth

	treeCacheSize = 64
)

// Verifier checks proofs. *prover.Verifier implements it.
type Verifier interface {
	VerifyProof(proof *prover.Proof, depth int) bool
	// ID identifies the verifying key used for depth.
	ID(depth int) ([]byte, error)
}

// Config holds the controller dependencies. Storage, Verifier and Checker
// are required.
type Config struct {
	Storage  *storage.Storage
	Verifier Verifier
	Checker  access.Checker
	// Cipher decrypts revealed votes for Results.
	Cipher *ballot.Cipher
	Bus    *events.Bus
	// Clock defaults to time.Now.
	Clock    func() time.Time
	Registry prometheus.Registerer
	// TreeDepth and Implementation seed the settings of a fresh database.
	TreeDepth      int
	Implementation string
}

// Controller runs the poll lifecycle.
type Controller struct {
	storage *storage.Storage
	checker access.Checker
	cipher  *ballot.Cipher
	bus     *events.Bus
	now     func() time.Time
	metrics *metrics

	// settingsLock guards verifier and settings.
	settingsLock sync.RWMutex
	verifier     Verifier
	settings     types.Settings

	locks  sync.Map // pollID → *sync.RWMutex
	trees  *lru.Cache[uint64, *group.Group]
	phases sync.Map // pollID → types.PollPhase, last phase seen by CheckPhases
}

// New returns a controller, loading the settings from storage or storing
// the initial ones from cfg.
func New(cfg Config) (*Controller, error) {
	if cfg.Storage == nil || cfg.Verifier == nil || cfg.Checker == nil {
		return nil, fmt.Errorf("storage, verifier and access checker are required")
	}
	trees, err := lru.New[uint64, *group.Group](treeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create tree cache: %w", err)
	}
	c := &Controller{
		storage:  cfg.Storage,
		checker:  cfg.Checker,
		cipher:   cfg.Cipher,
		bus:      cfg.Bus,
		now:      cfg.Clock,
		verifier: cfg.Verifier,
		trees:    trees,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if cfg.Registry != nil {
		c.metrics = newMetrics(cfg.Registry)
	}

	settings, err := cfg.Storage.Settings()
	switch {
	case err == nil:
		c.settings = *settings
		if cfg.TreeDepth != 0 && cfg.TreeDepth != settings.MerkleTreeDepth {
			log.Warnw("stored tree depth overrides configured one",
				"stored", settings.MerkleTreeDepth, "configured", cfg.TreeDepth)
		}
	case errors.Is(err, storage.ErrNotFound):
		c.settings = types.Settings{
			MerkleTreeDepth: cmp.Or(cfg.TreeDepth, group.DefaultDepth),
			Implementation:  cmp.Or(cfg.Implementation, DefaultImplementation),
		}
		if err := validateDepth(c.settings.MerkleTreeDepth); err != nil {
			return nil, err
		}
		if _, err := LookupImplementation(c.settings.Implementation); err != nil {
			return nil, err
		}
		if err := cfg.Storage.SetSettings(&c.settings); err != nil {
			return nil, fmt.Errorf("store settings: %w", err)
		}
	default:
		return nil, fmt.Errorf("load settings: %w", err)
	}
	id, err := c.verifier.ID(c.settings.MerkleTreeDepth)
	if err != nil {
		return nil, fmt.Errorf("%w %d: %v", ErrUnsupportedDepth, c.settings.MerkleTreeDepth, err)
	}
	if !types.HexBytes(id).Equal(c.settings.VerifierID) {
		c.settings.VerifierID = id
		if err := cfg.Storage.SetSettings(&c.settings); err != nil {
			return nil, fmt.Errorf("store settings: %w", err)
		}
	}
	return c, nil
}

func (c *Controller) lock(pollID uint64) *sync.RWMutex {
	l, _ := c.locks.LoadOrStore(pollID, new(sync.RWMutex))
	return l.(*sync.RWMutex)
}

func (c *Controller) requireAdmin(actor access.Actor, op string) error {
	if !c.checker.HasRole(actor, access.RoleAdmin) {
		log.Debugw("access denied", "actor", actor.ID, "operation", op)
		return fmt.Errorf("%w: %s requires the %s role", ErrAccessDenied, op, access.RoleAdmin)
	}
	return nil
}

func (c *Controller) record(pollID uint64) (*types.Poll, error) {
	p, err := c.storage.Poll(pollID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrPollNotFound, pollID)
		}
		return nil, err
	}
	return p, nil
}

// CreatePollParams are the immutable fields of a new poll.
type CreatePollParams struct {
	Name      string
	Options   []string
	StartTime time.Time
	EndTime   time.Time
}

func (p *CreatePollParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPoll)
	}
	if len(p.Options) == 0 {
		return fmt.Errorf("%w: no options", ErrInvalidPoll)
	}
	for i, o := range p.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("%w: option %d is empty", ErrInvalidPoll, i)
		}
	}
	if !p.EndTime.After(p.StartTime) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidPoll)
	}
	return nil
}

// CreatePoll allocates a poll with an empty membership tree. Timestamps are
// kept with second precision.
func (c *Controller) CreatePoll(actor access.Actor, params CreatePollParams) (*Poll, error) {
	if err := c.requireAdmin(actor, "createPoll"); err != nil {
		return nil, err
	}
	params.StartTime = params.StartTime.Truncate(time.Second).UTC()
	params.EndTime = params.EndTime.Truncate(time.Second).UTC()
	if err := params.validate(); err != nil {
		return nil, err
	}

	settings := c.Settings()
	empty, err := group.New(0, settings.MerkleTreeDepth)
	if err != nil {
		return nil, err
	}
	record := &types.Poll{
		Name:           params.Name,
		Options:        slices.Clone(params.Options),
		StartTime:      params.StartTime,
		EndTime:        params.EndTime,
		Depth:          settings.MerkleTreeDepth,
		Implementation: settings.Implementation,
		Coordinator:    actor.ID,
		CreatedAt:      c.now().Truncate(time.Second).UTC(),
		Root:           types.NewBigInt(empty.Root()),
	}
	id, err := c.storage.NewPoll(record)
	if err != nil {
		return nil, err
	}
	c.phases.Store(id, record.PhaseAt(c.now()))
	if c.metrics != nil {
		c.metrics.pollsCreated.Inc()
	}
	log.Infow("poll created", "pollId", id, "name", record.Name, "options", len(record.Options),
		"start", record.StartTime, "end", record.EndTime, "depth", record.Depth)
	c.publish(EventPollCreated, PollCreated{
		PollID:         id,
		Name:           record.Name,
		Coordinator:    actor.ID,
		StartTime:      record.StartTime,
		EndTime:        record.EndTime,
		Depth:          record.Depth,
		Implementation: record.Implementation,
	})
	return newPollHandle(c, record), nil
}

// PollsAmount returns the number of polls created. Poll ids are
// 0..PollsAmount()-1.
func (c *Controller) PollsAmount() (uint64, error) {
	return c.storage.PollsAmount()
}

// Poll returns the handle of a poll.
func (c *Controller) Poll(pollID uint64) (*Poll, error) {
	record, err := c.record(pollID)
	if err != nil {
		return nil, err
	}
	return newPollHandle(c, record), nil
}

// tree returns the poll's membership tree, rebuilding it from storage when
// it is not cached. The caller holds the poll write lock.
func (c *Controller) tree(record *types.Poll) (*group.Group, error) {
	if g, ok := c.trees.Get(record.ID); ok {
		return g, nil
	}
	leaves, err := c.storage.Leaves(record.ID)
	if err != nil {
		return nil, err
	}
	g, err := group.FromLeaves(record.ID, record.Depth, leaves)
	if err != nil {
		return nil, fmt.Errorf("rebuild tree of poll %d: %w", record.ID, err)
	}
	if record.Root != nil && g.Root().Cmp(record.Root.MathBigInt()) != 0 {
		return nil, fmt.Errorf("rebuilt tree of poll %d does not match its stored root", record.ID)
	}
	c.trees.Add(record.ID, g)
	return g, nil
}

// AddVoter registers a member commitment in the poll.
func (c *Controller) AddVoter(actor access.Actor, pollID uint64, commitment *big.Int) (*MemberAdded, error) {
	added, err := c.AddVoters(actor, pollID, []*big.Int{commitment})
	if err != nil {
		return nil, err
	}
	return &added[0], nil
}

// AddVoters registers a batch of commitments. Either every commitment is
// registered or none is. One MemberAdded event is published per member, in
// order.
func (c *Controller) AddVoters(actor access.Actor, pollID uint64, commitments []*big.Int) ([]MemberAdded, error) {
	if err := c.requireAdmin(actor, "addVoter"); err != nil {
		return nil, err
	}
	if len(commitments) == 0 {
		return nil, fmt.Errorf("%w: no commitments", group.ErrInvalidCommitment)
	}
	l := c.lock(pollID)
	l.Lock()
	defer l.Unlock()

	record, err := c.record(pollID)
	if err != nil {
		return nil, err
	}
	impl, err := LookupImplementation(record.Implementation)
	if err != nil {
		return nil, err
	}
	switch phase := record.PhaseAt(c.now()); {
	case phase == types.PollPhaseClosed:
		return nil, fmt.Errorf("%w: poll %d is closed", ErrRegistrationClosed, pollID)
	case phase == types.PollPhaseOpen && !impl.LateRegistration:
		return nil, fmt.Errorf("%w: poll %d is open and uses %s", ErrRegistrationClosed, pollID, impl.Name)
	}

	tree, err := c.tree(record)
	if err != nil {
		return nil, err
	}
	if err := tree.CheckMembers(commitments); err != nil {
		return nil, err
	}
	added := make([]MemberAdded, 0, len(commitments))
	for _, cm := range commitments {
		idx, err := tree.AddMember(cm)
		if err != nil {
			// the batch was checked, the cached tree can no longer be trusted
			c.trees.Remove(pollID)
			return nil, err
		}
		added = append(added, MemberAdded{
			PollID:     pollID,
			Index:      idx,
			Commitment: new(big.Int).Set(cm),
			Root:       tree.Root(),
		})
	}
	if _, err := c.storage.AddLeaves(pollID, commitments, tree.Root()); err != nil {
		c.trees.Remove(pollID)
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.membersAdded.Add(float64(len(added)))
	}
	for _, ev := range added {
		log.Debugw("member added", "pollId", pollID, "index", ev.Index, "root", ev.Root.String())
		c.publish(EventMemberAdded, ev)
	}
	return added, nil
}

// Members returns the poll's member commitments in registration order.
func (c *Controller) Members(pollID uint64) ([]*big.Int, error) {
	l := c.lock(pollID)
	l.RLock()
	defer l.RUnlock()
	if _, err := c.record(pollID); err != nil {
		return nil, err
	}
	return c.storage.Leaves(pollID)
}

// Root returns the poll's current membership root.
func (c *Controller) Root(pollID uint64) (*big.Int, error) {
	record, err := c.record(pollID)
	if err != nil {
		return nil, err
	}
	return record.Root.MathBigInt(), nil
}
