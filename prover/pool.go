package prover

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/garagevoting/garage-node/group"
	"github.com/garagevoting/garage-node/identity"
	"github.com/garagevoting/garage-node/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnknownJob is returned by Wait for an id the pool never issued or
	// already handed out.
	ErrUnknownJob = errors.New("unknown proving job")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("proving pool stopped")
)

// Request is one proof to generate. Tree is cloned on submission, so later
// registrations do not change the root the proof is built against.
type Request struct {
	Identity       *identity.Identity
	Tree           *group.Group
	PollID         uint64
	VoteCommitment common.Hash
}

type job struct {
	id    string
	req   Request
	done  chan struct{}
	proof *Proof
	err   error
}

// Pool generates proofs in the background on a fixed number of workers.
type Pool struct {
	prover  *Prover
	workers int
	queue   chan *job

	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool returns a pool of workers proving with p. It does nothing until
// Start.
func NewPool(p *Prover, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		prover:  p,
		workers: workers,
		queue:   make(chan *job, workers*4),
		jobs:    make(map[string]*job),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for range p.workers {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			j.proof, j.err = p.prover.GenerateProof(ctx, j.req.Identity, j.req.Tree, j.req.PollID, j.req.VoteCommitment)
			if j.err != nil {
				log.Warnw("proving job failed", "job", j.id, "pollID", j.req.PollID, "error", j.err.Error())
			}
			close(j.done)
		}
	}
}

// Submit queues req and returns its job id. It blocks while the queue is full.
func (p *Pool) Submit(ctx context.Context, req Request) (string, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return "", ErrPoolStopped
	}
	j := &job{id: uuid.NewString(), done: make(chan struct{}), req: req}
	j.req.Tree = req.Tree.Clone()
	p.jobs[j.id] = j
	p.mu.Unlock()

	select {
	case p.queue <- j:
		return j.id, nil
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.jobs, j.id)
		p.mu.Unlock()
		return "", ctx.Err()
	}
}

// Wait blocks until the job finishes and returns its result. A job result
// can be collected once.
func (p *Pool) Wait(ctx context.Context, id string) (*Proof, error) {
	p.mu.Lock()
	j, ok := p.jobs[id]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.mu.Lock()
	delete(p.jobs, id)
	p.mu.Unlock()
	return j.proof, j.err
}

// Stop stops the workers. Queued jobs that were not started never complete.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// GenerateProofs proves every request with at most limit proofs in flight
// and returns them in request order. The first failure cancels the rest.
func GenerateProofs(ctx context.Context, p *Prover, reqs []Request, limit int) ([]*Proof, error) {
	proofs := make([]*Proof, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, req := range reqs {
		g.Go(func() error {
			proof, err := p.GenerateProof(ctx, req.Identity, req.Tree, req.PollID, req.VoteCommitment)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			proofs[i] = proof
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return proofs, nil
}
