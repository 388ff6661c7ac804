package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/poll"
)

// DefaultMonitorInterval is how often poll phases are checked.
const DefaultMonitorInterval = 5 * time.Second

// PhaseChecker reports poll phase changes since its previous call.
// *poll.Controller implements it.
type PhaseChecker interface {
	CheckPhases() ([]poll.PollPhaseChanged, error)
}

// PollMonitor periodically checks every poll's phase so that the opening
// and closing of polls are published as events even when nothing touches
// the poll.
type PollMonitor struct {
	checker  PhaseChecker
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPollMonitor creates a new PollMonitor service.
func NewPollMonitor(checker PhaseChecker, interval time.Duration) *PollMonitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &PollMonitor{checker: checker, interval: interval}
}

// Start begins monitoring. It returns an error if the service is already
// running.
func (pm *PollMonitor) Start(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.cancel != nil {
		return fmt.Errorf("service already running")
	}
	// record the current phases so only later changes are reported
	if _, err := pm.checker.CheckPhases(); err != nil {
		return fmt.Errorf("failed to read poll phases: %w", err)
	}
	ctx, pm.cancel = context.WithCancel(ctx)
	pm.done = make(chan struct{})
	go pm.monitor(ctx, pm.done)
	return nil
}

// Stop halts the monitoring service and waits for it to return.
func (pm *PollMonitor) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.cancel != nil {
		pm.cancel()
		<-pm.done
		pm.cancel = nil
	}
}

func (pm *PollMonitor) monitor(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changes, err := pm.checker.CheckPhases()
			if err != nil {
				log.Warnw("failed to check poll phases", "error", err.Error())
				continue
			}
			if len(changes) > 0 {
				log.Debugw("poll phases changed", "count", len(changes))
			}
		}
	}
}
