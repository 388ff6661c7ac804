package poll

import (
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/types"
)

// Phase returns the current phase of a poll.
func (c *Controller) Phase(pollID uint64) (types.PollPhase, error) {
	record, err := c.record(pollID)
	if err != nil {
		return 0, err
	}
	return record.PhaseAt(c.now()), nil
}

// CheckPhases compares every poll's phase with the one seen on the previous
// call and publishes a PollPhaseChanged event per difference. The first call
// after a restart only records the phases of polls not created by this
// controller.
func (c *Controller) CheckPhases() ([]PollPhaseChanged, error) {
	amount, err := c.storage.PollsAmount()
	if err != nil {
		return nil, err
	}
	now := c.now()
	var changes []PollPhaseChanged
	for id := range amount {
		record, err := c.storage.Poll(id)
		if err != nil {
			log.Warnw("could not load poll", "pollId", id, "error", err.Error())
			continue
		}
		phase := record.PhaseAt(now)
		prev, seen := c.phases.Swap(id, phase)
		if !seen || prev.(types.PollPhase) == phase {
			continue
		}
		change := PollPhaseChanged{PollID: id, Old: prev.(types.PollPhase), New: phase}
		changes = append(changes, change)
		log.Infow("poll phase changed", "pollId", id, "old", change.Old.String(), "new", phase.String())
		c.publish(EventPollPhaseChanged, change)
	}
	return changes, nil
}
