package poll

import (
	"fmt"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/types"
)

func validateDepth(depth int) error {
	if depth < MinTreeDepth || depth > MaxTreeDepth {
		return fmt.Errorf("%w: tree depth %d outside [%d, %d]", ErrInvalidConfig, depth, MinTreeDepth, MaxTreeDepth)
	}
	return nil
}

// Settings returns a copy of the current node settings.
func (c *Controller) Settings() types.Settings {
	c.settingsLock.RLock()
	defer c.settingsLock.RUnlock()
	st := c.settings
	st.VerifierID = append(types.HexBytes(nil), c.settings.VerifierID...)
	return st
}

// updateSettings persists fn's changes to the settings. The caller holds
// settingsLock.
func (c *Controller) updateSettings(fn func(*types.Settings)) (old types.Settings, err error) {
	old = c.settings
	next := c.settings
	fn(&next)
	if err := c.storage.SetSettings(&next); err != nil {
		return old, fmt.Errorf("store settings: %w", err)
	}
	c.settings = next
	return old, nil
}

// CipherSecret returns the vote cipher secret administrators hand to
// members so they can encrypt their ballots.
func (c *Controller) CipherSecret(actor access.Actor) ([]byte, error) {
	if err := c.requireAdmin(actor, "cipherSecret"); err != nil {
		return nil, err
	}
	if c.cipher == nil {
		return nil, ErrNoCipher
	}
	return c.cipher.Secret(), nil
}

// SetMerkleTreeDepth sets the tree depth of polls created from now on. The
// current verifier must have a key for that depth.
func (c *Controller) SetMerkleTreeDepth(actor access.Actor, depth int) error {
	if err := c.requireAdmin(actor, "setMerkleTreeDepth"); err != nil {
		return err
	}
	if err := validateDepth(depth); err != nil {
		return err
	}
	c.settingsLock.Lock()
	defer c.settingsLock.Unlock()
	id, err := c.verifier.ID(depth)
	if err != nil {
		return fmt.Errorf("%w %d: %v", ErrUnsupportedDepth, depth, err)
	}
	old, err := c.updateSettings(func(st *types.Settings) {
		st.MerkleTreeDepth = depth
		st.VerifierID = id
	})
	if err != nil {
		return err
	}
	log.Infow("merkle tree depth changed", "old", old.MerkleTreeDepth, "new", depth)
	c.publish(EventMerkleTreeDepthChanged, MerkleTreeDepthChanged{Old: old.MerkleTreeDepth, New: depth})
	return nil
}

// SetVerifier replaces the proof verifier. It must support the configured
// tree depth; votes on polls of a depth it has no key for are rejected.
func (c *Controller) SetVerifier(actor access.Actor, v Verifier) error {
	if err := c.requireAdmin(actor, "setVerifier"); err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("%w: nil verifier", ErrInvalidConfig)
	}
	c.settingsLock.Lock()
	defer c.settingsLock.Unlock()
	id, err := v.ID(c.settings.MerkleTreeDepth)
	if err != nil {
		return fmt.Errorf("%w %d: %v", ErrUnsupportedDepth, c.settings.MerkleTreeDepth, err)
	}
	old, err := c.updateSettings(func(st *types.Settings) { st.VerifierID = id })
	if err != nil {
		return err
	}
	c.verifier = v
	log.Infow("verifier changed", "old", old.VerifierID.String(), "new", types.HexBytes(id).String())
	c.publish(EventVerifierChanged, VerifierChanged{Old: old.VerifierID, New: id})
	return nil
}

// SetPollImplementation selects the rule set of polls created from now on.
func (c *Controller) SetPollImplementation(actor access.Actor, name string) error {
	if err := c.requireAdmin(actor, "setPollImplementation"); err != nil {
		return err
	}
	if _, err := LookupImplementation(name); err != nil {
		return err
	}
	c.settingsLock.Lock()
	defer c.settingsLock.Unlock()
	old, err := c.updateSettings(func(st *types.Settings) { st.Implementation = name })
	if err != nil {
		return err
	}
	log.Infow("poll implementation changed", "old", old.Implementation, "new", name)
	c.publish(EventPollImplementationChanged, PollImplementationChanged{Old: old.Implementation, New: name})
	return nil
}
