package poll

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/internal/testutil"
)

func TestRevealAndResults(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, nil)
	p := h.newPoll(c, 0, time.Hour)
	ids := testutil.Identities(c, 4)
	h.register(c, p, ids)

	choices := []int{0, 2, 2, 1}
	ciphertexts := make([][]byte, len(ids))
	for i, id := range ids {
		ct, err := h.cipher.EncryptVoteFor(choices[i], len(p.Options()))
		c.Assert(err, qt.IsNil)
		ciphertexts[i] = ct
		vote := ballot.CalculateVoteHash(ct)
		_, err = p.CastVote(vote, nullifierOf(p, id), fakeProof(c, p, id, vote))
		c.Assert(err, qt.IsNil)
	}

	_, err := h.ctrl.RevealVote(p.ID(), ciphertexts[0])
	c.Assert(err, qt.ErrorIs, ErrPollNotClosed)
	_, err = h.ctrl.Results(admin, p.ID())
	c.Assert(err, qt.ErrorIs, ErrPollNotClosed)

	h.clock.Advance(time.Hour)
	_, revealed := h.bus.Subscribe(EventVoteRevealed)

	// the last member keeps the ciphertext to themselves
	for _, ct := range ciphertexts[:3] {
		commitment, err := h.ctrl.RevealVote(p.ID(), ct)
		c.Assert(err, qt.IsNil)
		c.Assert(receive(c, revealed).Data.(VoteRevealed).VoteCommitment, qt.Equals, commitment)
	}
	_, err = h.ctrl.RevealVote(p.ID(), ciphertexts[0])
	c.Assert(err, qt.ErrorIs, ErrAlreadyRevealed)
	_, err = h.ctrl.RevealVote(p.ID(), []byte("never voted"))
	c.Assert(err, qt.ErrorIs, ErrUnknownVote)

	_, err = h.ctrl.Results(member, p.ID())
	c.Assert(err, qt.ErrorIs, ErrAccessDenied)
	res, err := h.ctrl.Results(admin, p.ID())
	c.Assert(err, qt.IsNil)
	c.Assert(res, qt.DeepEquals, &ballot.Result{Counts: []uint64{1, 0, 2}, Unrevealed: 1})
}
