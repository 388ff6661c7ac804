package poll

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/events"
	"github.com/garagevoting/garage-node/types"
)

func TestConfigurationOperations(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, &fakeVerifier{id: []byte{0xaa}, unsupported: map[int]bool{24: true}})
	_, all := h.bus.Subscribe(events.All)

	st := h.ctrl.Settings()
	c.Assert(st.MerkleTreeDepth, qt.Equals, 20)
	c.Assert(st.VerifierID, qt.DeepEquals, types.HexBytes{0xaa, 20})
	c.Assert(st.Implementation, qt.Equals, ImplementationV1)

	c.Assert(h.ctrl.SetMerkleTreeDepth(member, 16), qt.ErrorIs, ErrAccessDenied)
	c.Assert(h.ctrl.SetMerkleTreeDepth(admin, 8), qt.ErrorIs, ErrInvalidConfig)
	c.Assert(h.ctrl.SetMerkleTreeDepth(admin, 33), qt.ErrorIs, ErrInvalidConfig)
	c.Assert(h.ctrl.SetMerkleTreeDepth(admin, 24), qt.ErrorIs, ErrUnsupportedDepth)

	c.Assert(h.ctrl.SetMerkleTreeDepth(admin, 16), qt.IsNil)
	evt := receive(c, all)
	c.Assert(evt.Type, qt.Equals, EventMerkleTreeDepthChanged)
	c.Assert(evt.Data, qt.DeepEquals, MerkleTreeDepthChanged{Old: 20, New: 16})

	p := h.newPoll(c, 0, time.Hour)
	c.Assert(p.Depth(), qt.Equals, 16)
	c.Assert(receive(c, all).Type, qt.Equals, EventPollCreated)

	c.Assert(h.ctrl.SetVerifier(member, &fakeVerifier{id: []byte{0xbb}}), qt.ErrorIs, ErrAccessDenied)
	c.Assert(h.ctrl.SetVerifier(admin, nil), qt.ErrorIs, ErrInvalidConfig)
	c.Assert(h.ctrl.SetVerifier(admin, &fakeVerifier{unsupported: map[int]bool{16: true}}), qt.ErrorIs, ErrUnsupportedDepth)
	c.Assert(h.ctrl.SetVerifier(admin, &fakeVerifier{id: []byte{0xbb}}), qt.IsNil)
	evt = receive(c, all)
	c.Assert(evt.Type, qt.Equals, EventVerifierChanged)
	c.Assert(evt.Data, qt.DeepEquals, VerifierChanged{Old: types.HexBytes{0xaa, 16}, New: types.HexBytes{0xbb, 16}})

	c.Assert(h.ctrl.SetPollImplementation(member, ImplementationV1Strict), qt.ErrorIs, ErrAccessDenied)
	c.Assert(h.ctrl.SetPollImplementation(admin, "v2"), qt.ErrorIs, ErrInvalidConfig)
	c.Assert(h.ctrl.SetPollImplementation(admin, ImplementationV1Strict), qt.IsNil)
	evt = receive(c, all)
	c.Assert(evt.Type, qt.Equals, EventPollImplementationChanged)
	c.Assert(evt.Data, qt.DeepEquals, PollImplementationChanged{Old: ImplementationV1, New: ImplementationV1Strict})

	// settings survive a restart
	reopened, err := New(Config{
		Storage:  h.storage,
		Verifier: &fakeVerifier{id: []byte{0xbb}},
		Checker:  access.RoleChecker{},
		Clock:    h.clock.Now,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(reopened.Settings(), qt.DeepEquals, types.Settings{
		MerkleTreeDepth: 16,
		VerifierID:      types.HexBytes{0xbb, 16},
		Implementation:  ImplementationV1Strict,
	})
	c.Assert(Implementations(), qt.DeepEquals, []string{ImplementationV1, ImplementationV1Strict})
}

func TestNewControllerErrors(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, nil)

	_, err := New(Config{Storage: h.storage, Verifier: &fakeVerifier{}})
	c.Assert(err, qt.ErrorMatches, "storage, verifier and access checker are required")

	_, err = New(Config{
		Storage:  newHarness(c, nil).storage,
		Verifier: &fakeVerifier{unsupported: map[int]bool{20: true}},
		Checker:  access.RoleChecker{},
	})
	c.Assert(err, qt.ErrorIs, ErrUnsupportedDepth)
}

func TestCheckPhases(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, nil)
	_, phases := h.bus.Subscribe(EventPollPhaseChanged)

	p := h.newPoll(c, time.Hour, time.Hour)
	changes, err := h.ctrl.CheckPhases()
	c.Assert(err, qt.IsNil)
	c.Assert(changes, qt.HasLen, 0)

	h.clock.Advance(time.Hour)
	changes, err = h.ctrl.CheckPhases()
	c.Assert(err, qt.IsNil)
	c.Assert(changes, qt.DeepEquals, []PollPhaseChanged{{PollID: p.ID(), Old: types.PollPhaseCreated, New: types.PollPhaseOpen}})
	c.Assert(receive(c, phases).Data, qt.DeepEquals, changes[0])

	h.clock.Advance(time.Hour)
	changes, err = h.ctrl.CheckPhases()
	c.Assert(err, qt.IsNil)
	c.Assert(changes, qt.DeepEquals, []PollPhaseChanged{{PollID: p.ID(), Old: types.PollPhaseOpen, New: types.PollPhaseClosed}})

	changes, err = h.ctrl.CheckPhases()
	c.Assert(err, qt.IsNil)
	c.Assert(changes, qt.HasLen, 0)
}

func TestCipherSecret(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, nil)

	_, err := h.ctrl.CipherSecret(member)
	c.Assert(err, qt.ErrorIs, ErrAccessDenied)
	secret, err := h.ctrl.CipherSecret(admin)
	c.Assert(err, qt.IsNil)
	c.Assert(string(secret), qt.Equals, "test secret")

	noCipher, err := New(Config{
		Storage:  h.storage,
		Verifier: &fakeVerifier{},
		Checker:  access.RoleChecker{},
	})
	c.Assert(err, qt.IsNil)
	_, err = noCipher.CipherSecret(admin)
	c.Assert(err, qt.ErrorIs, ErrNoCipher)
}
