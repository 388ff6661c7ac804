package api

import (
	"net/http"

	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/poll"
)

// info returns the settings new polls are created with.
// GET /info
func (a *API) info(w http.ResponseWriter, r *http.Request) {
	amount, err := a.controller.PollsAmount()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	st := a.controller.Settings()
	httpWriteJSON(w, &InfoResponse{
		MerkleTreeDepth: st.MerkleTreeDepth,
		VerifierID:      st.VerifierID,
		Implementation:  st.Implementation,
		Implementations: poll.Implementations(),
		PollsAmount:     amount,
	})
}

// cipherKey returns the vote cipher secret to administrators.
// GET /config/cipher
func (a *API) cipherKey(w http.ResponseWriter, r *http.Request) {
	secret, err := a.controller.CipherSecret(ActorFrom(r.Context()))
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	httpWriteJSON(w, &CipherKeyResponse{CipherKey: string(secret)})
}

// setMerkleTreeDepth sets the tree depth of future polls.
// PUT /config/depth
func (a *API) setMerkleTreeDepth(w http.ResponseWriter, r *http.Request) {
	req := &DepthRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if err := a.controller.SetMerkleTreeDepth(ActorFrom(r.Context()), req.MerkleTreeDepth); err != nil {
		controllerError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// setVerifier replaces the proof verifier with one built from the given
// verifying keys.
// PUT /config/verifier
func (a *API) setVerifier(w http.ResponseWriter, r *http.Request) {
	if a.loader == nil {
		ErrVerifierNotSupported.Write(w)
		return
	}
	req := &VerifierRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if len(req.VerifyingKeys) == 0 {
		ErrMalformedBody.With("no verifying keys").Write(w)
		return
	}
	verifier, err := a.loader(req.VerifyingKeys)
	if err != nil {
		ErrInvalidVerifyingKey.WithErr(err).Write(w)
		return
	}
	if err := a.controller.SetVerifier(ActorFrom(r.Context()), verifier); err != nil {
		controllerError(err).Write(w)
		return
	}
	log.Infow("verifier replaced through the API", "keys", len(req.VerifyingKeys), "id", RequestID(r.Context()))
	httpWriteOK(w)
}

// setPollImplementation selects the rule set of future polls.
// PUT /config/implementation
func (a *API) setPollImplementation(w http.ResponseWriter, r *http.Request) {
	req := &ImplementationRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if err := a.controller.SetPollImplementation(ActorFrom(r.Context()), req.Implementation); err != nil {
		controllerError(err).Write(w)
		return
	}
	httpWriteOK(w)
}
