package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/garagevoting/garage-node/log"
)

// castVote submits an anonymous vote. No bearer token is needed; the proof
// shows membership.
// POST /polls/{pollId}/votes
func (a *API) castVote(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	req := &VoteRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if req.NullifierHash == nil || req.Proof == nil {
		ErrMalformedBody.With("nullifierHash and proof are required").Write(w)
		return
	}
	vote, err := a.controller.CastVote(id, req.VoteCommitment, req.NullifierHash.MathBigInt(), req.Proof)
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoteResponse{Index: vote.Index, VoteCommitment: vote.VoteCommitment})
}

// encryptedVotes lists the accepted vote commitments in acceptance order.
// With ?records=true the full vote records are included.
// GET /polls/{pollId}/votes
func (a *API) encryptedVotes(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	records, err := a.controller.Votes(id)
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	res := &VotesResponse{Votes: make([]common.Hash, len(records))}
	for i, v := range records {
		res.Votes[i] = v.VoteCommitment
	}
	if r.URL.Query().Get(PollVoteRecordsParam) == PollVoteRecordsEnabled {
		res.Records = records
	}
	httpWriteJSON(w, res)
}

// revealVote publishes the ciphertext of an accepted vote after the poll
// closed. Anyone holding the ciphertext may reveal it.
// POST /polls/{pollId}/reveals
func (a *API) revealVote(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	req := &RevealRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	if len(req.Ciphertext) == 0 {
		ErrMalformedBody.With("empty ciphertext").Write(w)
		return
	}
	commitment, err := a.controller.RevealVote(id, req.Ciphertext)
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	log.Debugw("vote revealed", "pollId", id, "voteCommitment", commitment.Hex())
	httpWriteJSON(w, &RevealResponse{VoteCommitment: commitment})
}

// results tallies the revealed votes of a closed poll.
// GET /polls/{pollId}/results
func (a *API) results(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	p, err := a.controller.Poll(id)
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	res, err := a.controller.Results(ActorFrom(r.Context()), id)
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	httpWriteJSON(w, &ResultsResponse{
		Options:    p.Options(),
		Counts:     res.Counts,
		Invalid:    res.Invalid,
		Unrevealed: res.Unrevealed,
	})
}
