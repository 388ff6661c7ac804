package api

import (
	"math/big"
	"net/http"
	"time"

	"github.com/garagevoting/garage-node/poll"
	"github.com/garagevoting/garage-node/types"
)

// pollsAmount returns the number of polls. Poll ids are 0..pollsAmount-1.
// GET /polls
func (a *API) pollsAmount(w http.ResponseWriter, r *http.Request) {
	amount, err := a.controller.PollsAmount()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &PollsResponse{PollsAmount: amount})
}

// createPoll creates a poll owned by the caller.
// POST /polls
func (a *API) createPoll(w http.ResponseWriter, r *http.Request) {
	req := &CreatePollRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	p, err := a.controller.CreatePoll(ActorFrom(r.Context()), poll.CreatePollParams{
		Name:      req.Name,
		Options:   req.Options,
		StartTime: time.Unix(req.StartTimestamp, 0),
		EndTime:   time.Unix(req.EndTimestamp, 0),
	})
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	a.writePoll(w, p.ID(), http.StatusCreated)
}

// poll returns a poll and its current phase.
// GET /polls/{pollId}
func (a *API) poll(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	a.writePoll(w, id, http.StatusOK)
}

func (a *API) writePoll(w http.ResponseWriter, id uint64, status int) {
	p, err := a.controller.Poll(id)
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	record, err := p.Record()
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	phase, err := p.Phase()
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	httpWriteJSONStatus(w, status, pollResponse(record, phase))
}

// members returns the member commitments in registration order.
// GET /polls/{pollId}/members
func (a *API) members(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	p, err := a.controller.Poll(id)
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	leaves, err := p.Members()
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	root, err := p.Root()
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	res := &MembersResponse{
		Commitments: make([]*types.BigInt, len(leaves)),
		Root:        types.NewBigInt(root),
		Depth:       p.Depth(),
	}
	for i, l := range leaves {
		res.Commitments[i] = types.NewBigInt(l)
	}
	httpWriteJSON(w, res)
}

// addVoters registers member commitments. The batch is all or nothing.
// POST /polls/{pollId}/members
func (a *API) addVoters(w http.ResponseWriter, r *http.Request) {
	id, ok := pollIDParam(w, r)
	if !ok {
		return
	}
	req := &MembersRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	commitments := make([]*big.Int, len(req.Commitments))
	for i, c := range req.Commitments {
		if c == nil {
			ErrInvalidCommitment.Withf("commitment %d is null", i).Write(w)
			return
		}
		commitments[i] = c.MathBigInt()
	}
	added, err := a.controller.AddVoters(ActorFrom(r.Context()), id, commitments)
	if err != nil {
		controllerError(err).Write(w)
		return
	}
	res := &MembersAddedResponse{Members: make([]Member, len(added))}
	for i, m := range added {
		res.Members[i] = Member{
			Index:      m.Index,
			Commitment: types.NewBigInt(m.Commitment),
			Root:       types.NewBigInt(m.Root),
		}
	}
	httpWriteJSON(w, res)
}
