package client

import (
	"context"
	"math/big"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/api"
	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/db/metadb"
	"github.com/garagevoting/garage-node/internal/testutil"
	"github.com/garagevoting/garage-node/poll"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/storage"
	"github.com/garagevoting/garage-node/types"
)

type acceptAll struct{}

func (acceptAll) VerifyProof(*prover.Proof, int) bool { return true }

func (acceptAll) ID(depth int) ([]byte, error) { return []byte{byte(depth)}, nil }

func TestClient(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0).UTC()
	clock := testutil.NewClock(t0)
	dir := access.NewMemoryDirectory(&access.User{
		ID: "alice", Role: access.RoleAdmin, TokenHash: access.HashToken("token"),
	})
	cipher, err := ballot.NewCipher([]byte("client secret"), ballot.WithIterations(10))
	c.Assert(err, qt.IsNil)
	ctrl, err := poll.New(poll.Config{
		Storage:  storage.New(metadb.NewTest(c)),
		Verifier: acceptAll{},
		Checker:  access.NewDirectoryChecker(dir, 0),
		Cipher:   cipher,
		Clock:    clock.Now,
	})
	c.Assert(err, qt.IsNil)
	srv, err := api.New(&api.APIConfig{Host: "127.0.0.1", Controller: ctrl, Directory: dir})
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	cli, err := New("http://" + srv.Addr())
	c.Assert(err, qt.IsNil)
	cli.SetRetries(1)

	_, err = cli.CreatePoll(ctx, "p", []string{"yes", "no"}, t0, t0.Add(time.Hour))
	c.Assert(IsCode(err, api.ErrAccessDenied), qt.IsTrue, qt.Commentf("%v", err))

	cli.SetToken("token")
	created, err := cli.CreatePoll(ctx, "p", []string{"yes", "no"}, t0, t0.Add(time.Hour))
	c.Assert(err, qt.IsNil)
	c.Assert(created.Phase, qt.Equals, types.PollPhaseOpenName)

	amount, err := cli.PollsAmount(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(amount, qt.Equals, uint64(1))

	ids := testutil.Identities(t, 2)
	added, err := cli.AddVoters(ctx, created.ID, []*big.Int{ids[0].Commitment(), ids[1].Commitment()})
	c.Assert(err, qt.IsNil)
	c.Assert(added, qt.HasLen, 2)

	members, err := cli.Members(ctx, created.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(members.Root, qt.DeepEquals, added[1].Root)

	ct, err := cipher.EncryptVote(1)
	c.Assert(err, qt.IsNil)
	commitment := ballot.CalculateVoteHash(ct)
	scope := prover.ExternalNullifier(created.ID)
	nullifier := ids[0].NullifierHash(scope)
	proof := &prover.Proof{
		MerkleRoot:        members.Root,
		NullifierHash:     types.NewBigInt(nullifier),
		ExternalNullifier: types.NewBigInt(scope),
		Signal:            types.NewBigInt(prover.SignalFromVoteCommitment(commitment)),
		Depth:             members.Depth,
		Proof:             types.HexBytes{1},
	}
	vote, err := cli.CastVote(ctx, created.ID, commitment, nullifier, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(vote.Index, qt.Equals, uint64(0))

	_, err = cli.CastVote(ctx, created.ID, commitment, nullifier, proof)
	c.Assert(IsCode(err, api.ErrNullifierReused), qt.IsTrue, qt.Commentf("%v", err))

	votes, err := cli.EncryptedVotes(ctx, created.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 1)
	c.Assert(votes[0], qt.Equals, commitment)
	records, err := cli.VoteRecords(ctx, created.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(records[0].NullifierHash.MathBigInt().Cmp(nullifier), qt.Equals, 0)

	clock.Advance(time.Hour)
	revealed, err := cli.RevealVote(ctx, created.ID, ct)
	c.Assert(err, qt.IsNil)
	c.Assert(revealed, qt.Equals, commitment)
	results, err := cli.Results(ctx, created.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(results.Counts, qt.DeepEquals, []uint64{0, 1})

	_, err = cli.Poll(ctx, 42)
	c.Assert(IsCode(err, api.ErrPollNotFound), qt.IsTrue)
	var re *ResponseError
	c.Assert(err, qt.ErrorAs, &re)
	c.Assert(re.Status, qt.Equals, 404)

	c.Assert(cli.SetMerkleTreeDepth(ctx, 16), qt.IsNil)
	info, err := cli.Info(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(info.MerkleTreeDepth, qt.Equals, 16)
	c.Assert(cli.SetPollImplementation(ctx, poll.ImplementationV1Strict), qt.IsNil)
	err = cli.SetVerifier(ctx, []api.VerifyingKey{{Depth: 16, Key: types.HexBytes{1}}})
	c.Assert(IsCode(err, api.ErrVerifierNotSupported), qt.IsTrue)
}

func TestNewUnreachable(t *testing.T) {
	c := qt.New(t)
	_, err := New("http://127.0.0.1:1")
	c.Assert(err, qt.ErrorMatches, "http request ultimately failed after retries: .*")
}
