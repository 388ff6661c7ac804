package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/api"
	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/db/metadb"
	"github.com/garagevoting/garage-node/poll"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/storage"
)

type acceptAll struct{}

func (acceptAll) VerifyProof(*prover.Proof, int) bool { return true }

func (acceptAll) ID(depth int) ([]byte, error) { return []byte{byte(depth)}, nil }

// startNode serves a node whose vote cipher secret is generated and kept in
// storage, and returns its URL along with the node cipher.
func startNode(c *qt.C) (string, *ballot.Cipher) {
	dir := access.NewMemoryDirectory(&access.User{
		ID: "admin", Role: access.RoleAdmin, TokenHash: access.HashToken("admin-token"),
	})
	stg := storage.New(metadb.NewTest(c))
	secret, err := stg.FetchOrGenerateCipherSecret(ballot.GenerateSecret)
	c.Assert(err, qt.IsNil)
	cipher, err := ballot.NewCipher(secret)
	c.Assert(err, qt.IsNil)
	ctrl, err := poll.New(poll.Config{
		Storage:  stg,
		Verifier: acceptAll{},
		Checker:  access.NewDirectoryChecker(dir, 0),
		Cipher:   cipher,
	})
	c.Assert(err, qt.IsNil)
	srv, err := api.New(&api.APIConfig{Host: "127.0.0.1", Controller: ctrl, Directory: dir})
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return "http://" + srv.Addr(), cipher
}

func run(c *qt.C, out any, args ...string) error {
	cmd := rootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		return err
	}
	if out != nil {
		c.Assert(json.Unmarshal(buf.Bytes(), out), qt.IsNil, qt.Commentf("%s", buf.String()))
	}
	return nil
}

func TestIdentityCommands(t *testing.T) {
	c := qt.New(t)
	file := filepath.Join(t.TempDir(), "id.json")

	var created struct {
		File       string `json:"file"`
		Commitment string `json:"commitment"`
	}
	c.Assert(run(c, &created, "identity", "new", "--out", file), qt.IsNil)
	c.Assert(created.File, qt.Equals, file)

	var shown struct {
		Commitment string `json:"commitment"`
	}
	c.Assert(run(c, &shown, "identity", "show", "--identity", file), qt.IsNil)
	c.Assert(shown.Commitment, qt.Equals, created.Commitment)

	c.Assert(run(c, nil, "identity", "show", "--identity", filepath.Join(t.TempDir(), "missing.json")),
		qt.ErrorMatches, "read identity: .*")
}

func TestCipherKeyCommand(t *testing.T) {
	c := qt.New(t)
	host, nodeCipher := startNode(c)

	err := run(c, nil, "--host", host, "--token", "", "cipher-key")
	c.Assert(err, qt.ErrorMatches, ".*access denied.*")

	var res struct {
		CipherKey string `json:"cipherKey"`
	}
	c.Assert(run(c, &res, "--host", host, "--token", "admin-token", "cipher-key"), qt.IsNil)
	c.Assert(res.CipherKey, qt.HasLen, 2*ballot.SecretLength)

	memberCipher, err := newVoteCipher(res.CipherKey + "\n")
	c.Assert(err, qt.IsNil)
	ciphertext, err := memberCipher.EncryptVoteFor(2, 3)
	c.Assert(err, qt.IsNil)
	option, err := nodeCipher.DecryptVote(ciphertext)
	c.Assert(err, qt.IsNil)
	c.Assert(option, qt.Equals, 2)

	_, err = newVoteCipher("  ")
	c.Assert(err, qt.ErrorMatches, "--cipher-key is required")
}

func TestPollCommands(t *testing.T) {
	c := qt.New(t)
	host, _ := startNode(c)
	file := filepath.Join(t.TempDir(), "id.json")
	var id struct {
		Commitment string `json:"commitment"`
	}
	c.Assert(run(c, &id, "identity", "new", "--out", file), qt.IsNil)

	err := run(c, nil, "--host", host, "--token", "", "poll", "create", "--name", "p", "--options", "a,b")
	c.Assert(err, qt.ErrorMatches, ".*access denied.*")

	var p api.PollResponse
	c.Assert(run(c, &p, "--host", host, "--token", "admin-token",
		"poll", "create", "--name", "p", "--options", "a,b", "--duration", "1h"), qt.IsNil)
	c.Assert(p.Options, qt.DeepEquals, []string{"a", "b"})
	c.Assert(p.EndTimestamp-p.StartTimestamp, qt.Equals, int64(3600))

	var added []api.Member
	c.Assert(run(c, &added, "--host", host, "--token", "admin-token",
		"poll", "add-voters", "0", id.Commitment), qt.IsNil)
	c.Assert(added, qt.HasLen, 1)
	c.Assert(added[0].Index, qt.Equals, 0)

	var shown api.PollResponse
	c.Assert(run(c, &shown, "--host", host, "poll", "show", "0"), qt.IsNil)
	c.Assert(shown.Members, qt.Equals, uint64(1))

	var votes []string
	c.Assert(run(c, &votes, "--host", host, "poll", "votes", "0"), qt.IsNil)
	c.Assert(votes, qt.HasLen, 0)

	c.Assert(run(c, nil, "--host", host, "poll", "show", "x"), qt.ErrorMatches, `invalid poll id "x"`)
}

func TestParseStart(t *testing.T) {
	c := qt.New(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	got, err := parseStart("", now)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, now)

	got, err = parseStart("90m", now)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, now.Add(90*time.Minute))

	got, err = parseStart("2024-01-02T03:04:05Z", now)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Unix(), qt.Equals, int64(1704164645))

	_, err = parseStart("tomorrow", now)
	c.Assert(err, qt.ErrorMatches, `invalid start "tomorrow".*`)
}
