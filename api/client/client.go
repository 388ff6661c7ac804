// Package client is a typed HTTP client for the poll API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/garagevoting/garage-node/api"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/types"
)

const (
	// DefaultRetries is the number of attempts when the connection fails.
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 30 * time.Second

	retryDelay = 500 * time.Millisecond
)

// ResponseError is a non 2xx answer of the API.
type ResponseError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *ResponseError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("API error: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error %d (status %d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an API answer carrying the code of target.
func IsCode(err error, target api.Error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.Code == target.Code
}

// HTTPclient is the poll API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	token   string
	retries int
}

// New returns a client for host after checking the host answers.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	c := &HTTPclient{
		c:       &http.Client{Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	if err := c.Ping(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// SetToken sets the bearer token sent with every request.
func (c *HTTPclient) SetToken(token string) {
	c.token = token
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = max(n, 1)
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
}

// Request performs a request to the endpoint built from urlPath, sending
// jsonBody when not nil. Connection failures are retried; any answer,
// successful or not, is returned as is.
func (c *HTTPclient) Request(ctx context.Context, method string, jsonBody any, params url.Values,
	urlPath ...string,
) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	log.Debugw("http client request", "type", method, "url", u.String(), "bytes", len(body))

	var (
		resp *http.Response
		err  error
	)
	for i := 1; i <= c.retries; i++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err = c.c.Do(req)
		if err == nil {
			break
		}
		log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after retries: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err.Error())
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// call runs a request and decodes a successful answer into out, or turns
// the error answer into a *ResponseError.
func (c *HTTPclient) call(ctx context.Context, method string, in, out any, params url.Values, urlPath ...string) error {
	data, status, err := c.Request(ctx, method, in, params, urlPath...)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		re := &ResponseError{Status: status}
		if err := json.Unmarshal(data, re); err != nil || re.Message == "" {
			re.Message = string(bytes.TrimSpace(data))
		}
		return re
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func pollPath(endpoint string, pollID uint64) string {
	return api.EndpointWithParam(endpoint, api.PollURLParam, strconv.FormatUint(pollID, 10))
}

func (c *HTTPclient) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, nil, nil, nil, api.PingEndpoint)
}

func (c *HTTPclient) Info(ctx context.Context) (*api.InfoResponse, error) {
	res := &api.InfoResponse{}
	return res, c.call(ctx, http.MethodGet, nil, res, nil, api.InfoEndpoint)
}

// CipherKey returns the secret members build their vote cipher from. Only
// administrators may read it.
func (c *HTTPclient) CipherKey(ctx context.Context) (string, error) {
	res := &api.CipherKeyResponse{}
	if err := c.call(ctx, http.MethodGet, nil, res, nil, api.ConfigCipherEndpoint); err != nil {
		return "", err
	}
	return res.CipherKey, nil
}

func (c *HTTPclient) SetMerkleTreeDepth(ctx context.Context, depth int) error {
	return c.call(ctx, http.MethodPut, &api.DepthRequest{MerkleTreeDepth: depth}, nil, nil, api.ConfigDepthEndpoint)
}

func (c *HTTPclient) SetPollImplementation(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodPut, &api.ImplementationRequest{Implementation: name}, nil, nil,
		api.ConfigImplementationEndpoint)
}

func (c *HTTPclient) SetVerifier(ctx context.Context, keys []api.VerifyingKey) error {
	return c.call(ctx, http.MethodPut, &api.VerifierRequest{VerifyingKeys: keys}, nil, nil, api.ConfigVerifierEndpoint)
}

// PollsAmount returns the number of polls. Poll ids are 0..PollsAmount-1.
func (c *HTTPclient) PollsAmount(ctx context.Context) (uint64, error) {
	res := &api.PollsResponse{}
	if err := c.call(ctx, http.MethodGet, nil, res, nil, api.PollsEndpoint); err != nil {
		return 0, err
	}
	return res.PollsAmount, nil
}

func (c *HTTPclient) CreatePoll(ctx context.Context, name string, options []string, start, end time.Time) (*api.PollResponse, error) {
	res := &api.PollResponse{}
	return res, c.call(ctx, http.MethodPost, &api.CreatePollRequest{
		Name:           name,
		Options:        options,
		StartTimestamp: start.Unix(),
		EndTimestamp:   end.Unix(),
	}, res, nil, api.PollsEndpoint)
}

func (c *HTTPclient) Poll(ctx context.Context, pollID uint64) (*api.PollResponse, error) {
	res := &api.PollResponse{}
	return res, c.call(ctx, http.MethodGet, nil, res, nil, pollPath(api.PollEndpoint, pollID))
}

func (c *HTTPclient) Members(ctx context.Context, pollID uint64) (*api.MembersResponse, error) {
	res := &api.MembersResponse{}
	return res, c.call(ctx, http.MethodGet, nil, res, nil, pollPath(api.PollMembersEndpoint, pollID))
}

// AddVoters registers commitments in one all or nothing batch.
func (c *HTTPclient) AddVoters(ctx context.Context, pollID uint64, commitments []*big.Int) ([]api.Member, error) {
	req := &api.MembersRequest{Commitments: make([]*types.BigInt, len(commitments))}
	for i, cm := range commitments {
		req.Commitments[i] = types.NewBigInt(cm)
	}
	res := &api.MembersAddedResponse{}
	if err := c.call(ctx, http.MethodPost, req, res, nil, pollPath(api.PollMembersEndpoint, pollID)); err != nil {
		return nil, err
	}
	return res.Members, nil
}

func (c *HTTPclient) CastVote(ctx context.Context, pollID uint64, voteCommitment common.Hash,
	nullifierHash *big.Int, proof *prover.Proof,
) (*api.VoteResponse, error) {
	res := &api.VoteResponse{}
	return res, c.call(ctx, http.MethodPost, &api.VoteRequest{
		VoteCommitment: voteCommitment,
		NullifierHash:  types.NewBigInt(nullifierHash),
		Proof:          proof,
	}, res, nil, pollPath(api.PollVotesEndpoint, pollID))
}

// EncryptedVotes returns the accepted vote commitments in acceptance order.
func (c *HTTPclient) EncryptedVotes(ctx context.Context, pollID uint64) ([]common.Hash, error) {
	res := &api.VotesResponse{}
	if err := c.call(ctx, http.MethodGet, nil, res, nil, pollPath(api.PollVotesEndpoint, pollID)); err != nil {
		return nil, err
	}
	return res.Votes, nil
}

// VoteRecords returns the accepted votes with their nullifier hashes and
// roots.
func (c *HTTPclient) VoteRecords(ctx context.Context, pollID uint64) ([]*types.VoteRecord, error) {
	res := &api.VotesResponse{}
	params := url.Values{api.PollVoteRecordsParam: []string{api.PollVoteRecordsEnabled}}
	if err := c.call(ctx, http.MethodGet, nil, res, params, pollPath(api.PollVotesEndpoint, pollID)); err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (c *HTTPclient) RevealVote(ctx context.Context, pollID uint64, ciphertext []byte) (common.Hash, error) {
	res := &api.RevealResponse{}
	if err := c.call(ctx, http.MethodPost, &api.RevealRequest{Ciphertext: ciphertext}, res, nil,
		pollPath(api.PollRevealsEndpoint, pollID)); err != nil {
		return common.Hash{}, err
	}
	return res.VoteCommitment, nil
}

func (c *HTTPclient) Results(ctx context.Context, pollID uint64) (*api.ResultsResponse, error) {
	res := &api.ResultsResponse{}
	return res, c.call(ctx, http.MethodGet, nil, res, nil, pollPath(api.PollResultsEndpoint, pollID))
}
