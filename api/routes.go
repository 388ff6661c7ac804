package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// Info endpoint
	InfoEndpoint = "/info" // GET: node settings

	// Metrics endpoint
	MetricsEndpoint = "/metrics" // GET: prometheus metrics

	// Configuration endpoints, administrators only
	ConfigDepthEndpoint          = "/config/depth"          // PUT: set the merkle tree depth
	ConfigVerifierEndpoint       = "/config/verifier"       // PUT: replace the verifier
	ConfigImplementationEndpoint = "/config/implementation" // PUT: set the poll implementation
	ConfigCipherEndpoint         = "/config/cipher"         // GET: vote cipher secret, administrators only

	// Poll endpoints
	PollURLParam           = "pollId"                                 // URL parameter for poll ID
	PollsEndpoint          = "/polls"                                 // GET: polls amount, POST: create poll
	PollEndpoint           = PollsEndpoint + "/{" + PollURLParam + "}" // GET: poll info
	PollMembersEndpoint    = PollEndpoint + "/members"                // GET: member commitments, POST: add voters
	PollVotesEndpoint      = PollEndpoint + "/votes"                  // GET: encrypted votes, POST: cast vote
	PollRevealsEndpoint    = PollEndpoint + "/reveals"                // POST: reveal a vote ciphertext
	PollResultsEndpoint    = PollEndpoint + "/results"                // GET: tally, administrators only
	PollVoteRecordsParam   = "records"                                // URL query param to list full vote records
	PollVoteRecordsEnabled = "true"
)

// EndpointWithParam creates an endpoint URL by replacing the parameter
// placeholder with the actual value. Used to build fully qualified
// endpoint URLs.
func EndpointWithParam(path, key, param string) string {
	rawKey := fmt.Sprintf("{%s}", key)

	// Always try to replace the placeholder, even if it's after the '?'
	if strings.Contains(path, rawKey) {
		return strings.Replace(path, rawKey, url.PathEscape(param), 1)
	}

	// Fallback: add as query param
	escapedKey := url.QueryEscape(key)
	escapedVal := url.QueryEscape(param)

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%s%s=%s", path, sep, escapedKey, escapedVal)
}

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
	MetricsEndpoint,
}
