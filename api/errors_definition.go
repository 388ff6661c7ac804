//nolint:lll
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/group"
	"github.com/garagevoting/garage-node/poll"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 401, 403, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXXX or 5XXXX.
// If you notice there's a gap, DON'T fill it in: that code was used in the past and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound     = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody        = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedParam       = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrUnauthenticated      = Error{Code: 40004, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid or unknown bearer token")}
	ErrAccessDenied         = Error{Code: 40005, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("access denied")}
	ErrInvalidPoll          = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid poll parameters")}
	ErrPollNotFound         = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("poll not found")}
	ErrInvalidCommitment    = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid member commitment")}
	ErrMemberExists         = Error{Code: 40009, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("member already registered")}
	ErrTreeFull             = Error{Code: 40010, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("membership tree is full")}
	ErrRegistrationClosed   = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("poll registration closed")}
	ErrTimeWindow           = Error{Code: 40012, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("vote outside the poll time window")}
	ErrNullifierReused      = Error{Code: 40013, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("nullifier hash already used")}
	ErrInvalidProof         = Error{Code: 40014, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid proof")}
	ErrStaleRoot            = Error{Code: 40015, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("stale merkle tree root")}
	ErrPollNotClosed        = Error{Code: 40016, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("poll not closed yet")}
	ErrUnknownVote          = Error{Code: 40017, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("ciphertext does not match an accepted vote")}
	ErrAlreadyRevealed      = Error{Code: 40018, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("vote already revealed")}
	ErrInvalidConfig        = Error{Code: 40019, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid configuration value")}
	ErrUnsupportedDepth     = Error{Code: 40020, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("verifier does not support the tree depth")}
	ErrInvalidVerifyingKey  = Error{Code: 40021, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid verifying key")}
	ErrVerifierNotSupported = Error{Code: 40022, HTTPstatus: http.StatusNotImplemented, Err: fmt.Errorf("verifier replacement not enabled on this node")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrNoCipher                   = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("vote cipher not configured")}
	ErrDirectoryUnavailable       = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("member directory unavailable")}
)

// controllerErrors maps controller sentinels to API errors. Order matters:
// ErrStaleRoot also matches ErrInvalidProof.
var controllerErrors = []struct {
	target error
	apiErr Error
}{
	{poll.ErrAccessDenied, ErrAccessDenied},
	{poll.ErrPollNotFound, ErrPollNotFound},
	{poll.ErrInvalidPoll, ErrInvalidPoll},
	{poll.ErrRegistrationClosed, ErrRegistrationClosed},
	{poll.ErrTimeWindow, ErrTimeWindow},
	{poll.ErrNullifierReused, ErrNullifierReused},
	{poll.ErrStaleRoot, ErrStaleRoot},
	{poll.ErrInvalidProof, ErrInvalidProof},
	{poll.ErrPollNotClosed, ErrPollNotClosed},
	{poll.ErrUnknownVote, ErrUnknownVote},
	{poll.ErrAlreadyRevealed, ErrAlreadyRevealed},
	{poll.ErrUnsupportedDepth, ErrUnsupportedDepth},
	{poll.ErrInvalidConfig, ErrInvalidConfig},
	{poll.ErrNoCipher, ErrNoCipher},
	{group.ErrInvalidCommitment, ErrInvalidCommitment},
	{group.ErrMemberExists, ErrMemberExists},
	{group.ErrTreeFull, ErrTreeFull},
	{ballot.ErrInvalidOption, ErrInvalidPoll},
}

// controllerError returns the API error matching err, or a generic internal
// error.
func controllerError(err error) Error {
	for _, m := range controllerErrors {
		if errors.Is(err, m.target) {
			return Error{Err: err, Code: m.apiErr.Code, HTTPstatus: m.apiErr.HTTPstatus}
		}
	}
	return ErrGenericInternalServerError.WithErr(err)
}
