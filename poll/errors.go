package poll

import (
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied is returned when the actor lacks the administrator role.
	ErrAccessDenied = errors.New("access denied")
	// ErrTimeWindow is returned for votes outside [start, end).
	ErrTimeWindow = errors.New("vote outside the poll time window")
	// ErrNullifierReused is returned for a second vote with the same
	// nullifier hash.
	ErrNullifierReused = errors.New("nullifier hash already used")
	// ErrInvalidProof is returned when the proof does not verify or its
	// public signals do not match the vote.
	ErrInvalidProof = errors.New("invalid proof")
	// ErrStaleRoot is returned for proofs built on a root the poll had
	// before its latest registration. It matches ErrInvalidProof too.
	ErrStaleRoot = fmt.Errorf("%w: stale merkle tree root", ErrInvalidProof)

	ErrPollNotFound       = errors.New("poll not found")
	ErrInvalidPoll        = errors.New("invalid poll parameters")
	ErrRegistrationClosed = errors.New("poll registration closed")
	ErrPollNotClosed      = errors.New("poll not closed yet")
	ErrUnknownVote        = errors.New("ciphertext does not match an accepted vote")
	ErrAlreadyRevealed    = errors.New("vote already revealed")
	ErrInvalidConfig      = errors.New("invalid configuration value")
	ErrUnsupportedDepth   = errors.New("verifier does not support the tree depth")
	ErrNoCipher           = errors.New("vote cipher not configured")
)
