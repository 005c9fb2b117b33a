package domain

import "errors"

var (
	// ErrNoRoute is recovered inside the scheduler and never leaves Tick.
	ErrNoRoute = errors.New("no route found")
	// ErrRemoteRejected marks a request the game server refused.
	ErrRemoteRejected = errors.New("remote rejected request")
	// ErrMalformedSnapshot marks state documents that cannot be mapped onto the model.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrInvariantViolation marks a train whose position contradicts its line.
	ErrInvariantViolation = errors.New("invariant violation")
)
