package engine

import "errors"

// Engine errors.
var (
	// ErrNoSender indicates a loop was built without a sender
	ErrNoSender = errors.New("sender required")

	// ErrNoReceiver indicates a loop was built without a receiver
	ErrNoReceiver = errors.New("receiver required")

	// ErrNoMatcher indicates a loop was built without a matcher
	ErrNoMatcher = errors.New("matcher required")
)
