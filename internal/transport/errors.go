package transport

import "errors"

var (
	// ErrTagMismatch means the next message from a peer belongs to a different
	// protocol phase than the receiver expected.
	ErrTagMismatch = errors.New("transport: message tag mismatch")

	// ErrClosed is returned after the endpoint or its peer link is closed.
	ErrClosed = errors.New("transport: endpoint closed")

	// ErrBadRank is returned for a peer rank outside the group or equal to
	// the caller's own rank.
	ErrBadRank = errors.New("transport: invalid peer rank")

	// ErrCountMismatch means a variable-size gather received a payload whose
	// length disagrees with the size its sender announced.
	ErrCountMismatch = errors.New("transport: payload size disagrees with announced count")
)
