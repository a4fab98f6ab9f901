package transport

import (
	"context"
	"fmt"
)

// Tag labels a message with the protocol phase that produced it.
type Tag uint16

const (
	TagHalo Tag = iota + 1
	TagBarrier
	TagBcast
	TagGather
	TagReduce
	TagMigrateSizes
	TagMigrate
	TagCount
	TagSnapshot
)

var tagNames = map[Tag]string{
	TagHalo:         "halo",
	TagBarrier:      "barrier",
	TagBcast:        "bcast",
	TagGather:       "gather",
	TagReduce:       "reduce",
	TagMigrateSizes: "migrate-sizes",
	TagMigrate:      "migrate",
	TagCount:        "count",
	TagSnapshot:     "snapshot",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("tag(%d)", uint16(t))
}

// Comm is one rank's endpoint.
type Comm interface {
	Rank() int
	Size() int
	// Send queues payload for rank to. It does not wait for the peer to
	// receive and does not retain payload after returning.
	Send(ctx context.Context, to int, tag Tag, payload []byte) error
	// Recv returns the next message from rank from. A message carrying a
	// different tag is a protocol violation.
	Recv(ctx context.Context, from int, tag Tag) ([]byte, error)
	Close() error
}

func checkPeer(c Comm, peer int) error {
	if peer < 0 || peer >= c.Size() || peer == c.Rank() {
		return fmt.Errorf("%w: rank %d cannot address %d in a group of %d", ErrBadRank, c.Rank(), peer, c.Size())
	}
	return nil
}
