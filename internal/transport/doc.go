// Package transport is the message layer between ranks.
//
// A rank talks to its peers only through a [Comm]: point-to-point Send and
// Recv keyed by a [Tag]. Messages between one pair of ranks arrive in the
// order they were sent; nothing is promised across different pairs. The
// collectives in this package ([Barrier], [Bcast], [Gather], [Allgather],
// [Allgatherv], [ReduceFloat64], [ReduceInt]) are built on top of that with
// rank 0 as the root, so any Comm implementation gets them for free.
//
// Two implementations exist: [Network], which connects ranks running as
// goroutines in one process, and package wsnet, which connects ranks running
// as separate processes over websockets.
//
// Every operation is synchronous from the caller's point of view and there is
// no retry: a peer that stops responding stalls its partners until the
// context is cancelled.
package transport
