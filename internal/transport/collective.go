package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Root is the rank that gathers, reduces and broadcasts.
const Root = 0

// Op is a reduction operator.
type Op int

const (
	Sum Op = iota
	Min
	Max
)

func (o Op) String() string {
	switch o {
	case Sum:
		return "sum"
	case Min:
		return "min"
	case Max:
		return "max"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Barrier returns once every rank has entered it.
func Barrier(ctx context.Context, c Comm) error {
	if c.Size() == 1 {
		return nil
	}
	if c.Rank() != Root {
		if err := c.Send(ctx, Root, TagBarrier, nil); err != nil {
			return err
		}
		_, err := c.Recv(ctx, Root, TagBarrier)
		return err
	}
	for q := 1; q < c.Size(); q++ {
		if _, err := c.Recv(ctx, q, TagBarrier); err != nil {
			return err
		}
	}
	for q := 1; q < c.Size(); q++ {
		if err := c.Send(ctx, q, TagBarrier, nil); err != nil {
			return err
		}
	}
	return nil
}

// Bcast distributes the root's payload. Non-root callers pass nil and get the
// root's bytes back.
func Bcast(ctx context.Context, c Comm, tag Tag, payload []byte) ([]byte, error) {
	if c.Rank() != Root {
		return c.Recv(ctx, Root, tag)
	}
	for q := 1; q < c.Size(); q++ {
		if err := c.Send(ctx, q, tag, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// Gather collects one payload per rank at the root, indexed by rank. Other
// ranks get nil.
func Gather(ctx context.Context, c Comm, tag Tag, payload []byte) ([][]byte, error) {
	if c.Rank() != Root {
		return nil, c.Send(ctx, Root, tag, payload)
	}
	parts := make([][]byte, c.Size())
	parts[Root] = payload
	for q := 1; q < c.Size(); q++ {
		b, err := c.Recv(ctx, q, tag)
		if err != nil {
			return nil, err
		}
		parts[q] = b
	}
	return parts, nil
}

// Allgather gives every rank every rank's payload, indexed by rank.
func Allgather(ctx context.Context, c Comm, tag Tag, payload []byte) ([][]byte, error) {
	parts, err := Gather(ctx, c, tag, payload)
	if err != nil {
		return nil, err
	}
	var packed []byte
	if c.Rank() == Root {
		packed = packParts(parts)
	}
	packed, err = Bcast(ctx, c, tag, packed)
	if err != nil {
		return nil, err
	}
	return unpackParts(packed, c.Size())
}

// AllgatherInt gathers one integer per rank onto every rank.
func AllgatherInt(ctx context.Context, c Comm, tag Tag, v int) ([]int, error) {
	parts, err := Allgather(ctx, c, tag, binary.LittleEndian.AppendUint64(nil, uint64(int64(v))))
	if err != nil {
		return nil, err
	}
	out := make([]int, len(parts))
	for r, b := range parts {
		if len(b) != 8 {
			return nil, fmt.Errorf("%w: rank %d sent %d bytes for an integer", ErrCountMismatch, r, len(b))
		}
		out[r] = int(int64(binary.LittleEndian.Uint64(b)))
	}
	return out, nil
}

// Allgatherv concatenates every rank's payload in rank order. counts holds
// the number of elemSize-byte elements each rank announced; a payload of any
// other length fails with ErrCountMismatch.
func Allgatherv(ctx context.Context, c Comm, tag Tag, payload []byte, counts []int, elemSize int) ([]byte, error) {
	if len(counts) != c.Size() {
		return nil, fmt.Errorf("%w: %d counts for %d ranks", ErrCountMismatch, len(counts), c.Size())
	}
	parts, err := Allgather(ctx, c, tag, payload)
	if err != nil {
		return nil, err
	}
	total := 0
	for r, b := range parts {
		if len(b) != counts[r]*elemSize {
			return nil, fmt.Errorf("%w: rank %d announced %d elements, sent %d bytes", ErrCountMismatch, r, counts[r], len(b))
		}
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range parts {
		out = append(out, b...)
	}
	return out, nil
}

// ReduceFloat64 combines one value per rank at the root. Only the root's
// result is meaningful; other ranks get their own input back.
func ReduceFloat64(ctx context.Context, c Comm, v float64, op Op) (float64, error) {
	parts, err := Gather(ctx, c, TagReduce, binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)))
	if err != nil || c.Rank() != Root {
		return v, err
	}
	acc := v
	for q := 1; q < len(parts); q++ {
		if len(parts[q]) != 8 {
			return 0, fmt.Errorf("%w: rank %d sent %d bytes for a float", ErrCountMismatch, q, len(parts[q]))
		}
		x := math.Float64frombits(binary.LittleEndian.Uint64(parts[q]))
		switch op {
		case Sum:
			acc += x
		case Min:
			acc = math.Min(acc, x)
		case Max:
			acc = math.Max(acc, x)
		}
	}
	return acc, nil
}

// ReduceInt is ReduceFloat64 for integers.
func ReduceInt(ctx context.Context, c Comm, v int, op Op) (int, error) {
	parts, err := Gather(ctx, c, TagReduce, binary.LittleEndian.AppendUint64(nil, uint64(int64(v))))
	if err != nil || c.Rank() != Root {
		return v, err
	}
	acc := v
	for q := 1; q < len(parts); q++ {
		if len(parts[q]) != 8 {
			return 0, fmt.Errorf("%w: rank %d sent %d bytes for an integer", ErrCountMismatch, q, len(parts[q]))
		}
		x := int(int64(binary.LittleEndian.Uint64(parts[q])))
		switch op {
		case Sum:
			acc += x
		case Min:
			acc = min(acc, x)
		case Max:
			acc = max(acc, x)
		}
	}
	return acc, nil
}

// packParts frames parts as a length table followed by the bodies.
func packParts(parts [][]byte) []byte {
	n := 4 * len(parts)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(p)))
	}
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func unpackParts(b []byte, n int) ([][]byte, error) {
	if len(b) < 4*n {
		return nil, fmt.Errorf("%w: gathered frame of %d bytes for %d ranks", ErrCountMismatch, len(b), n)
	}
	parts := make([][]byte, n)
	off := 4 * n
	for r := range parts {
		l := int(binary.LittleEndian.Uint32(b[4*r:]))
		if off+l > len(b) {
			return nil, fmt.Errorf("%w: rank %d part overruns gathered frame", ErrCountMismatch, r)
		}
		parts[r] = b[off : off+l : off+l]
		off += l
	}
	return parts, nil
}
