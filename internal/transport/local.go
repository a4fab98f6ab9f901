package transport

import (
	"context"
	"fmt"
	"sync"
)

// Network connects ranks that run as goroutines in one process. Payloads are
// copied on Send, so ranks share no particle memory.
type Network struct {
	size  int
	boxes [][]*Mailbox // boxes[to][from]
	once  sync.Once
}

func NewNetwork(size int) *Network {
	if size < 1 {
		panic(fmt.Sprintf("transport: invalid group size %d", size))
	}
	boxes := make([][]*Mailbox, size)
	for to := range boxes {
		boxes[to] = make([]*Mailbox, size)
		for from := range boxes[to] {
			if from != to {
				boxes[to][from] = NewMailbox()
			}
		}
	}
	return &Network{size: size, boxes: boxes}
}

func (n *Network) Size() int { return n.size }

// Comm returns rank's endpoint.
func (n *Network) Comm(rank int) Comm {
	if rank < 0 || rank >= n.size {
		panic(fmt.Sprintf("transport: rank %d outside group of %d", rank, n.size))
	}
	return &localComm{net: n, rank: rank}
}

// Close fails every mailbox so blocked receivers return ErrClosed.
func (n *Network) Close() error {
	n.once.Do(func() {
		for _, row := range n.boxes {
			for _, box := range row {
				if box != nil {
					box.Fail(ErrClosed)
				}
			}
		}
	})
	return nil
}

type localComm struct {
	net  *Network
	rank int
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return c.net.size }

func (c *localComm) Send(ctx context.Context, to int, tag Tag, payload []byte) error {
	if err := checkPeer(c, to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.net.boxes[to][c.rank].Push(tag, append([]byte(nil), payload...))
	return nil
}

func (c *localComm) Recv(ctx context.Context, from int, tag Tag) ([]byte, error) {
	if err := checkPeer(c, from); err != nil {
		return nil, err
	}
	return c.net.boxes[c.rank][from].Pop(ctx, tag)
}

// Close on a single endpoint is a no-op; the Network owns the mailboxes.
func (c *localComm) Close() error { return nil }
