package transport

import (
	"context"
	"fmt"
	"sync"
)

type message struct {
	tag     Tag
	payload []byte
}

// Mailbox is an unbounded FIFO of messages from a single peer. Push never
// blocks, which is what lets every rank send before it receives.
type Mailbox struct {
	mu     sync.Mutex
	queue  []message
	err    error
	signal chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{signal: make(chan struct{}, 1)}
}

// Push appends a message. The mailbox takes ownership of payload.
func (m *Mailbox) Push(tag Tag, payload []byte) {
	m.mu.Lock()
	m.queue = append(m.queue, message{tag: tag, payload: payload})
	m.mu.Unlock()
	m.wake()
}

// Fail makes every pending and future Pop return err once the queue drains.
func (m *Mailbox) Fail(err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
	m.wake()
}

// Pop blocks until a message is available and checks its tag.
func (m *Mailbox) Pop(ctx context.Context, tag Tag) ([]byte, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue[0] = message{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			if msg.tag != tag {
				return nil, fmt.Errorf("%w: expected %v, got %v", ErrTagMismatch, tag, msg.tag)
			}
			return msg.payload, nil
		}
		err := m.err
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}

		select {
		case <-m.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}
