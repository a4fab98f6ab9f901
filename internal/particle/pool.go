package particle

import "sync"

// BufferPool recycles encode buffers between steps. Transports never retain a
// payload after Send returns, so a buffer can go back as soon as it is sent.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool(initialCap int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, 0, initialCap)
				return &b
			},
		},
	}
}

func (p *BufferPool) Get() []byte {
	return (*p.pool.Get().(*[]byte))[:0]
}

func (p *BufferPool) Put(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:0]
	p.pool.Put(&b)
}
