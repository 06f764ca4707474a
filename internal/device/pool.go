package device

import "sync"

type pool struct {
	buffers []*Buffer
	maxSize int
	mu      sync.Mutex
}

func newPool(maxSize int) *pool {
	return &pool{
		buffers: make([]*Buffer, 0, maxSize),
		maxSize: maxSize,
	}
}

func (p *pool) get() *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffers) == 0 {
		return nil
	}
	buf := p.buffers[len(p.buffers)-1]
	p.buffers = p.buffers[:len(p.buffers)-1]
	return buf
}

func (p *pool) put(buf *Buffer) bool {
	if buf == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffers) >= p.maxSize {
		return false
	}
	p.buffers = append(p.buffers, buf)
	return true
}

func (p *pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers)
}

func (p *pool) drain() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := len(p.buffers)
	p.buffers = p.buffers[:0]
	return count
}
