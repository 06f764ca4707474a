package device

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"histeq/internal/logger"
)

const maxPooledPerShape = 4

type poolKey struct {
	flags  MemFlags
	elem   ElemType
	length int
}

type allocation struct {
	buf       *Buffer
	createdAt time.Time
	size      int64
}

// MemoryStats is a snapshot of a context's buffer accounting.
type MemoryStats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveBuffers  int64
	PoolHits       int64
	PoolMisses     int64
	MaxAllowed     int64
}

// InUse is the number of bytes held by live buffers.
func (s MemoryStats) InUse() int64 {
	return s.TotalAllocated - s.TotalReleased
}

// memoryManager owns every buffer of one context. Released buffers are kept
// in per-shape pools and handed out again without clearing, exactly like
// freshly allocated device memory would be uninitialised.
type memoryManager struct {
	pools       map[poolKey]*pool
	allocations map[uint64]*allocation
	mu          sync.Mutex
	stats       MemoryStats
	log         logger.Logger
}

func newMemoryManager(limit int64, log logger.Logger) *memoryManager {
	return &memoryManager{
		pools:       make(map[poolKey]*pool),
		allocations: make(map[uint64]*allocation),
		stats:       MemoryStats{MaxAllowed: limit},
		log:         log,
	}
}

func (m *memoryManager) get(ctx *Context, flags MemFlags, elem ElemType, length int) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := int64(length) * int64(elem.Size())
	if m.stats.InUse()+size > m.stats.MaxAllowed {
		return nil, NewError(MemObjectAllocationFailure, "CreateBuffer",
			"%d bytes requested, %d of %d in use", size, m.stats.InUse(), m.stats.MaxAllowed)
	}

	key := poolKey{flags: flags, elem: elem, length: length}
	var buf *Buffer
	if p, ok := m.pools[key]; ok {
		buf = p.get()
	}
	reused := buf != nil
	if reused {
		m.stats.PoolHits++
		buf.revive()
	} else {
		m.stats.PoolMisses++
		buf = newBuffer(ctx, flags, elem, length)
	}

	m.allocations[buf.id] = &allocation{buf: buf, createdAt: time.Now(), size: size}
	m.stats.TotalAllocated += size
	m.stats.ActiveBuffers++

	m.log.Debug("MemoryManager", "buffer allocated", map[string]interface{}{
		"id":     buf.id,
		"bytes":  size,
		"flags":  flags.String(),
		"reused": reused,
	})
	return buf, nil
}

func (m *memoryManager) release(buf *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.allocations[buf.id]
	if !ok {
		m.log.Warning("MemoryManager", "release of untracked buffer", map[string]interface{}{"id": buf.id})
		return
	}
	delete(m.allocations, buf.id)
	m.stats.TotalReleased += record.size
	m.stats.ActiveBuffers--

	key := poolKey{flags: buf.flags, elem: buf.elem, length: buf.length}
	p, ok := m.pools[key]
	if !ok {
		p = newPool(maxPooledPerShape)
		m.pools[key] = p
	}
	if !p.put(buf) {
		m.log.Debug("MemoryManager", "buffer dropped, pool full", map[string]interface{}{"id": buf.id})
	}
}

func (m *memoryManager) snapshot() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// cleanup drops pooled buffers and reports buffers that were never released.
func (m *memoryManager) cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pooled := 0
	for key, p := range m.pools {
		pooled += p.drain()
		delete(m.pools, key)
	}

	leaked := len(m.allocations)
	for id, record := range m.allocations {
		m.log.Warning("MemoryManager", "buffer still allocated at context release", map[string]interface{}{
			"id":    id,
			"label": record.buf.label,
			"age":   time.Since(record.createdAt).String(),
		})
		atomic.StoreInt32(&record.buf.released, 1)
		m.stats.TotalReleased += record.size
		m.stats.ActiveBuffers--
		delete(m.allocations, id)
	}

	m.log.Debug("MemoryManager", fmt.Sprintf("cleaned up %d pooled and %d live buffers", pooled, leaked), nil)
	return leaked
}
