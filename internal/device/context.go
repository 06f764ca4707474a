package device

import (
	"sync"

	"histeq/internal/logger"
)

// Context binds one device to the buffers, programs and queues created on it.
type Context struct {
	platform *Platform
	device   *Device
	memory   *memoryManager
	log      logger.Logger

	mu       sync.Mutex
	queues   []*CommandQueue
	released bool
}

// NewContext resolves the platform/device indices and opens a context on
// the selected device.
func NewContext(platformIndex, deviceIndex int, log logger.Logger) (*Context, error) {
	p, d, err := Lookup(platformIndex, deviceIndex)
	if err != nil {
		return nil, err
	}
	return NewContextForDevice(p, d, log), nil
}

func NewContextForDevice(p *Platform, d *Device, log logger.Logger) *Context {
	if log == nil {
		log = logger.NoOp{}
	}
	log.Info("Context", "context created", map[string]interface{}{
		"platform":      p.Name,
		"device":        d.Name,
		"compute_units": d.ComputeUnits,
	})
	return &Context{
		platform: p,
		device:   d,
		memory:   newMemoryManager(d.GlobalMemSize, log),
		log:      log,
	}
}

func (c *Context) Platform() *Platform { return c.platform }
func (c *Context) Device() *Device     { return c.device }

// CreateBuffer allocates length elements of elem on the device.
func (c *Context) CreateBuffer(flags MemFlags, elem ElemType, length int) (*Buffer, error) {
	if err := c.check("CreateBuffer"); err != nil {
		return nil, err
	}
	if !flags.valid() {
		return nil, NewError(InvalidValue, "CreateBuffer", "invalid memory flags %d", int(flags))
	}
	if length <= 0 {
		return nil, NewError(InvalidBufferSize, "CreateBuffer", "buffer length %d", length)
	}
	return c.memory.get(c, flags, elem, length)
}

func (c *Context) MemoryStats() MemoryStats {
	return c.memory.snapshot()
}

// Release shuts down every queue created on the context and frees its
// buffers. It is safe to call more than once.
func (c *Context) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	queues := c.queues
	c.queues = nil
	c.mu.Unlock()

	for _, q := range queues {
		q.Release()
	}
	if leaked := c.memory.cleanup(); leaked > 0 {
		c.log.Warning("Context", "context released with live buffers", map[string]interface{}{"buffers": leaked})
	}
	c.log.Debug("Context", "context released", nil)
}

// Shutdown lets the context be registered with the shutdown manager.
func (c *Context) Shutdown() {
	c.Release()
}

func (c *Context) addQueue(q *CommandQueue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return NewError(InvalidValue, "CreateCommandQueue", "context released")
	}
	c.queues = append(c.queues, q)
	return nil
}

func (c *Context) check(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return NewError(InvalidValue, op, "context released")
	}
	return nil
}
