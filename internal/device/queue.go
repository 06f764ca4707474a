package device

import (
	"fmt"
	"sync"

	"histeq/internal/logger"
)

type QueueProperties int

const QueueProfilingEnable QueueProperties = 1

const queueDepth = 64

type command struct {
	ev   *Event
	wait []*Event
	run  func() error
}

// CommandQueue executes commands in submission order on its own goroutine.
// A command starts only after every command submitted before it has
// finished and every event in its wait list has completed.
type CommandQueue struct {
	ctx       *Context
	profiling bool
	log       logger.Logger

	mu     sync.Mutex
	closed bool
	cmds   chan *command
	wg     sync.WaitGroup
}

func NewCommandQueue(ctx *Context, props QueueProperties) (*CommandQueue, error) {
	q := &CommandQueue{
		ctx:       ctx,
		profiling: props&QueueProfilingEnable != 0,
		log:       ctx.log,
		cmds:      make(chan *command, queueDepth),
	}
	if err := ctx.addQueue(q); err != nil {
		return nil, err
	}
	q.wg.Add(1)
	go q.loop()
	return q, nil
}

func (q *CommandQueue) loop() {
	defer q.wg.Done()
	for cmd := range q.cmds {
		cmd.ev.submitted()
		if err := WaitForEvents(cmd.wait...); err != nil {
			cmd.ev.complete(&Error{Code: ExecStatusErrorForEvents, Op: cmd.ev.command, Err: err})
			continue
		}
		cmd.ev.started()
		err := cmd.run()
		if err != nil {
			q.log.Debug("CommandQueue", "command failed", map[string]interface{}{
				"command": cmd.ev.command,
				"error":   err.Error(),
			})
		}
		cmd.ev.complete(err)
	}
}

func (q *CommandQueue) submit(name string, wait []*Event, run func() error) (*Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, NewError(InvalidCommandQueue, name, "queue released")
	}
	ev := newEvent(name, q.profiling)
	q.cmds <- &command{ev: ev, wait: wait, run: run}
	return ev, nil
}

func (q *CommandQueue) finish(ev *Event, blocking bool) (*Event, error) {
	if !blocking {
		return ev, nil
	}
	return ev, ev.Wait()
}

// EnqueueWriteBuffer copies src ([]uint8 or []int32, matching the buffer)
// into buf starting at element offset. A non-blocking write reads src when
// the command runs, so the caller must leave it untouched until the event
// completes.
func (q *CommandQueue) EnqueueWriteBuffer(buf *Buffer, blocking bool, offset int, src interface{}, wait ...*Event) (*Event, error) {
	const op = "EnqueueWriteBuffer"
	if err := checkTransfer(op, buf, offset, src); err != nil {
		return nil, err
	}
	ev, err := q.submit(op, wait, func() error {
		if err := buf.check(op); err != nil {
			return err
		}
		switch s := src.(type) {
		case []uint8:
			copy(buf.u8[offset:], s)
		case []int32:
			copy(buf.i32[offset:], s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q.finish(ev, blocking)
}

// EnqueueReadBuffer copies len(dst) elements of buf starting at offset into
// host memory.
func (q *CommandQueue) EnqueueReadBuffer(buf *Buffer, blocking bool, offset int, dst interface{}, wait ...*Event) (*Event, error) {
	const op = "EnqueueReadBuffer"
	if err := checkTransfer(op, buf, offset, dst); err != nil {
		return nil, err
	}
	ev, err := q.submit(op, wait, func() error {
		if err := buf.check(op); err != nil {
			return err
		}
		switch d := dst.(type) {
		case []uint8:
			copy(d, buf.u8[offset:])
		case []int32:
			copy(d, buf.i32[offset:])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q.finish(ev, blocking)
}

// EnqueueFillBuffer sets count elements starting at offset to pattern.
// count 0 fills to the end of the buffer.
func (q *CommandQueue) EnqueueFillBuffer(buf *Buffer, pattern int32, offset, count int, wait ...*Event) (*Event, error) {
	const op = "EnqueueFillBuffer"
	if err := buf.check(op); err != nil {
		return nil, err
	}
	if count == 0 {
		count = buf.length - offset
	}
	if offset < 0 || count < 0 || offset+count > buf.length {
		return nil, NewError(InvalidValue, op, "range [%d,%d) outside buffer of %d", offset, offset+count, buf.length)
	}
	if buf.elem == Uint8 && (pattern < 0 || pattern > 255) {
		return nil, NewError(InvalidValue, op, "pattern %d does not fit uchar", pattern)
	}
	return q.submit(op, wait, func() error {
		if err := buf.check(op); err != nil {
			return err
		}
		if buf.elem == Int32 {
			fill(buf.i32[offset:offset+count], pattern)
		} else {
			fill(buf.u8[offset:offset+count], uint8(pattern))
		}
		return nil
	})
}

// EnqueueCopyBuffer copies every element of src into dst.
func (q *CommandQueue) EnqueueCopyBuffer(src, dst *Buffer, wait ...*Event) (*Event, error) {
	const op = "EnqueueCopyBuffer"
	if err := src.check(op); err != nil {
		return nil, err
	}
	if err := dst.check(op); err != nil {
		return nil, err
	}
	if src.elem != dst.elem || src.length != dst.length {
		return nil, NewError(InvalidValue, op, "%s[%d] into %s[%d]", src.elem, src.length, dst.elem, dst.length)
	}
	return q.submit(op, wait, func() error {
		if src.elem == Int32 {
			copy(dst.i32, src.i32)
		} else {
			copy(dst.u8, src.u8)
		}
		return nil
	})
}

// EnqueueNDRangeKernel runs k over global work items split into groups of
// local items. local 0 lets the device choose. Kernel arguments are captured
// at enqueue time.
func (q *CommandQueue) EnqueueNDRangeKernel(k *Kernel, global, local int, wait ...*Event) (*Event, error) {
	op := "EnqueueNDRangeKernel(" + k.Name() + ")"
	d := q.ctx.device

	if global <= 0 {
		return nil, NewError(InvalidGlobalWorkSize, op, "global size %d", global)
	}
	if local < 0 || local > d.MaxWorkGroupSize {
		return nil, NewError(InvalidWorkGroupSize, op, "local size %d, device maximum %d", local, d.MaxWorkGroupSize)
	}
	if local == 0 {
		local = preferredWorkGroupSize
		if local > d.MaxWorkGroupSize {
			local = d.MaxWorkGroupSize
		}
	}
	if local > global {
		local = global
	}

	launch, err := k.snapshot(op)
	if err != nil {
		return nil, err
	}

	q.log.Debug("CommandQueue", "kernel enqueued", map[string]interface{}{
		"kernel": k.Name(),
		"global": global,
		"local":  local,
	})
	return q.submit(op, wait, func() error {
		return dispatch(d, launch, global, local)
	})
}

// EnqueueMarker returns an event that completes once every command submitted
// before it has finished.
func (q *CommandQueue) EnqueueMarker() (*Event, error) {
	return q.submit("EnqueueMarker", nil, func() error { return nil })
}

// Finish blocks until every submitted command has completed.
func (q *CommandQueue) Finish() error {
	ev, err := q.EnqueueMarker()
	if err != nil {
		return err
	}
	return ev.Wait()
}

// Release drains the queue and stops its goroutine.
func (q *CommandQueue) Release() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()
	q.wg.Wait()
}

func checkTransfer(op string, buf *Buffer, offset int, host interface{}) error {
	if err := buf.check(op); err != nil {
		return err
	}
	var n int
	switch h := host.(type) {
	case []uint8:
		if buf.elem != Uint8 {
			return NewError(InvalidValue, op, "host []uint8 for %s buffer", buf.elem)
		}
		n = len(h)
	case []int32:
		if buf.elem != Int32 {
			return NewError(InvalidValue, op, "host []int32 for %s buffer", buf.elem)
		}
		n = len(h)
	default:
		return NewError(InvalidValue, op, "unsupported host memory %s", fmt.Sprintf("%T", host))
	}
	if offset < 0 || offset+n > buf.length {
		return NewError(InvalidValue, op, "range [%d,%d) outside buffer of %d", offset, offset+n, buf.length)
	}
	return nil
}

func fill[T uint8 | int32](s []T, v T) {
	for i := range s {
		s[i] = v
	}
}
