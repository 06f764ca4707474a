package device

import (
	"sync/atomic"
)

type MemFlags int

const (
	MemReadWrite MemFlags = 1 << iota
	MemWriteOnly
	MemReadOnly
)

func (f MemFlags) valid() bool {
	return f == MemReadWrite || f == MemWriteOnly || f == MemReadOnly
}

func (f MemFlags) String() string {
	switch f {
	case MemReadWrite:
		return "read-write"
	case MemWriteOnly:
		return "write-only"
	case MemReadOnly:
		return "read-only"
	default:
		return "invalid"
	}
}

// ElemType is the element type stored in a buffer.
type ElemType int

const (
	Uint8 ElemType = iota
	Int32
)

func (e ElemType) Size() int {
	if e == Int32 {
		return 4
	}
	return 1
}

func (e ElemType) String() string {
	if e == Int32 {
		return "int"
	}
	return "uchar"
}

// Buffer is a device-resident memory region. Its contents are reachable only
// from a running kernel (see Group) or through queue transfers; the host
// never holds a slice that aliases it.
type Buffer struct {
	id     uint64
	ctx    *Context
	flags  MemFlags
	elem   ElemType
	length int
	label  string

	u8  []uint8
	i32 []int32

	released int32
}

var nextBufferID uint64

func newBuffer(ctx *Context, flags MemFlags, elem ElemType, length int) *Buffer {
	b := &Buffer{
		id:     atomic.AddUint64(&nextBufferID, 1),
		ctx:    ctx,
		flags:  flags,
		elem:   elem,
		length: length,
	}
	if elem == Int32 {
		b.i32 = make([]int32, length)
	} else {
		b.u8 = make([]uint8, length)
	}
	return b
}

func (b *Buffer) ID() uint64       { return b.id }
func (b *Buffer) Len() int         { return b.length }
func (b *Buffer) Elem() ElemType   { return b.elem }
func (b *Buffer) Flags() MemFlags  { return b.flags }
func (b *Buffer) Label() string    { return b.label }
func (b *Buffer) Size() int64      { return int64(b.length) * int64(b.elem.Size()) }
func (b *Buffer) IsValid() bool    { return atomic.LoadInt32(&b.released) == 0 }
func (b *Buffer) SetLabel(l string) { b.label = l }

// Release hands the buffer back to its context. Using it afterwards fails
// with CL_INVALID_MEM_OBJECT.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if atomic.CompareAndSwapInt32(&b.released, 0, 1) {
		b.ctx.memory.release(b)
	}
}

func (b *Buffer) revive() {
	atomic.StoreInt32(&b.released, 0)
}

func (b *Buffer) check(op string) error {
	if b == nil || !b.IsValid() {
		return NewError(InvalidMemObject, op, "buffer released or nil")
	}
	return nil
}
