package device

import (
	"fmt"
	"sync"
)

type AddressSpace int

const (
	Private AddressSpace = iota
	Global
	Local
)

func (a AddressSpace) String() string {
	switch a {
	case Global:
		return "global"
	case Local:
		return "local"
	default:
		return "private"
	}
}

// Param is one kernel parameter. Private parameters are int scalars; global
// and local parameters are pointers to Elem.
type Param struct {
	Space AddressSpace
	Elem  ElemType
	Name  string
}

func (p Param) String() string {
	if p.Space == Private {
		return p.Elem.String()
	}
	return fmt.Sprintf("%s %s*", p.Space, p.Elem)
}

func GlobalParam(name string, elem ElemType) Param {
	return Param{Space: Global, Elem: elem, Name: name}
}

func LocalParam(name string) Param {
	return Param{Space: Local, Elem: Int32, Name: name}
}

func ScalarParam(name string) Param {
	return Param{Space: Private, Elem: Int32, Name: name}
}

// KernelFunc executes one work-group. It is called concurrently for
// different groups of the same launch.
type KernelFunc func(g *Group) error

// KernelDef is a kernel implementation the device can execute.
type KernelDef struct {
	Name   string
	Params []Param
	Fn     KernelFunc
}

// Library maps kernel names to their implementations.
type Library map[string]*KernelDef

func NewLibrary(defs ...*KernelDef) Library {
	lib := make(Library, len(defs))
	for _, d := range defs {
		lib[d.Name] = d
	}
	return lib
}

// LocalMem is a kernel argument requesting that many int elements of
// group-local memory.
type LocalMem int

// Kernel is a kernel of a built program with its argument bindings.
type Kernel struct {
	def *KernelDef

	mu   sync.Mutex
	args []interface{}
	set  []bool
}

func NewKernel(p *Program, name string) (*Kernel, error) {
	def, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	return &Kernel{
		def:  def,
		args: make([]interface{}, len(def.Params)),
		set:  make([]bool, len(def.Params)),
	}, nil
}

func (k *Kernel) Name() string { return k.def.Name }

// SetArg binds argument index. Global parameters take a *Buffer of the
// declared element type, local parameters a LocalMem, scalars an int.
func (k *Kernel) SetArg(index int, value interface{}) error {
	op := "SetArg(" + k.def.Name + ")"
	if index < 0 || index >= len(k.def.Params) {
		return NewError(InvalidArgIndex, op, "index %d, kernel takes %d argument(s)", index, len(k.def.Params))
	}

	param := k.def.Params[index]
	switch param.Space {
	case Global:
		buf, ok := value.(*Buffer)
		if !ok {
			return NewError(InvalidArgValue, op, "argument %d (%s) needs a buffer, got %T", index, param.Name, value)
		}
		if err := buf.check(op); err != nil {
			return err
		}
		if buf.elem != param.Elem {
			return NewError(InvalidArgValue, op, "argument %d (%s) is %s, buffer holds %s", index, param.Name, param, buf.elem)
		}
	case Local:
		size, ok := value.(LocalMem)
		if !ok || size <= 0 {
			return NewError(InvalidArgValue, op, "argument %d (%s) needs a positive LocalMem, got %v", index, param.Name, value)
		}
	case Private:
		if _, ok := value.(int); !ok {
			return NewError(InvalidArgValue, op, "argument %d (%s) needs an int, got %T", index, param.Name, value)
		}
	}

	k.mu.Lock()
	k.args[index] = value
	k.set[index] = true
	k.mu.Unlock()
	return nil
}

// SetArgs binds all arguments in order.
func (k *Kernel) SetArgs(values ...interface{}) error {
	for i, v := range values {
		if err := k.SetArg(i, v); err != nil {
			return err
		}
	}
	return nil
}

type launch struct {
	def  *KernelDef
	args []interface{}
}

func (k *Kernel) snapshot(op string) (launch, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, ok := range k.set {
		if !ok {
			return launch{}, NewError(InvalidKernelArgs, op, "argument %d (%s) not set", i, k.def.Params[i].Name)
		}
	}
	args := make([]interface{}, len(k.args))
	copy(args, k.args)
	return launch{def: k.def, args: args}, nil
}
