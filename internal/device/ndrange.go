package device

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Group is the execution state of one work-group. Its work items run one
// after another on the calling goroutine, so a barrier is simply the point
// between two Items loops, and group-local memory needs no atomics.
type Group struct {
	ID         int
	LocalSize  int
	GlobalSize int
	NumGroups  int

	def   *KernelDef
	args  []interface{}
	local map[int][]int32
}

// Items calls fn for every work item of the group with its global and
// local id. Items past the end of the global range are skipped.
func (g *Group) Items(fn func(gid, lid int)) {
	base := g.ID * g.LocalSize
	for lid := 0; lid < g.LocalSize; lid++ {
		gid := base + lid
		if gid >= g.GlobalSize {
			return
		}
		fn(gid, lid)
	}
}

// Bytes returns the device memory behind global uchar argument i.
func (g *Group) Bytes(i int) []uint8 {
	return g.args[i].(*Buffer).u8
}

// Ints returns the device memory behind global int argument i.
func (g *Group) Ints(i int) []int32 {
	return g.args[i].(*Buffer).i32
}

// Local returns the group-local memory of local argument i, zeroed when the
// group starts.
func (g *Group) Local(i int) []int32 {
	return g.local[i]
}

// Int returns scalar argument i.
func (g *Group) Int(i int) int {
	return g.args[i].(int)
}

// dispatch runs every work-group of a launch, at most ComputeUnits at a time,
// and returns the first kernel error. A panicking group is reported as
// CL_OUT_OF_RESOURCES rather than taking the process down.
func dispatch(d *Device, l launch, global, local int) error {
	groups := (global + local - 1) / local

	var eg errgroup.Group
	eg.SetLimit(d.ComputeUnits)
	for id := 0; id < groups; id++ {
		g := &Group{
			ID:         id,
			LocalSize:  local,
			GlobalSize: global,
			NumGroups:  groups,
			def:        l.def,
			args:       l.args,
		}
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = NewError(OutOfResources, l.def.Name, "work-group %d faulted: %v", g.ID, r)
				}
			}()
			g.allocLocal()
			return l.def.Fn(g)
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("kernel %s: %w", l.def.Name, err)
	}
	return nil
}

func (g *Group) allocLocal() {
	for i, p := range g.def.Params {
		if p.Space != Local {
			continue
		}
		if g.local == nil {
			g.local = make(map[int][]int32)
		}
		g.local[i] = make([]int32, int(g.args[i].(LocalMem)))
	}
}
