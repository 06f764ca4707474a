package kernels

import (
	"sync/atomic"

	"histeq/internal/device"
)

// cumHist is the serial prefix sum. It is launched with a single work item.
func cumHist() *device.KernelDef {
	return &device.KernelDef{
		Name: CumHist,
		Params: []device.Param{
			device.GlobalParam("hist", device.Int32),
			device.GlobalParam("cum", device.Int32),
			device.ScalarParam("num_bins"),
		},
		Fn: func(g *device.Group) error {
			hist, cum, numBins := g.Ints(0), g.Ints(1), g.Int(2)
			g.Items(func(gid, _ int) {
				if gid != 0 {
					return
				}
				var sum int32
				for i := 0; i < numBins; i++ {
					sum += hist[i]
					cum[i] = sum
				}
			})
			return nil
		},
	}
}

// cumHistAtomic has work item i add hist[i] into every cum[j] with j >= i.
// cum must be zero-filled before the launch and the global size must equal
// the bin count.
func cumHistAtomic() *device.KernelDef {
	return &device.KernelDef{
		Name: CumHistAtomic,
		Params: []device.Param{
			device.GlobalParam("hist", device.Int32),
			device.GlobalParam("cum", device.Int32),
		},
		Fn: func(g *device.Group) error {
			hist, cum := g.Ints(0), g.Ints(1)
			g.Items(func(gid, _ int) {
				v := hist[gid]
				if v == 0 {
					return
				}
				for j := gid; j < g.GlobalSize; j++ {
					atomic.AddInt32(&cum[j], v)
				}
			})
			return nil
		},
	}
}

// scanStep is one Hillis-Steele pass: dst[i] = src[i] + src[i-offset].
// Passes with offset 1, 2, 4, ... leave the inclusive prefix sum in the last
// destination.
func scanStep() *device.KernelDef {
	return &device.KernelDef{
		Name: ScanStep,
		Params: []device.Param{
			device.GlobalParam("src", device.Int32),
			device.GlobalParam("dst", device.Int32),
			device.ScalarParam("offset"),
		},
		Fn: func(g *device.Group) error {
			src, dst, offset := g.Ints(0), g.Ints(1), g.Int(2)
			g.Items(func(gid, _ int) {
				if gid >= offset {
					dst[gid] = src[gid] + src[gid-offset]
				} else {
					dst[gid] = src[gid]
				}
			})
			return nil
		},
	}
}

// ScanPasses is the number of scan_step passes needed for n bins.
func ScanPasses(n int) int {
	passes := 0
	for offset := 1; offset < n; offset <<= 1 {
		passes++
	}
	return passes
}
