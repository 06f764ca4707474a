package kernels

import (
	"sync/atomic"

	"histeq/internal/device"
)

// histAtomic adds every sample straight into the global histogram.
func histAtomic() *device.KernelDef {
	return &device.KernelDef{
		Name: HistAtomic,
		Params: []device.Param{
			device.GlobalParam("image", device.Uint8),
			device.GlobalParam("hist", device.Int32),
			device.ScalarParam("bin_size"),
			device.ScalarParam("num_bins"),
			device.ScalarParam("n"),
		},
		Fn: func(g *device.Group) error {
			image, hist := g.Bytes(0), g.Ints(1)
			binSize, numBins, n := g.Int(2), g.Int(3), g.Int(4)

			g.Items(func(gid, _ int) {
				if gid >= n {
					return
				}
				atomic.AddInt32(&hist[binIndex(image[gid], binSize, numBins)], 1)
			})
			return nil
		},
	}
}

// histLocal bins a work-group's samples into local scratch memory first and
// then merges the non-zero local bins into the global histogram, so the
// global histogram sees at most num_bins atomic adds per group.
func histLocal() *device.KernelDef {
	return &device.KernelDef{
		Name: HistLocal,
		Params: []device.Param{
			device.GlobalParam("image", device.Uint8),
			device.GlobalParam("hist", device.Int32),
			device.LocalParam("scratch"),
			device.ScalarParam("bin_size"),
			device.ScalarParam("num_bins"),
			device.ScalarParam("n"),
		},
		Fn: func(g *device.Group) error {
			image, hist, scratch := g.Bytes(0), g.Ints(1), g.Local(2)
			binSize, numBins, n := g.Int(3), g.Int(4), g.Int(5)
			if len(scratch) < numBins {
				return device.NewError(device.InvalidArgValue, HistLocal,
					"scratch holds %d bins, need %d", len(scratch), numBins)
			}

			g.Items(func(gid, _ int) {
				if gid >= n {
					return
				}
				scratch[binIndex(image[gid], binSize, numBins)]++
			})

			// barrier: local histogram complete. The merge covers every bin even
			// when the last group is only partly populated.
			for b := 0; b < numBins; b++ {
				if scratch[b] != 0 {
					atomic.AddInt32(&hist[b], scratch[b])
				}
			}
			return nil
		},
	}
}
