package kernels

import (
	"histeq/internal/config"
	"histeq/internal/device"
)

// lookupTable maps every cumulative count to an output intensity:
//
//	lut[i] = clamp(round(cum[i]*(num_bins-1)/total) * bin_size, 0, 255)
//
// Rounding is half-up in integer arithmetic so every device produces the
// same table. A non-positive total fails the launch.
func lookupTable() *device.KernelDef {
	return &device.KernelDef{
		Name: LookupTable,
		Params: []device.Param{
			device.GlobalParam("cum", device.Int32),
			device.GlobalParam("lut", device.Int32),
			device.ScalarParam("total"),
			device.ScalarParam("bin_size"),
			device.ScalarParam("num_bins"),
		},
		Fn: func(g *device.Group) error {
			cum, lut := g.Ints(0), g.Ints(1)
			total, binSize, numBins := g.Int(2), g.Int(3), g.Int(4)
			if total <= 0 {
				return device.NewError(device.InvalidValue, LookupTable, "total sample count %d", total)
			}

			g.Items(func(gid, _ int) {
				if gid >= numBins {
					return
				}
				lut[gid] = int32(Level(int64(cum[gid]), int64(total), numBins, binSize))
			})
			return nil
		},
	}
}

// Level is the output intensity for a cumulative count.
func Level(cum, total int64, numBins, binSize int) int {
	level := (2*cum*int64(numBins-1) + total) / (2 * total)
	return max(0, min(int(level)*binSize, config.MaxIntensity-1))
}
