package kernels

import "histeq/internal/device"

// reProjection replaces every sample with the LUT entry of its bin.
func reProjection() *device.KernelDef {
	return &device.KernelDef{
		Name: ReProjection,
		Params: []device.Param{
			device.GlobalParam("image", device.Uint8),
			device.GlobalParam("out", device.Uint8),
			device.GlobalParam("lut", device.Int32),
			device.ScalarParam("bin_size"),
			device.ScalarParam("num_bins"),
		},
		Fn: func(g *device.Group) error {
			image, out, lut := g.Bytes(0), g.Bytes(1), g.Ints(2)
			binSize, numBins := g.Int(3), g.Int(4)

			g.Items(func(gid, _ int) {
				if gid >= len(image) || gid >= len(out) {
					return
				}
				out[gid] = uint8(lut[binIndex(image[gid], binSize, numBins)])
			})
			return nil
		},
	}
}
