// Package report renders the human-readable diagnostics of a pipeline run.
package report

import (
	"fmt"
	"io"
	"strings"

	"histeq/internal/device"
	"histeq/internal/imageio"
	"histeq/internal/pipeline"
	"histeq/internal/timing"
)

// samplesPerMark is how many samples one '#' of the histogram bar chart
// stands for, per unit of bin size.
const samplesPerMark = 100

type Reporter struct {
	out io.Writer
}

func New(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Device prints the platform and device the pipeline runs on.
func (r *Reporter) Device(ctx *device.Context) {
	fmt.Fprintf(r.out, "Running on %s, %s\n", ctx.Platform().Name, ctx.Device().Name)
}

// Result prints the timings, the LUT, any integrity warnings, the histogram
// bar chart, the cumulative histogram and the contrast before and after.
func (r *Reporter) Result(res *pipeline.Result, input *imageio.Image) {
	fmt.Fprintf(r.out, "Kernel execution time [ns]:%d\n", res.KernelTime.Nanoseconds())
	fmt.Fprintf(r.out, "Memory transfer time [ns]:%d\n", res.TransferTime.Nanoseconds())

	fmt.Fprintln(r.out, "------- LUT -------")
	for _, v := range res.LUT {
		fmt.Fprintln(r.out, v)
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(r.out, "WARNING: %s\n", w)
	}

	fmt.Fprintln(r.out, "------- Histogram -------")
	for bin, v := range res.Histogram {
		fmt.Fprintf(r.out, "%7d | %s\n", bin, Bar(v, res.BinSize))
	}

	fmt.Fprintln(r.out, "------- Cumulative Histogram -------")
	for bin, v := range res.Cumulative {
		fmt.Fprintf(r.out, "%7d | %d\n", bin, v)
	}

	if input != nil && res.Output != nil {
		fmt.Fprintln(r.out, "------- Contrast -------")
		r.contrast("input", Measure(input.Pix))
		r.contrast("output", Measure(res.Output.Pix))
	}
}

func (r *Reporter) contrast(label string, c Contrast) {
	fmt.Fprintf(r.out, "%-7s mean %7.2f  stddev %7.2f  entropy %5.3f bits  range [%d,%d]\n",
		label, c.Mean, c.StdDev, c.Entropy, c.Min, c.Max)
}

// Runs prints the average duration of every recorded stage.
func (r *Reporter) Runs(tracker *timing.Tracker, runs int) {
	fmt.Fprintf(r.out, "------- Average over %d run(s) -------\n", runs)
	for _, op := range tracker.Operations() {
		fmt.Fprintf(r.out, "%-20s %12d ns\n", op, tracker.GetAverageTime(op).Nanoseconds())
	}
}

// Bar draws one '#' per samplesPerMark*binSize samples, rounding up.
func Bar(count int32, binSize int) string {
	if count <= 0 || binSize <= 0 {
		return ""
	}
	per := int64(samplesPerMark * binSize)
	return strings.Repeat("#", int((int64(count)+per-1)/per))
}
