package pipeline

import (
	"slices"
	"time"

	"histeq/internal/imageio"
)

// Stage names used for per-stage timings.
const (
	StageWrite      = "write_image"
	StageHistogram  = "histogram"
	StageReadHist   = "read_histogram"
	StageScan       = "cumulative"
	StageReadCum    = "read_cumulative"
	StageLUT        = "lookup_table"
	StageReadLUT    = "read_lookup_table"
	StageRemap      = "re_projection"
	StageReadOutput = "read_output"
)

// StageTiming is the device-side duration of one stage.
type StageTiming struct {
	Name     string
	Duration time.Duration
}

// Result is everything one pipeline run produces on the host.
type Result struct {
	Histogram  []int32
	Cumulative []int32
	LUT        []int32
	Output     *imageio.Image
	Total      int
	BinSize    int

	// KernelTime is the binning kernel's execution time and TransferTime the
	// histogram read-back, matching what the diagnostics report.
	KernelTime   time.Duration
	TransferTime time.Duration
	Stages       []StageTiming

	Warnings []string
}

// Equal reports whether two runs produced identical data. Timings are
// ignored.
func (r *Result) Equal(other *Result) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Total != other.Total || r.BinSize != other.BinSize {
		return false
	}
	if !slices.Equal(r.Histogram, other.Histogram) ||
		!slices.Equal(r.Cumulative, other.Cumulative) ||
		!slices.Equal(r.LUT, other.LUT) {
		return false
	}
	if r.Output == nil || other.Output == nil {
		return r.Output == other.Output
	}
	return slices.Equal(r.Output.Pix, other.Output.Pix)
}

// StageDuration returns the recorded duration of the named stage.
func (r *Result) StageDuration(name string) (time.Duration, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s.Duration, true
		}
	}
	return 0, false
}
