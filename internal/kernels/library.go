// Package kernels holds the device implementations of the equalisation
// stages and the program source that declares them.
package kernels

import (
	_ "embed"

	"histeq/internal/device"
)

const (
	HistAtomic    = "hist_atomic"
	HistLocal     = "hist_local"
	CumHist       = "cum_hist"
	CumHistAtomic = "cum_hist_atomic"
	ScanStep      = "scan_step"
	LookupTable   = "lookup_table"
	ReProjection  = "re_projection"
)

const SourceName = "equalise.kernels"

//go:embed equalise.kernels
var defaultSource string

// DefaultSource returns the program compiled when no kernel file is given.
func DefaultSource() device.Source {
	return device.Source{Name: SourceName, Text: defaultSource}
}

// Library returns every kernel implementation, keyed by name.
func Library() device.Library {
	return device.NewLibrary(
		histAtomic(),
		histLocal(),
		cumHist(),
		cumHistAtomic(),
		scanStep(),
		lookupTable(),
		reProjection(),
	)
}

// binIndex maps an intensity to its bin, clamping to the last bin.
func binIndex(v uint8, binSize, numBins int) int {
	return max(0, min(int(v)/binSize, numBins-1))
}
