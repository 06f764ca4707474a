package report

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"histeq/internal/config"
)

// Contrast summarises the intensity distribution of an image.
type Contrast struct {
	Mean    float64
	StdDev  float64
	Entropy float64 // bits
	Min     uint8
	Max     uint8
}

// Measure computes the contrast summary of pix. An empty slice yields the
// zero value.
func Measure(pix []uint8) Contrast {
	if len(pix) == 0 {
		return Contrast{}
	}

	values := make([]float64, len(pix))
	counts := make([]float64, config.MaxIntensity)
	lo, hi := pix[0], pix[0]
	for i, v := range pix {
		values[i] = float64(v)
		counts[v]++
		lo = min(lo, v)
		hi = max(hi, v)
	}

	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}

	// Entropy expects a probability distribution
	n := float64(len(pix))
	for i := range counts {
		counts[i] /= n
	}

	return Contrast{
		Mean:    mean,
		StdDev:  std,
		Entropy: stat.Entropy(counts) / math.Ln2,
		Min:     lo,
		Max:     hi,
	}
}
