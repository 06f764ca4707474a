package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histeq/internal/device"
	"histeq/internal/imageio"
	"histeq/internal/logger"
	"histeq/internal/pipeline"
	"histeq/internal/timing"
)

func TestBar(t *testing.T) {
	assert.Equal(t, "", Bar(0, 2))
	assert.Equal(t, "#", Bar(1, 2))
	assert.Equal(t, "#", Bar(200, 2))
	assert.Equal(t, "##", Bar(201, 2))
	assert.Equal(t, "###", Bar(300, 1))
	assert.Equal(t, "", Bar(5, 0))
}

func TestMeasure(t *testing.T) {
	c := Measure([]uint8{0, 0, 255, 255})
	assert.InDelta(t, 127.5, c.Mean, 1e-9)
	assert.InDelta(t, 1.0, c.Entropy, 1e-9)
	assert.Equal(t, uint8(0), c.Min)
	assert.Equal(t, uint8(255), c.Max)
	assert.Greater(t, c.StdDev, 0.0)

	flat := Measure([]uint8{7})
	assert.Zero(t, flat.StdDev)
	assert.Zero(t, flat.Entropy)

	assert.Equal(t, Contrast{}, Measure(nil))
}

func TestResultLayout(t *testing.T) {
	input, err := imageio.New(2, 2, 1, []uint8{0, 64, 128, 255})
	require.NoError(t, err)

	res := &pipeline.Result{
		Histogram:    []int32{1, 250, 0},
		Cumulative:   []int32{1, 251, 251},
		LUT:          []int32{0, 127, 254},
		Output:       input.Like([]uint8{0, 127, 254, 254}),
		BinSize:      2,
		KernelTime:   1500 * time.Nanosecond,
		TransferTime: 300 * time.Nanosecond,
		Warnings:     []string{"LUT has 3 entries, expected 128"},
	}

	var out bytes.Buffer
	New(&out).Result(res, input)
	text := out.String()

	assert.Contains(t, text, "Kernel execution time [ns]:1500\n")
	assert.Contains(t, text, "Memory transfer time [ns]:300\n")
	assert.Contains(t, text, "------- LUT -------\n0\n127\n254\n")
	assert.Contains(t, text, "WARNING: LUT has 3 entries, expected 128\n")
	assert.Contains(t, text, "      0 | #\n      1 | ##\n      2 | \n")
	assert.Contains(t, text, "------- Cumulative Histogram -------\n      0 | 1\n      1 | 251\n")
	assert.Contains(t, text, "input   mean")
	assert.Contains(t, text, "output  mean")

	order := []string{"Kernel execution", "Memory transfer", "------- LUT", "WARNING", "------- Histogram", "------- Cumulative", "------- Contrast"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(text, marker)
		require.GreaterOrEqual(t, idx, 0, marker)
		assert.Greater(t, idx, last, "%s out of order", marker)
		last = idx
	}
}

func TestDeviceAndRuns(t *testing.T) {
	ctx, err := device.NewContext(1, 0, logger.NoOp{})
	require.NoError(t, err)
	defer ctx.Release()

	tracker := timing.NewTracker()
	tracker.Record("histogram", 10*time.Nanosecond)
	tracker.Record("histogram", 30*time.Nanosecond)

	var out bytes.Buffer
	r := New(&out)
	r.Device(ctx)
	r.Runs(tracker, 2)

	text := out.String()
	assert.Contains(t, text, "Running on Reference Platform, Scalar reference device\n")
	assert.Contains(t, text, "------- Average over 2 run(s) -------")
	assert.Regexp(t, `histogram\s+20 ns`, text)
}
