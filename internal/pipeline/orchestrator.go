// Package pipeline runs histogram equalisation on a compute device: it owns
// the device buffers of a run, enqueues the four stages in order and brings
// the results back to the host.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"histeq/internal/config"
	"histeq/internal/device"
	"histeq/internal/failure"
	"histeq/internal/imageio"
	"histeq/internal/kernels"
	"histeq/internal/logger"
	"histeq/internal/timing"
)

// Orchestrator executes the equalisation pipeline for one device context.
// A Run must finish before the next one starts.
type Orchestrator struct {
	ctx     *device.Context
	queue   *device.CommandQueue
	program *device.Program
	cfg     config.Config
	log     logger.Logger
	timings *timing.Tracker

	hist  *device.Kernel
	scan  *device.Kernel
	lut   *device.Kernel
	remap *device.Kernel

	mu sync.Mutex
}

// NewOrchestrator builds src for the context's device and prepares the
// kernels selected by cfg. When the build fails, its status, options and
// log are written to diag before the error is returned.
func NewOrchestrator(ctx *device.Context, src device.Source, cfg config.Config, log logger.Logger, diag io.Writer) (*Orchestrator, error) {
	if log == nil {
		log = logger.NoOp{}
	}
	if diag == nil {
		diag = io.Discard
	}
	if err := config.ValidateBinSize(cfg.BinSize); err != nil {
		return nil, failure.Config("create pipeline", err)
	}

	queue, err := device.NewCommandQueue(ctx, device.QueueProfilingEnable)
	if err != nil {
		return nil, failure.Device("create command queue", err)
	}

	o := &Orchestrator{
		ctx:     ctx,
		queue:   queue,
		program: ctx.CreateProgram(src, kernels.Library()),
		cfg:     cfg,
		log:     log,
		timings: timing.NewTracker(),
	}

	if err := o.program.Build(cfg.BuildOptions); err != nil {
		o.reportBuildFailure(diag)
		queue.Release()
		return nil, failure.Device("build program", err)
	}

	if err := o.createKernels(); err != nil {
		queue.Release()
		return nil, failure.Device("create kernels", err)
	}

	log.Info("Orchestrator", "pipeline ready", map[string]interface{}{
		"source":   src.Name,
		"bin_size": cfg.BinSize,
		"num_bins": cfg.NumBins(),
		"binning":  cfg.Binning,
		"scan":     cfg.Scan,
	})
	return o, nil
}

func (o *Orchestrator) reportBuildFailure(diag io.Writer) {
	info := o.program.BuildInfo()
	fmt.Fprintln(diag, "Build Status: ", info.Status)
	fmt.Fprintln(diag, "Build Options:\t", info.Options)
	fmt.Fprintln(diag, "Build Log:\t ", info.Log)

	o.log.Error("Orchestrator", errors.New("program build failed"), map[string]interface{}{
		"status":  info.Status.String(),
		"options": info.Options,
		"log":     info.Log,
	})
}

func (o *Orchestrator) createKernels() error {
	histName := kernels.HistLocal
	if o.cfg.Binning == config.BinningAtomic {
		histName = kernels.HistAtomic
	}

	scanName := kernels.CumHist
	switch o.cfg.Scan {
	case config.ScanAtomic:
		scanName = kernels.CumHistAtomic
	case config.ScanParallel:
		scanName = kernels.ScanStep
	}

	var err error
	if o.hist, err = device.NewKernel(o.program, histName); err != nil {
		return err
	}
	if o.scan, err = device.NewKernel(o.program, scanName); err != nil {
		return err
	}
	if o.lut, err = device.NewKernel(o.program, kernels.LookupTable); err != nil {
		return err
	}
	o.remap, err = device.NewKernel(o.program, kernels.ReProjection)
	return err
}

// Timings returns the tracker that accumulates stage durations over runs.
func (o *Orchestrator) Timings() *timing.Tracker {
	return o.timings
}

type buffers struct {
	input, output       *device.Buffer
	hist, cum, lut, tmp *device.Buffer
}

func (b *buffers) release() {
	for _, buf := range []*device.Buffer{b.input, b.output, b.hist, b.cum, b.lut, b.tmp} {
		buf.Release()
	}
}

type bufferSpec struct {
	dst    **device.Buffer
	label  string
	flags  device.MemFlags
	elem   device.ElemType
	length int
}

func (o *Orchestrator) allocate(n, numBins int) (*buffers, error) {
	b := &buffers{}
	specs := []bufferSpec{
		{&b.input, "input", device.MemReadOnly, device.Uint8, n},
		{&b.output, "output", device.MemReadWrite, device.Uint8, n},
		{&b.hist, "histogram", device.MemReadWrite, device.Int32, numBins},
		{&b.cum, "cumulative", device.MemReadWrite, device.Int32, numBins},
		{&b.lut, "lookup_table", device.MemReadWrite, device.Int32, numBins},
	}
	if o.cfg.Scan == config.ScanParallel && kernels.ScanPasses(numBins) > 1 {
		specs = append(specs, bufferSpec{&b.tmp, "scan_scratch", device.MemReadWrite, device.Int32, numBins})
	}

	for _, s := range specs {
		buf, err := o.ctx.CreateBuffer(s.flags, s.elem, s.length)
		if err != nil {
			b.release()
			return nil, err
		}
		buf.SetLabel(s.label)
		*s.dst = buf
	}
	return b, nil
}

// Run equalises img. The input is never modified; the output is a new image
// with the same geometry.
func (o *Orchestrator) Run(img *imageio.Image) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if img.Empty() {
		return nil, failure.Config("run pipeline", errors.New("input image is empty"))
	}
	if img.Len() > math.MaxInt32 {
		return nil, failure.Config("run pipeline", fmt.Errorf("image has %d samples, limit is %d", img.Len(), math.MaxInt32))
	}

	runCtx := o.timings.StartTiming("run")
	defer o.timings.EndTiming(runCtx)

	res, err := o.run(img)
	if err != nil {
		return nil, failure.Device("run pipeline", err)
	}

	for _, s := range res.Stages {
		o.timings.Record(s.Name, s.Duration)
	}
	return res, nil
}

func (o *Orchestrator) run(img *imageio.Image) (*Result, error) {
	n := img.Len()
	numBins := o.cfg.NumBins()
	binSize := o.cfg.BinSize
	q := o.queue

	bufs, err := o.allocate(n, numBins)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Nothing may still be using the buffers when they go back to the pool
		_ = q.Finish()
		bufs.release()
	}()

	res := &Result{Total: n, BinSize: binSize}

	// Upload the image and clear the histogram
	writeEv, err := q.EnqueueWriteBuffer(bufs.input, false, 0, img.Pix)
	if err != nil {
		return nil, err
	}
	zeroEv, err := q.EnqueueFillBuffer(bufs.hist, 0, 0, 0)
	if err != nil {
		return nil, err
	}

	// Binning
	if o.cfg.Binning == config.BinningAtomic {
		err = o.hist.SetArgs(bufs.input, bufs.hist, binSize, numBins, n)
	} else {
		err = o.hist.SetArgs(bufs.input, bufs.hist, device.LocalMem(numBins), binSize, numBins, n)
	}
	if err != nil {
		return nil, err
	}
	histEv, err := q.EnqueueNDRangeKernel(o.hist, n, o.cfg.LocalSize, writeEv, zeroEv)
	if err != nil {
		return nil, err
	}

	res.Histogram = make([]int32, numBins)
	histReadEv, err := q.EnqueueReadBuffer(bufs.hist, true, 0, res.Histogram, histEv)
	if err != nil {
		return nil, err
	}

	// Cumulative histogram
	scanFirst, scanLast, err := o.enqueueScan(bufs, numBins, histEv)
	if err != nil {
		return nil, err
	}

	res.Cumulative = make([]int32, numBins)
	cumReadEv, err := q.EnqueueReadBuffer(bufs.cum, true, 0, res.Cumulative, scanLast)
	if err != nil {
		return nil, err
	}
	if last := res.Cumulative[numBins-1]; int(last) != n {
		o.warn(res, fmt.Sprintf("cumulative histogram ends at %d, expected %d samples", last, n))
	}

	// Lookup table
	if err := o.lut.SetArgs(bufs.cum, bufs.lut, n, binSize, numBins); err != nil {
		return nil, err
	}
	lutEv, err := q.EnqueueNDRangeKernel(o.lut, numBins, o.localSize(numBins), scanLast)
	if err != nil {
		return nil, err
	}

	res.LUT = make([]int32, bufs.lut.Len())
	lutReadEv, err := q.EnqueueReadBuffer(bufs.lut, true, 0, res.LUT, lutEv)
	if err != nil {
		return nil, err
	}
	if expected := config.MaxIntensity / binSize; len(res.LUT) != expected {
		o.warn(res, fmt.Sprintf("LUT has %d entries, expected %d (%d / bin size %d)",
			len(res.LUT), expected, config.MaxIntensity, binSize))
	}

	// Re-projection
	if err := o.remap.SetArgs(bufs.input, bufs.output, bufs.lut, binSize, numBins); err != nil {
		return nil, err
	}
	remapEv, err := q.EnqueueNDRangeKernel(o.remap, n, o.cfg.LocalSize, lutEv)
	if err != nil {
		return nil, err
	}

	outPix := make([]uint8, n)
	outReadEv, err := q.EnqueueReadBuffer(bufs.output, true, 0, outPix, remapEv)
	if err != nil {
		return nil, err
	}
	res.Output = img.Like(outPix)

	res.KernelTime = histEv.Duration()
	res.TransferTime = histReadEv.Duration()
	res.Stages = []StageTiming{
		{StageWrite, writeEv.Duration()},
		{StageHistogram, res.KernelTime},
		{StageReadHist, res.TransferTime},
		{StageScan, span(scanFirst, scanLast)},
		{StageReadCum, cumReadEv.Duration()},
		{StageLUT, lutEv.Duration()},
		{StageReadLUT, lutReadEv.Duration()},
		{StageRemap, remapEv.Duration()},
		{StageReadOutput, outReadEv.Duration()},
	}

	o.log.Debug("Orchestrator", "pipeline run complete", map[string]interface{}{
		"samples":     n,
		"kernel_ns":   res.KernelTime.Nanoseconds(),
		"transfer_ns": res.TransferTime.Nanoseconds(),
		"warnings":    len(res.Warnings),
	})
	return res, nil
}

// enqueueScan writes the inclusive prefix sum of the histogram into the
// cumulative buffer and returns the first and last events of the stage.
func (o *Orchestrator) enqueueScan(b *buffers, numBins int, after *device.Event) (*device.Event, *device.Event, error) {
	q := o.queue

	switch o.cfg.Scan {
	case config.ScanAtomic:
		zeroEv, err := q.EnqueueFillBuffer(b.cum, 0, 0, 0)
		if err != nil {
			return nil, nil, err
		}
		if err := o.scan.SetArgs(b.hist, b.cum); err != nil {
			return nil, nil, err
		}
		ev, err := q.EnqueueNDRangeKernel(o.scan, numBins, o.localSize(numBins), after, zeroEv)
		return zeroEv, ev, err

	case config.ScanParallel:
		passes := kernels.ScanPasses(numBins)
		if passes == 0 {
			ev, err := q.EnqueueCopyBuffer(b.hist, b.cum, after)
			return ev, ev, err
		}

		// Ping-pong so the last pass lands in the cumulative buffer
		var first, last *device.Event
		src := b.hist
		for pass, offset := 0, 1; pass < passes; pass, offset = pass+1, offset<<1 {
			dst := b.tmp
			if (passes-1-pass)%2 == 0 {
				dst = b.cum
			}
			if err := o.scan.SetArgs(src, dst, offset); err != nil {
				return nil, nil, err
			}
			ev, err := q.EnqueueNDRangeKernel(o.scan, numBins, o.localSize(numBins), after)
			if err != nil {
				return nil, nil, err
			}
			if first == nil {
				first = ev
			}
			last, after, src = ev, ev, dst
		}
		return first, last, nil

	default:
		if err := o.scan.SetArgs(b.hist, b.cum, numBins); err != nil {
			return nil, nil, err
		}
		ev, err := q.EnqueueNDRangeKernel(o.scan, 1, 1, after)
		return ev, ev, err
	}
}

// localSize caps the configured work-group size at the launch size.
func (o *Orchestrator) localSize(global int) int {
	if o.cfg.LocalSize > global {
		return global
	}
	return o.cfg.LocalSize
}

func (o *Orchestrator) warn(res *Result, msg string) {
	res.Warnings = append(res.Warnings, msg)
	o.log.Warning("Orchestrator", msg, nil)
}

func span(first, last *device.Event) time.Duration {
	start, err := first.ProfilingInfo()
	if err != nil {
		return 0
	}
	end, err := last.ProfilingInfo()
	if err != nil {
		return 0
	}
	return end.End.Sub(start.Start)
}

// Shutdown releases the command queue. The device context stays with its
// owner.
func (o *Orchestrator) Shutdown() {
	o.queue.Release()
}
