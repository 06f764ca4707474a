// Package app runs one invocation of the command: configuration, image
// loading, device selection, the equalisation pipeline, the report and the
// optional viewer.
package app

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"fyne.io/fyne/v2"
	"github.com/rs/zerolog"

	"histeq/internal/config"
	"histeq/internal/device"
	"histeq/internal/failure"
	"histeq/internal/imageio"
	"histeq/internal/kernels"
	"histeq/internal/logger"
	"histeq/internal/pipeline"
	"histeq/internal/report"
	"histeq/internal/shutdown"
)

const (
	AppName    = "histeq"
	AppVersion = "1.0.0"
)

type ImageLoader interface {
	Load(path string) (*imageio.Image, error)
}

// Viewer shows images until the user dismisses them.
type Viewer interface {
	Show(title string, img image.Image) fyne.Window
	Run()
	Shutdown()
}

// Options carries the process environment. The image loader and the viewer
// are injected so the command can be exercised without native libraries.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	NewLogger func(level zerolog.Level) logger.Logger
	NewLoader func(log logger.Logger) ImageLoader
	NewViewer func(log logger.Logger) Viewer
}

type Application struct {
	opts Options
	log  logger.Logger
}

func New(opts Options) *Application {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.NewLogger == nil {
		opts.NewLogger = func(level zerolog.Level) logger.Logger {
			return logger.NewConsoleLogger(level)
		}
	}
	return &Application{opts: opts, log: logger.NoOp{}}
}

// Run executes the command for args and reports any failure on stderr. The
// returned error only informs the caller; the process exit status does not
// depend on it.
func (a *Application) Run(args []string) error {
	cfg, err := config.Load(args, a.opts.Getenv)
	if err != nil {
		a.reportError(err)
		return err
	}

	if cfg.Help {
		config.Usage(a.opts.Stderr)
		return nil
	}
	if cfg.ListDevices {
		fmt.Fprintln(a.opts.Stdout, device.ListPlatformsDevices())
		return nil
	}

	a.log = a.opts.NewLogger(logger.ParseLevel(cfg.LogLevel))
	a.log.Info("Application", "starting", map[string]interface{}{
		"version":  AppVersion,
		"image":    cfg.ImagePath,
		"platform": cfg.Platform,
		"device":   cfg.Device,
		"bin_size": cfg.BinSize,
		"binning":  cfg.Binning,
		"scan":     cfg.Scan,
	})

	if err := a.execute(cfg); err != nil {
		a.log.Error("Application", err, map[string]interface{}{
			"kind": failure.KindOf(err).String(),
		})
		a.reportError(err)
		return err
	}
	return nil
}

func (a *Application) execute(cfg config.Config) error {
	lifecycle := shutdown.NewManager(a.log)
	lifecycle.Listen()
	defer lifecycle.Shutdown()

	if a.opts.NewLoader == nil {
		return failure.Decode("load image", errors.New("no image loader available"))
	}
	input, err := a.opts.NewLoader(a.log).Load(cfg.ImagePath)
	if err != nil {
		return err
	}

	ctx, err := device.NewContext(cfg.Platform, cfg.Device, a.log)
	if err != nil {
		return failure.Device("select device", err)
	}
	lifecycle.Register("device context", ctx)

	rep := report.New(a.opts.Stdout)
	rep.Device(ctx)

	src := kernels.DefaultSource()
	if cfg.KernelPath != "" {
		if src, err = device.LoadSource(cfg.KernelPath); err != nil {
			return failure.Config("load kernels", err)
		}
	}

	orch, err := pipeline.NewOrchestrator(ctx, src, cfg, a.log, a.opts.Stdout)
	if err != nil {
		return err
	}
	lifecycle.Register("pipeline", orch)

	res, err := a.runPipeline(orch, input, cfg.Runs)
	if err != nil {
		return err
	}

	rep.Result(res, input)
	if cfg.Runs > 1 {
		rep.Runs(orch.Timings(), cfg.Runs)
	}

	if !cfg.Display || a.opts.NewViewer == nil {
		return nil
	}
	return a.display(lifecycle, input, res.Output)
}

// runPipeline runs the pipeline runs times and returns the first result.
// Later runs must reproduce it exactly.
func (a *Application) runPipeline(orch *pipeline.Orchestrator, input *imageio.Image, runs int) (*pipeline.Result, error) {
	first, err := orch.Run(input)
	if err != nil {
		return nil, err
	}
	for i := 2; i <= runs; i++ {
		res, err := orch.Run(input)
		if err != nil {
			return nil, err
		}
		if !first.Equal(res) {
			msg := fmt.Sprintf("run %d differs from run 1", i)
			first.Warnings = append(first.Warnings, msg)
			a.log.Warning("Application", msg, nil)
		}
	}
	return first, nil
}

func (a *Application) display(lifecycle *shutdown.Manager, input, output *imageio.Image) error {
	in, err := input.ToImage()
	if err != nil {
		return failure.Decode("display input", err)
	}
	out, err := output.ToImage()
	if err != nil {
		return failure.Decode("display output", err)
	}

	viewer := a.opts.NewViewer(a.log)
	lifecycle.Register("viewer", viewer)
	viewer.Show("input", in)
	viewer.Show("output", out)
	viewer.Run()
	return nil
}

// reportError prints err in the command's ERROR line format. Device errors
// carry the failing call and its status name.
func (a *Application) reportError(err error) {
	var devErr *device.Error
	if errors.As(err, &devErr) {
		fmt.Fprintf(a.opts.Stderr, "ERROR: %s, %s\n", devErr.Op, device.ErrorString(devErr.Code))
		return
	}
	fmt.Fprintf(a.opts.Stderr, "ERROR: %v\n", err)
}
