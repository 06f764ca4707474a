package config

import (
	"io"

	"github.com/spf13/pflag"
)

type flagValues struct {
	fs *pflag.FlagSet

	platform     int
	device       int
	list         bool
	imagePath    string
	help         bool
	configPath   string
	kernelPath   string
	buildOptions string
	binSize      int
	binning      string
	scan         string
	localSize    int
	runs         int
	noDisplay    bool
	logLevel     string
}

// parseFlags reads args without failing on flags it does not know; those are
// dropped, matching the single-dash options the command has always accepted.
func parseFlags(args []string) (*flagValues, error) {
	fv := &flagValues{}
	fs := pflag.NewFlagSet("histeq", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.ParseErrorsWhitelist.UnknownFlags = true

	def := Default()
	fs.IntVarP(&fv.platform, "platform", "p", def.Platform, "platform index")
	fs.IntVarP(&fv.device, "device", "d", def.Device, "device index")
	fs.BoolVarP(&fv.list, "list", "l", false, "list all platforms and devices")
	fs.StringVarP(&fv.imagePath, "file", "f", def.ImagePath, "input image file")
	fs.BoolVarP(&fv.help, "help", "h", false, "print usage")
	fs.StringVarP(&fv.configPath, "config", "c", "", "TOML configuration file")
	fs.StringVarP(&fv.kernelPath, "kernels", "k", "", "kernel program source")
	fs.StringVar(&fv.buildOptions, "build-options", "", "program build options")
	fs.IntVar(&fv.binSize, "bin-size", def.BinSize, "intensity levels per bin")
	fs.StringVar(&fv.binning, "binning", def.Binning, "binning strategy")
	fs.StringVar(&fv.scan, "scan", def.Scan, "prefix-sum strategy")
	fs.IntVar(&fv.localSize, "local-size", def.LocalSize, "work-group size")
	fs.IntVar(&fv.runs, "runs", def.Runs, "pipeline repetitions")
	fs.BoolVar(&fv.noDisplay, "no-display", false, "do not open windows")
	fs.StringVar(&fv.logLevel, "log-level", def.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fv.fs = fs
	return fv, nil
}

// apply copies only the flags the user set, so file and environment values
// survive when the flag was left at its default.
func (fv *flagValues) apply(cfg *Config) {
	set := func(name string) bool { return fv.fs.Changed(name) }

	if set("platform") {
		cfg.Platform = fv.platform
	}
	if set("device") {
		cfg.Device = fv.device
	}
	if set("file") {
		cfg.ImagePath = fv.imagePath
	}
	if set("kernels") {
		cfg.KernelPath = fv.kernelPath
	}
	if set("build-options") {
		cfg.BuildOptions = fv.buildOptions
	}
	if set("bin-size") {
		cfg.BinSize = fv.binSize
	}
	if set("binning") {
		cfg.Binning = fv.binning
	}
	if set("scan") {
		cfg.Scan = fv.scan
	}
	if set("local-size") {
		cfg.LocalSize = fv.localSize
	}
	if set("runs") {
		cfg.Runs = fv.runs
	}
	if set("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if fv.noDisplay {
		cfg.Display = false
	}
	cfg.ListDevices = fv.list
}
