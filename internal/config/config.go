// Package config assembles the run configuration from defaults, an optional
// TOML file, the environment and command-line flags, in that order of
// precedence.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"histeq/internal/failure"
)

// MaxIntensity is the number of representable 8-bit intensity levels.
const MaxIntensity = 256

const (
	BinningLocal  = "local"
	BinningAtomic = "atomic"

	ScanSerial   = "serial"
	ScanAtomic   = "atomic"
	ScanParallel = "parallel"
)

const (
	DefaultImagePath = "test.pgm"
	DefaultBinSize   = 2
	ConfigEnv        = "HISTEQ_CONFIG"
)

type Config struct {
	Platform     int    `toml:"platform"`
	Device       int    `toml:"device"`
	ImagePath    string `toml:"image"`
	KernelPath   string `toml:"kernels"`
	BuildOptions string `toml:"build_options"`
	BinSize      int    `toml:"bin_size"`
	Binning      string `toml:"binning"`
	Scan         string `toml:"scan"`
	LocalSize    int    `toml:"local_size"`
	Runs         int    `toml:"runs"`
	Display      bool   `toml:"display"`
	LogLevel     string `toml:"log_level"`

	ConfigPath  string `toml:"-"`
	ListDevices bool   `toml:"-"`
	Help        bool   `toml:"-"`
}

func Default() Config {
	return Config{
		ImagePath: DefaultImagePath,
		BinSize:   DefaultBinSize,
		Binning:   BinningLocal,
		Scan:      ScanSerial,
		Runs:      1,
		Display:   true,
		LogLevel:  "info",
	}
}

// NumBins is the histogram length for the configured bin size.
func (c Config) NumBins() int {
	if c.BinSize <= 0 {
		return 0
	}
	return MaxIntensity / c.BinSize
}

// ValidationError reports a single rejected configuration value.
type ValidationError struct {
	Parameter string
	Value     interface{}
	Message   string
}

func NewValidationError(parameter string, value interface{}, message string) *ValidationError {
	return &ValidationError{Parameter: parameter, Value: value, Message: message}
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", ve.Parameter, ve.Value, ve.Message)
}

// ValidateBinSize checks that binSize splits the intensity range into whole bins.
func ValidateBinSize(binSize int) error {
	if binSize < 1 {
		return NewValidationError("bin_size", binSize, "must be at least 1")
	}
	if MaxIntensity%binSize != 0 {
		return NewValidationError("bin_size", binSize, fmt.Sprintf("must divide %d evenly", MaxIntensity))
	}
	return nil
}

func (c Config) Validate() error {
	if err := ValidateBinSize(c.BinSize); err != nil {
		return failure.Config("validate config", err)
	}

	var err error
	switch {
	case c.Platform < 0:
		err = NewValidationError("platform", c.Platform, "must not be negative")
	case c.Device < 0:
		err = NewValidationError("device", c.Device, "must not be negative")
	case c.Binning != BinningLocal && c.Binning != BinningAtomic:
		err = NewValidationError("binning", c.Binning, "expected local or atomic")
	case c.Scan != ScanSerial && c.Scan != ScanAtomic && c.Scan != ScanParallel:
		err = NewValidationError("scan", c.Scan, "expected serial, atomic or parallel")
	case c.LocalSize < 0:
		err = NewValidationError("local_size", c.LocalSize, "must not be negative")
	case c.Runs < 1:
		err = NewValidationError("runs", c.Runs, "must be at least 1")
	case strings.TrimSpace(c.ImagePath) == "":
		err = NewValidationError("image", c.ImagePath, "must not be empty")
	}
	if err != nil {
		return failure.Config("validate config", err)
	}
	return nil
}

// LoadFile overlays the TOML file at path onto cfg. Keys the file sets but
// Config does not know are rejected so typos do not pass silently.
func LoadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return failure.Config("load config file", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return failure.Config("load config file",
			fmt.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", ")))
	}
	return nil
}

// ApplyEnv applies LOG_LEVEL and DEBUG=1 the same way for every entry point.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if level := getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	} else if getenv("DEBUG") == "1" {
		cfg.LogLevel = "debug"
	}
}

// Load builds the configuration for args. Help and device listing requests
// skip validation because they never run the pipeline.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Default()

	fv, err := parseFlags(args)
	if err != nil {
		return cfg, failure.Config("parse flags", err)
	}
	if fv.help {
		cfg.Help = true
		return cfg, nil
	}

	cfg.ConfigPath = fv.configPath
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = getenv(ConfigEnv)
	}
	if cfg.ConfigPath != "" {
		if err := LoadFile(cfg.ConfigPath, &cfg); err != nil {
			return cfg, err
		}
	}

	ApplyEnv(&cfg, getenv)
	fv.apply(&cfg)

	if cfg.ListDevices {
		return cfg, nil
	}
	return cfg, cfg.Validate()
}

func Usage(w io.Writer) {
	fmt.Fprintln(w, "Application usage:")
	fmt.Fprintln(w, "  -p : select platform")
	fmt.Fprintln(w, "  -d : select device")
	fmt.Fprintln(w, "  -l : list all platforms and devices")
	fmt.Fprintf(w, "  -f : input image file (default: %s)\n", DefaultImagePath)
	fmt.Fprintln(w, "  -h : print this message")
	fmt.Fprintln(w, "  -c : TOML configuration file (or $"+ConfigEnv+")")
	fmt.Fprintln(w, "  -k : kernel program source (default: built-in)")
	fmt.Fprintln(w, "  --bin-size N          intensity levels per bin, must divide 256")
	fmt.Fprintln(w, "  --binning local|atomic")
	fmt.Fprintln(w, "  --scan serial|atomic|parallel")
	fmt.Fprintln(w, "  --local-size N        work-group size, 0 lets the device choose")
	fmt.Fprintln(w, "  --build-options STR   options passed to the program build")
	fmt.Fprintln(w, "  --runs N              repeat the pipeline and check the results agree")
	fmt.Fprintln(w, "  --no-display          do not open the input/output windows")
	fmt.Fprintln(w, "  --log-level LEVEL     debug, info, warn or error")
}
