package device

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid"
	"golang.org/x/sys/cpu"
)

const (
	defaultGlobalMemSize    = 2 * 1024 * 1024 * 1024
	defaultMaxWorkGroupSize = 1024
	preferredWorkGroupSize  = 256
)

type Type int

const (
	TypeCPU Type = iota
	TypeReference
)

func (t Type) String() string {
	switch t {
	case TypeCPU:
		return "CPU"
	case TypeReference:
		return "REFERENCE"
	default:
		return "UNKNOWN"
	}
}

// Device describes one execution target on a platform.
//
//	ComputeUnits      work-groups that may execute at the same time
//	MaxWorkGroupSize  largest local size accepted by EnqueueNDRangeKernel
//	GlobalMemSize     upper bound on the bytes held by live buffers
type Device struct {
	Index            int
	Name             string
	Type             Type
	ComputeUnits     int
	MaxWorkGroupSize int
	GlobalMemSize    int64
	CacheLine        int
	L1Cache          int
	L2Cache          int
	L3Cache          int
	Extensions       []string
}

type Platform struct {
	Index   int
	Name    string
	Vendor  string
	Version string
	Devices []*Device
}

// Platforms enumerates the available platforms. Platform 0 runs kernels on
// every logical core of the host; platform 1 is a single-unit reference
// target whose work-groups execute one after another.
func Platforms() []*Platform {
	name := strings.TrimSpace(cpuid.CPU.BrandName)
	if name == "" {
		name = "Generic " + runtime.GOARCH + " processor"
	}

	units := cpuid.CPU.LogicalCores
	if units <= 0 {
		units = runtime.NumCPU()
	}

	host := &Device{
		Index:            0,
		Name:             name,
		Type:             TypeCPU,
		ComputeUnits:     units,
		MaxWorkGroupSize: defaultMaxWorkGroupSize,
		GlobalMemSize:    defaultGlobalMemSize,
		CacheLine:        cpuid.CPU.CacheLine,
		L1Cache:          cpuid.CPU.Cache.L1D,
		L2Cache:          cpuid.CPU.Cache.L2,
		L3Cache:          cpuid.CPU.Cache.L3,
		Extensions:       extensions(),
	}

	reference := &Device{
		Index:            0,
		Name:             "Scalar reference device",
		Type:             TypeReference,
		ComputeUnits:     1,
		MaxWorkGroupSize: preferredWorkGroupSize,
		GlobalMemSize:    defaultGlobalMemSize,
	}

	return []*Platform{
		{
			Index:   0,
			Name:    "Go Compute Platform",
			Vendor:  "histeq",
			Version: "1.0 " + runtime.Version(),
			Devices: []*Device{host},
		},
		{
			Index:   1,
			Name:    "Reference Platform",
			Vendor:  "histeq",
			Version: "1.0",
			Devices: []*Device{reference},
		},
	}
}

// extensions reports the vector instruction sets the host exposes.
func extensions() []string {
	var ext []string
	add := func(ok bool, name string) {
		if ok {
			ext = append(ext, name)
		}
	}

	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE2, "sse2")
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasSSE42, "sse4.2")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
		add(cpu.X86.HasPOPCNT, "popcnt")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasATOMICS, "lse-atomics")
		add(cpu.ARM64.HasSVE, "sve")
		add(cpu.ARM64.HasFPHP, "fp16")
	}
	return ext
}

// Lookup resolves a platform/device index pair.
func Lookup(platformIndex, deviceIndex int) (*Platform, *Device, error) {
	platforms := Platforms()
	if platformIndex < 0 || platformIndex >= len(platforms) {
		return nil, nil, NewError(InvalidPlatform, "GetContext",
			"platform %d not available, %d platform(s) found", platformIndex, len(platforms))
	}
	p := platforms[platformIndex]
	if deviceIndex < 0 || deviceIndex >= len(p.Devices) {
		return nil, nil, NewError(DeviceNotFound, "GetContext",
			"device %d not available on platform %d, %d device(s) found", deviceIndex, platformIndex, len(p.Devices))
	}
	return p, p.Devices[deviceIndex], nil
}

// ListPlatformsDevices renders every platform and its devices for the -l flag.
func ListPlatformsDevices() string {
	var sb strings.Builder
	platforms := Platforms()

	fmt.Fprintf(&sb, "Found %d platform(s):\n", len(platforms))
	for _, p := range platforms {
		fmt.Fprintf(&sb, "\nPlatform %d, %s, version: %s, vendor: %s\n", p.Index, p.Name, p.Version, p.Vendor)
		fmt.Fprintf(&sb, "\tFound %d device(s):\n", len(p.Devices))
		for _, d := range p.Devices {
			fmt.Fprintf(&sb, "\n\tDevice %d, %s, type: %s\n", d.Index, d.Name, d.Type)
			fmt.Fprintf(&sb, "\t\tcompute units: %d, max work-group size: %d\n", d.ComputeUnits, d.MaxWorkGroupSize)
			fmt.Fprintf(&sb, "\t\tglobal memory: %d MiB\n", d.GlobalMemSize/(1024*1024))
			if d.L1Cache > 0 || d.L2Cache > 0 || d.L3Cache > 0 {
				fmt.Fprintf(&sb, "\t\tcache: L1d %d KiB, L2 %d KiB, L3 %d KiB, line %d B\n",
					d.L1Cache/1024, d.L2Cache/1024, d.L3Cache/1024, d.CacheLine)
			}
			if len(d.Extensions) > 0 {
				fmt.Fprintf(&sb, "\t\textensions: %s\n", strings.Join(d.Extensions, " "))
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
