package device

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

type BuildStatus int

const (
	BuildNone BuildStatus = iota
	BuildError
	BuildSuccess
	BuildInProgress
)

func (s BuildStatus) String() string {
	switch s {
	case BuildNone:
		return "none"
	case BuildError:
		return "error"
	case BuildSuccess:
		return "success"
	case BuildInProgress:
		return "in progress"
	default:
		return "unknown"
	}
}

// Source is kernel program text plus the name used in diagnostics.
type Source struct {
	Name string
	Text string
}

// LoadSource reads a kernel program from disk.
func LoadSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("load program source: %w", err)
	}
	return Source{Name: filepath.Base(path), Text: string(data)}, nil
}

// BuildInfo is what Program.BuildInfo reports for the context's device.
type BuildInfo struct {
	Status  BuildStatus
	Options string
	Log     string
}

// Program is a kernel program created from a source and compiled against a
// kernel library for one context's device.
type Program struct {
	ctx *Context
	src Source
	lib Library

	mu      sync.Mutex
	info    BuildInfo
	kernels map[string]*KernelDef
}

func (c *Context) CreateProgram(src Source, lib Library) *Program {
	return &Program{ctx: c, src: src, lib: lib}
}

var declPattern = regexp.MustCompile(`^(?:__)?kernel\s+(?:void\s+)?([A-Za-z_]\w*)\s*\(([^)]*)\)\s*;?$`)

type declaration struct {
	line   int
	name   string
	params []Param
}

// Build compiles the program. On failure the returned error wraps a
// *BuildFailure holding the status, options and log, which BuildInfo also
// reports afterwards.
func (p *Program) Build(options string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.info = BuildInfo{Status: BuildInProgress, Options: options}
	diag := &buildLog{source: p.src.Name}

	werror := parseBuildOptions(options, diag)
	decls := parseDeclarations(p.src.Text, diag)
	if len(decls) == 0 && diag.errors == 0 {
		diag.warn(0, "program declares no kernels")
	}

	kernels := make(map[string]*KernelDef, len(decls))
	seen := make(map[string]int, len(decls))
	for _, d := range decls {
		if first, dup := seen[d.name]; dup {
			diag.error(d.line, "redefinition of kernel '%s' (first declared on line %d)", d.name, first)
			continue
		}
		seen[d.name] = d.line

		def, ok := p.lib[d.name]
		if !ok {
			diag.error(d.line, "kernel '%s' has no implementation for device '%s'", d.name, p.ctx.device.Name)
			continue
		}
		if matchSignature(d, def, diag) {
			kernels[d.name] = def
		}
	}

	if werror && diag.warnings > 0 {
		diag.error(0, "%d warning(s) treated as errors", diag.warnings)
	}

	p.info.Log = diag.String()
	if diag.errors > 0 {
		p.info.Status = BuildError
		p.kernels = nil
		return &Error{
			Code: BuildProgramFailure,
			Op:   "Program.Build",
			Err:  &BuildFailure{Status: p.info.Status, Options: p.info.Options, Log: p.info.Log},
		}
	}

	p.info.Status = BuildSuccess
	p.kernels = kernels
	p.ctx.log.Debug("Program", "program built", map[string]interface{}{
		"source":  p.src.Name,
		"kernels": len(kernels),
		"options": options,
	})
	return nil
}

func (p *Program) BuildInfo() BuildInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// KernelNames lists the kernels of a built program in name order.
func (p *Program) KernelNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.kernels))
	for name := range p.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Program) lookup(name string) (*KernelDef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.info.Status != BuildSuccess {
		return nil, NewError(InvalidProgramExecutable, "CreateKernel", "program not built")
	}
	def, ok := p.kernels[name]
	if !ok {
		return nil, NewError(InvalidKernelName, "CreateKernel", "no kernel '%s' in program", name)
	}
	return def, nil
}

func parseBuildOptions(options string, diag *buildLog) (werror bool) {
	fields := strings.Fields(options)
	for i := 0; i < len(fields); i++ {
		opt := fields[i]
		switch {
		case opt == "-Werror":
			werror = true
		case opt == "-w":
			diag.quiet = true
		case opt == "-D":
			if i+1 >= len(fields) {
				diag.error(0, "missing macro name after '-D'")
			}
			i++
		case strings.HasPrefix(opt, "-D"):
		case strings.HasPrefix(opt, "-cl-"):
		default:
			diag.error(0, "unrecognized build option '%s'", opt)
		}
	}
	return werror
}

func parseDeclarations(text string, diag *buildLog) []declaration {
	var decls []declaration
	for i, raw := range strings.Split(text, "\n") {
		line := i + 1
		if idx := strings.Index(raw, "//"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		m := declPattern.FindStringSubmatch(raw)
		if m == nil {
			diag.error(line, "expected kernel declaration")
			continue
		}

		d := declaration{line: line, name: m[1]}
		ok := true
		if strings.TrimSpace(m[2]) != "" && strings.TrimSpace(m[2]) != "void" {
			for j, text := range strings.Split(m[2], ",") {
				param, err := parseParam(text)
				if err != nil {
					diag.error(line, "parameter %d of '%s': %v", j+1, d.name, err)
					ok = false
					continue
				}
				d.params = append(d.params, param)
			}
		}
		if ok {
			decls = append(decls, d)
		}
	}
	return decls
}

func parseParam(text string) (Param, error) {
	fields := strings.Fields(strings.ReplaceAll(text, "*", " * "))
	if len(fields) < 2 {
		return Param{}, fmt.Errorf("malformed '%s'", strings.TrimSpace(text))
	}

	var param Param
	pointer := false
	var typ string
	for _, f := range fields[:len(fields)-1] {
		switch strings.TrimPrefix(f, "__") {
		case "global":
			param.Space = Global
		case "local":
			param.Space = Local
		case "const", "restrict", "unsigned":
		case "*":
			pointer = true
		default:
			typ = f
		}
	}
	param.Name = fields[len(fields)-1]

	switch typ {
	case "uchar":
		param.Elem = Uint8
	case "int":
		param.Elem = Int32
	default:
		return Param{}, fmt.Errorf("unsupported type '%s'", typ)
	}
	if param.Space != Private && !pointer {
		return Param{}, fmt.Errorf("%s parameter '%s' must be a pointer", param.Space, param.Name)
	}
	if param.Space == Private && pointer {
		return Param{}, fmt.Errorf("pointer parameter '%s' needs an address space", param.Name)
	}
	return param, nil
}

func matchSignature(d declaration, def *KernelDef, diag *buildLog) bool {
	if len(d.params) != len(def.Params) {
		diag.error(d.line, "kernel '%s' declared with %d parameter(s), implementation takes %d",
			d.name, len(d.params), len(def.Params))
		return false
	}
	ok := true
	for i, got := range d.params {
		want := def.Params[i]
		if got.Space != want.Space || got.Elem != want.Elem {
			diag.error(d.line, "parameter %d of '%s' is %s, implementation expects %s", i+1, d.name, got, want)
			ok = false
			continue
		}
		if got.Name != want.Name {
			diag.warn(d.line, "parameter %d of '%s' named '%s', implementation calls it '%s'", i+1, d.name, got.Name, want.Name)
		}
	}
	return ok
}

type buildLog struct {
	source   string
	lines    []string
	errors   int
	warnings int
	quiet    bool
}

func (b *buildLog) add(line int, severity, format string, args ...interface{}) {
	loc := b.source
	if line > 0 {
		loc = fmt.Sprintf("%s:%d", b.source, line)
	}
	b.lines = append(b.lines, fmt.Sprintf("%s: %s: %s", loc, severity, fmt.Sprintf(format, args...)))
}

func (b *buildLog) error(line int, format string, args ...interface{}) {
	b.errors++
	b.add(line, "error", format, args...)
}

func (b *buildLog) warn(line int, format string, args ...interface{}) {
	if b.quiet {
		return
	}
	b.warnings++
	b.add(line, "warning", format, args...)
}

func (b *buildLog) String() string {
	return strings.Join(b.lines, "\n")
}
