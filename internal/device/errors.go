package device

import "fmt"

// Code is a device status code. Values follow the OpenCL numbering so logs
// read the same as the C++ host programs they replace.
type Code int

const (
	Success                    Code = 0
	DeviceNotFound             Code = -1
	MemObjectAllocationFailure Code = -4
	OutOfResources             Code = -5
	ProfilingInfoNotAvailable  Code = -7
	BuildProgramFailure        Code = -11
	ExecStatusErrorForEvents   Code = -14
	InvalidValue               Code = -30
	InvalidPlatform            Code = -32
	InvalidDevice              Code = -33
	InvalidCommandQueue        Code = -36
	InvalidMemObject           Code = -38
	InvalidBuildOptions        Code = -43
	InvalidProgramExecutable   Code = -45
	InvalidKernelName          Code = -46
	InvalidArgIndex            Code = -49
	InvalidArgValue            Code = -50
	InvalidKernelArgs          Code = -52
	InvalidWorkGroupSize       Code = -54
	InvalidBufferSize          Code = -61
	InvalidGlobalWorkSize      Code = -63
)

var codeNames = map[Code]string{
	Success:                    "CL_SUCCESS",
	DeviceNotFound:             "CL_DEVICE_NOT_FOUND",
	MemObjectAllocationFailure: "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	OutOfResources:             "CL_OUT_OF_RESOURCES",
	ProfilingInfoNotAvailable:  "CL_PROFILING_INFO_NOT_AVAILABLE",
	BuildProgramFailure:        "CL_BUILD_PROGRAM_FAILURE",
	ExecStatusErrorForEvents:   "CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST",
	InvalidValue:               "CL_INVALID_VALUE",
	InvalidPlatform:            "CL_INVALID_PLATFORM",
	InvalidDevice:              "CL_INVALID_DEVICE",
	InvalidCommandQueue:        "CL_INVALID_COMMAND_QUEUE",
	InvalidMemObject:           "CL_INVALID_MEM_OBJECT",
	InvalidBuildOptions:        "CL_INVALID_BUILD_OPTIONS",
	InvalidProgramExecutable:   "CL_INVALID_PROGRAM_EXECUTABLE",
	InvalidKernelName:          "CL_INVALID_KERNEL_NAME",
	InvalidArgIndex:            "CL_INVALID_ARG_INDEX",
	InvalidArgValue:            "CL_INVALID_ARG_VALUE",
	InvalidKernelArgs:          "CL_INVALID_KERNEL_ARGS",
	InvalidWorkGroupSize:       "CL_INVALID_WORK_GROUP_SIZE",
	InvalidBufferSize:          "CL_INVALID_BUFFER_SIZE",
	InvalidGlobalWorkSize:      "CL_INVALID_GLOBAL_WORK_SIZE",
}

// ErrorString returns the symbolic name of code.
func ErrorString(code Code) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return "Unknown OpenCL error"
}

func (c Code) String() string {
	return ErrorString(c)
}

// Error is a failed device operation.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// NewError builds an Error whose cause is the formatted message.
func NewError(code Code, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s (%d)", e.Op, ErrorString(e.Code), int(e.Code))
	}
	return fmt.Sprintf("%s: %s (%d): %v", e.Op, ErrorString(e.Code), int(e.Code), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BuildFailure carries the compiler diagnostics of a failed program build.
type BuildFailure struct {
	Status  BuildStatus
	Options string
	Log     string
}

func (e *BuildFailure) Error() string {
	return fmt.Sprintf("program build %s", e.Status)
}
