package device

import (
	"sync"
	"time"
)

// Profile holds the command timestamps recorded on a profiling queue.
type Profile struct {
	Queued time.Time
	Submit time.Time
	Start  time.Time
	End    time.Time
}

// Duration is the execution time of the command, end minus start.
func (p Profile) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Event tracks one enqueued command until it completes.
type Event struct {
	command   string
	profiling bool

	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
	prof Profile
}

func newEvent(command string, profiling bool) *Event {
	return &Event{
		command:   command,
		profiling: profiling,
		done:      make(chan struct{}),
		prof:      Profile{Queued: time.Now()},
	}
}

func (e *Event) Command() string { return e.command }

// Wait blocks until the command finishes and returns its error.
func (e *Event) Wait() error {
	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Done is closed when the command has finished.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// ProfilingInfo returns the command timestamps. It fails before the command
// completes and on queues created without QueueProfilingEnable.
func (e *Event) ProfilingInfo() (Profile, error) {
	if !e.profiling {
		return Profile{}, NewError(ProfilingInfoNotAvailable, "GetProfilingInfo", "queue created without profiling")
	}
	select {
	case <-e.done:
	default:
		return Profile{}, NewError(ProfilingInfoNotAvailable, "GetProfilingInfo", "%s has not completed", e.command)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prof, nil
}

// Duration is a convenience for ProfilingInfo().Duration() that yields 0 when
// no profile is available.
func (e *Event) Duration() time.Duration {
	p, err := e.ProfilingInfo()
	if err != nil {
		return 0
	}
	return p.Duration()
}

func (e *Event) submitted() {
	e.mu.Lock()
	e.prof.Submit = time.Now()
	e.mu.Unlock()
}

func (e *Event) started() {
	e.mu.Lock()
	e.prof.Start = time.Now()
	e.mu.Unlock()
}

func (e *Event) complete(err error) {
	e.once.Do(func() {
		e.mu.Lock()
		e.prof.End = time.Now()
		if e.prof.Start.IsZero() {
			e.prof.Start = e.prof.End
		}
		e.err = err
		e.mu.Unlock()
		close(e.done)
	})
}

// WaitForEvents waits for all events and returns the first error found.
func WaitForEvents(events ...*Event) error {
	var first error
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if err := ev.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
