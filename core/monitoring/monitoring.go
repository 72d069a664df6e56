package monitoring

import (
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

// Recorder is an in-memory Monitor for tests.
type Recorder struct {
	mu     sync.Mutex
	errors []error
	tags   []map[string]string
}

func (r *Recorder) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.tags = append(r.tags, tags)
}

// Captured returns the recorded errors and their tags.
func (r *Recorder) Captured() ([]error, []map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...), append([]map[string]string(nil), r.tags...)
}

func (r *Recorder) Recover()            {}
func (r *Recorder) Flush(time.Duration) {}

// OrNop returns m, or NopMonitor when m is nil.
func OrNop(m Monitor) Monitor {
	if m == nil {
		return NopMonitor{}
	}
	return m
}
