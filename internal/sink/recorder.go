package sink

import (
	"errors"
	"fmt"
	"sync"

	"mppsolar2mqtt/internal/core/domain"
	"mppsolar2mqtt/internal/core/port"
)

var ErrUnknownPath = errors.New("unknown path")

type RecordedPath struct {
	Default     any
	Required    bool
	Description string
}

// Recorder keeps every path and write in memory. Writes to paths listed in
// Failures are rejected with the given error.
type Recorder struct {
	mu         sync.Mutex
	paths      map[string]RecordedPath
	order      []string
	values     map[string]any
	writes     []string
	registered bool
	failures   map[string]error
}

func NewRecorder() *Recorder {
	return &Recorder{
		paths:    map[string]RecordedPath{},
		values:   map[string]any{},
		failures: map[string]error{},
	}
}

func (r *Recorder) AddPath(path string, value any, required bool, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		return fmt.Errorf("add path %s after register", path)
	}
	if _, ok := r.paths[path]; !ok {
		r.order = append(r.order, path)
	}
	r.paths[path] = RecordedPath{Default: value, Required: required, Description: description}
	r.values[path] = value
	return nil
}

func (r *Recorder) Set(path string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.paths[path]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	if err, ok := r.failures[path]; ok {
		return err
	}
	r.values[path] = value
	r.writes = append(r.writes, path)
	return nil
}

func (r *Recorder) Register() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = true
	return nil
}

func (r *Recorder) FailPath(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[path] = err
}

func (r *Recorder) Registered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered
}

func (r *Recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *Recorder) HasPath(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.paths[path]
	return ok
}

func (r *Recorder) Value(path string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[path]
	return v, ok
}

// Writes lists the paths written by Set, in order.
func (r *Recorder) Writes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func (r *Recorder) ResetWrites() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}

// RecorderFactory hands out one Recorder per service kind.
type RecorderFactory struct {
	mu        sync.Mutex
	recorders map[domain.ServiceKind]*Recorder
	fail      map[domain.ServiceKind]error
}

func NewRecorderFactory() *RecorderFactory {
	return &RecorderFactory{
		recorders: map[domain.ServiceKind]*Recorder{},
		fail:      map[domain.ServiceKind]error{},
	}
}

func (f *RecorderFactory) FailKind(kind domain.ServiceKind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[kind] = err
}

func (f *RecorderFactory) Get(kind domain.ServiceKind) *Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorders[kind]
}

func (f *RecorderFactory) Factory() port.SinkFactory {
	return func(kind domain.ServiceKind, _ domain.ServiceIdentity, _ string) (port.PublishSink, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if err, ok := f.fail[kind]; ok {
			return nil, err
		}
		r := NewRecorder()
		f.recorders[kind] = r
		return r, nil
	}
}

// ensure interface compliance
var _ port.PublishSink = (*Recorder)(nil)
