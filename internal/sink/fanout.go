package sink

import (
	"errors"
	"fmt"

	"mppsolar2mqtt/internal/core/port"
)

// Fanout writes to every sink. A call fails when any sink fails, but all
// sinks are always attempted.
type Fanout struct {
	sinks []port.PublishSink
}

func NewFanout(sinks ...port.PublishSink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) AddPath(path string, value any, required bool, description string) error {
	return f.each(func(s port.PublishSink) error { return s.AddPath(path, value, required, description) })
}

func (f *Fanout) Set(path string, value any) error {
	return f.each(func(s port.PublishSink) error { return s.Set(path, value) })
}

func (f *Fanout) Register() error {
	return f.each(func(s port.PublishSink) error { return s.Register() })
}

func (f *Fanout) each(fn func(port.PublishSink) error) error {
	var errs []error
	for i, s := range f.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, s, err))
		}
	}
	return errors.Join(errs...)
}

// ensure interface compliance
var _ port.PublishSink = (*Fanout)(nil)
