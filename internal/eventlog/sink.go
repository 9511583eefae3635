package eventlog

import "errors"

// Sink receives bad-posture events.
type Sink interface {
	Log(ev Event) error
}

// FileSink appends events to a log file.
type FileSink struct {
	Path string
}

// Log appends ev to the sink's file.
func (s FileSink) Log(ev Event) error {
	_, err := Append(s.Path, ev)
	return err
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event) error

// Log calls fn(ev).
func (fn SinkFunc) Log(ev Event) error {
	return fn(ev)
}

// Multi returns a Sink that forwards each event to every sink and joins
// their errors.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Log(ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Log(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory. It is used in tests.
type MemorySink struct {
	Events []Event
	Err    error
}

// Log records ev, or returns the configured error.
func (m *MemorySink) Log(ev Event) error {
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, ev)
	return nil
}
