package output

import (
	"errors"
	"fmt"
)

// Sink is a destination for run events and repository results.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager fans every write out to its sinks. A nil *Manager discards.
type Manager struct {
	sinks []Sink
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.sinks = append(m.sinks, s)
	return nil
}

func (m *Manager) Write(v any) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(v); err != nil {
			errs = append(errs, fmt.Errorf("write %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors writing to sinks: %w", errors.Join(errs...))
	}
	return nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sinks: %w", errors.Join(errs...))
	}
	return nil
}

// Options selects the sinks of a run.
type Options struct {
	ConsoleFormat string
	NoConsole     bool
	Out           string
	OutFormat     string
	Report        string
}

// NewManagerFor builds the console, file and report sinks from opts.
// Console output goes to stdout.
func NewManagerFor(opts Options) (*Manager, error) {
	m := NewManager()
	var sinks []func() (Sink, error)
	if !opts.NoConsole {
		sinks = append(sinks, func() (Sink, error) { return NewConsoleSink(nil, opts.ConsoleFormat), nil })
	}
	if opts.Out != "" {
		sinks = append(sinks, func() (Sink, error) { return NewFileSink(opts.Out, opts.OutFormat) })
	}
	if opts.Report != "" {
		sinks = append(sinks, func() (Sink, error) { return NewReportSink(opts.Report) })
	}
	for _, build := range sinks {
		s, err := build()
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		if err := m.AddSink(s); err != nil {
			_ = m.Close()
			return nil, err
		}
	}
	return m, nil
}
