package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

type ConsoleSink struct {
	writer  io.Writer
	format  string // "text", "json", "ndjson"
	mu      sync.Mutex
	results []RepoResult // For JSON array output
}

func NewConsoleSink(w io.Writer, format string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	return &ConsoleSink{writer: w, format: format}
}

var outcomeColors = map[string]*color.Color{
	OutcomeCreated:     color.New(color.FgGreen, color.Bold),
	OutcomePlanned:     color.New(color.FgCyan),
	OutcomeSkipped:     color.New(color.Faint),
	OutcomeUnconfirmed: color.New(color.FgYellow),
	OutcomeFailed:      color.New(color.FgRed, color.Bold),
}

func colorOutcome(outcome string) string {
	c, ok := outcomeColors[outcome]
	if !ok {
		return outcome
	}
	return c.Sprint(outcome)
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	switch s.format {
	case "json":
		r, ok := v.(RepoResult)
		if !ok {
			// Ignore non-result events in JSON console mode.
			return nil
		}
		s.results = append(s.results, r)
		return nil
	case "ndjson":
		return writeNDJSON(s.writer, v)
	case "text":
		r, ok := v.(RepoResult)
		if !ok {
			return nil
		}
		line := fmt.Sprintf("[%s] %s: %s", colorOutcome(r.Outcome), r.Repo, r.Reason)
		if r.Action != "" && r.Action != "none" {
			line += " -> " + r.Action
		}
		if r.Alert != "" {
			line += " (alerting: " + r.Alert + ")"
		}
		if r.Error != "" {
			line += " - " + r.Error
		}
		if _, err := fmt.Fprintln(s.writer, line); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json":
		return writeJSONArray(s.writer, s.results)
	case "text", "ndjson":
		return nil
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

// writeNDJSON encodes events as is and results as repo.reconciled events.
func writeNDJSON(w io.Writer, v any) error {
	var e Event
	switch t := v.(type) {
	case Event:
		e = t
	case RepoResult:
		e = eventFromResult(t)
	default:
		return nil
	}
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	return flushIfPossible(w)
}

func writeJSONArray(w io.Writer, results []RepoResult) error {
	if results == nil {
		results = []RepoResult{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return err
	}
	return flushIfPossible(w)
}
