package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileSink_InferFormat(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.json", "out.ndjson", "out.jsonl"} {
		s, err := NewFileSink(filepath.Join(dir, name), "")
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", name, err)
		}
		_ = s.Close()
	}

	_, err := NewFileSink(filepath.Join(dir, "out.unknown"), "")
	if err == nil || !strings.Contains(err.Error(), "cannot infer output format") {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = NewFileSink(filepath.Join(dir, "out.json"), "xml")
	if err == nil || !strings.Contains(err.Error(), "unsupported output format") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFileSink_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs", "out.json")
	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("output file missing: %v", err)
	}
}

func TestFileSink_JSON_AggregatesResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	s, err := NewFileSink(path, "json")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	_ = s.Write(Event{Type: EventRunStarted})
	_ = s.Write(RepoResult{Repo: "team-a/api", Outcome: OutcomeCreated})
	_ = s.Write(RepoResult{Repo: "team-a/web", Outcome: OutcomeFailed, Error: "boom"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var got []RepoResult
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v\nbody=%s", err, b)
	}
	if len(got) != 2 || got[0].Repo != "team-a/api" || got[1].Error != "boom" {
		t.Fatalf("unexpected results: %#v", got)
	}
}

func TestFileSink_NDJSON_Streams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ndjson")
	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	_ = s.Write(Event{Type: EventRunStarted, RunID: "r1"})
	_ = s.Write(RepoResult{Repo: "team-a/api", Outcome: OutcomeSkipped, Reason: "has_sentry"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d\nbody=%s", len(lines), b)
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if e.Type != EventRepoReconciled || e.RepoResult == nil || e.Reason != "has_sentry" {
		t.Fatalf("unexpected event: %#v", e)
	}
}
