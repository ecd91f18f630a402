package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReportSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	s, err := NewReportSink(path)
	if err != nil {
		t.Fatalf("NewReportSink failed: %v", err)
	}

	writes := []any{
		Event{Type: EventRunStarted, RunID: "run-1", DryRun: true},
		RepoResult{Repo: "team-a/api", Action: "propose_config", Reason: "missing_sentryclirc", Outcome: OutcomePlanned},
		RepoResult{Repo: "team-a/web", Action: "none", Reason: "has_sentry", Outcome: OutcomeSkipped},
		RepoResult{Repo: "team-a/cli", Action: "none", Reason: "has_sentry", Outcome: OutcomeSkipped},
		RepoResult{Repo: "team-b/db", Action: "provision_and_propose_secret", Reason: "missing_dsn", Outcome: OutcomeFailed, Error: "status 500 | upstream\n  unavailable"},
		Event{Type: EventRunFinished, RunID: "run-1", ExitCode: 2, Stats: map[string]int{"failures": 1, "has_sentry": 2}},
	}
	for _, w := range writes {
		if err := s.Write(w); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	out := string(b)

	for _, want := range []string{
		"# gitlab2sentry Run Report",
		"- Run: `run-1`",
		"- Mode: dry run",
		"- Repositories: 4",
		"- Exit code: 2",
		"| failures | 1 |",
		"| has_sentry | 2 |",
		"## Failed (1)",
		`| team-b/db | provision_and_propose_secret | status 500 \| upstream unavailable |`,
		"## Planned (1)",
		"- **has_sentry**: 2 repos (team-a/cli, team-a/web)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n---\n%s", want, out)
		}
	}
	if strings.Contains(out, "## Merge Requests Opened") {
		t.Errorf("empty sections must be omitted")
	}
}

func TestFormatRepoList(t *testing.T) {
	if got := formatRepoList([]string{"a", "b", "c"}, 2); got != "3 repos (a, b, +1 more)" {
		t.Fatalf("got %q", got)
	}
	if got := formatRepoList(nil, 2); got != "" {
		t.Fatalf("got %q", got)
	}
}
