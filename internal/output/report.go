package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// ReportSink writes a Markdown run report on Close.
type ReportSink struct {
	path         string
	file         *os.File
	mu           sync.Mutex
	results      []RepoResult
	runID        string
	dryRun       bool
	stats        map[string]int
	exitCode     int
	haveExitCode bool
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{path: path, file: f}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case RepoResult:
		s.results = append(s.results, t)
	case Event:
		switch t.Type {
		case EventRunStarted:
			s.runID = t.RunID
			s.dryRun = t.DryRun
		case EventRunFinished:
			s.exitCode = t.ExitCode
			s.haveExitCode = true
			s.stats = t.Stats
		}
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content := s.render()
	if _, err := s.file.WriteString(content); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *ReportSink) render() string {
	byOutcome := make(map[string][]RepoResult)
	for _, r := range s.results {
		byOutcome[r.Outcome] = append(byOutcome[r.Outcome], r)
	}

	var b strings.Builder
	b.WriteString("# gitlab2sentry Run Report\n\n")
	if s.runID != "" {
		fmt.Fprintf(&b, "- Run: `%s`\n", s.runID)
	}
	if s.dryRun {
		b.WriteString("- Mode: dry run, nothing was changed\n")
	}
	fmt.Fprintf(&b, "- Repositories: %d\n", len(s.results))
	if s.haveExitCode {
		fmt.Fprintf(&b, "- Exit code: %d\n", s.exitCode)
	}
	b.WriteString("\n")

	b.WriteString("## Counters\n\n")
	if len(s.stats) == 0 {
		b.WriteString("No counters recorded.\n\n")
	} else {
		names := make([]string, 0, len(s.stats))
		for name := range s.stats {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("| Counter | Count |\n")
		b.WriteString("| --- | ---: |\n")
		for _, name := range names {
			fmt.Fprintf(&b, "| %s | %d |\n", name, s.stats[name])
		}
		b.WriteString("\n")
	}

	writeSection := func(title, outcome string, withError bool) {
		rs := byOutcome[outcome]
		if len(rs) == 0 {
			return
		}
		sort.Slice(rs, func(i, j int) bool { return rs[i].Repo < rs[j].Repo })
		fmt.Fprintf(&b, "## %s (%d)\n\n", title, len(rs))
		if withError {
			b.WriteString("| Repo | Action | Error |\n")
			b.WriteString("| --- | --- | --- |\n")
			for _, r := range rs {
				fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Repo, r.Action, escapeCell(normalizeErrorReason(r.Error)))
			}
		} else {
			b.WriteString("| Repo | Action | Reason |\n")
			b.WriteString("| --- | --- | --- |\n")
			for _, r := range rs {
				fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Repo, r.Action, r.Reason)
			}
		}
		b.WriteString("\n")
	}
	writeSection("Failed", OutcomeFailed, true)
	writeSection("Merge Requests Opened", OutcomeCreated, false)
	writeSection("Planned", OutcomePlanned, false)
	writeSection("Secret Not Confirmed", OutcomeUnconfirmed, false)

	if skipped := byOutcome[OutcomeSkipped]; len(skipped) > 0 {
		reasons := make(map[string][]string)
		for _, r := range skipped {
			reasons[r.Reason] = append(reasons[r.Reason], r.Repo)
		}
		keys := make([]string, 0, len(reasons))
		for k := range reasons {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "## Skipped (%d)\n\n", len(skipped))
		for _, k := range keys {
			repos := reasons[k]
			sort.Strings(repos)
			fmt.Fprintf(&b, "- **%s**: %s\n", k, formatRepoList(repos, 5))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// normalizeErrorReason collapses whitespace and truncates long messages.
func normalizeErrorReason(errText string) string {
	s := strings.Join(strings.Fields(errText), " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func formatRepoList(repos []string, max int) string {
	if len(repos) == 0 {
		return ""
	}
	if len(repos) <= max {
		return fmt.Sprintf("%d repos (%s)", len(repos), strings.Join(repos, ", "))
	}
	return fmt.Sprintf("%d repos (%s, +%d more)", len(repos), strings.Join(repos[:max], ", "), len(repos)-max)
}
