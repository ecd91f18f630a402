package output

import (
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteSummary renders the run counters as a table. Counters are sorted by
// name; zero counters are omitted.
func WriteSummary(w io.Writer, stats map[string]int, exitCode int) {
	names := make([]string, 0, len(stats))
	for name, n := range stats {
		if n == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("gitlab2sentry")
	t.AppendHeader(table.Row{"Counter", "Count"})
	for _, name := range names {
		t.AppendRow(table.Row{counterLabel(name), stats[name]})
	}
	t.AppendFooter(table.Row{"exit code", exitCode})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	t.Render()
}

func counterLabel(name string) string {
	switch name {
	case "failures":
		return text.FgRed.Sprint(name)
	case "mr_sentryclirc_created", "mr_dsn_created", "alert_mr_created", "alert_rules_added", "alert_rules_refreshed":
		return text.FgGreen.Sprint(name)
	}
	return name
}
