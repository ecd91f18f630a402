package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, map[string]int{"has_sentry": 3, "mr_disabled": 0, "failures": 1}, 2)

	out := buf.String()
	for _, want := range []string{"has_sentry", "failures", "exit code"} {
		if !strings.Contains(strings.ToLower(out), want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "mr_disabled") {
		t.Errorf("zero counters must be omitted:\n%s", out)
	}
	if strings.Index(out, "failures") > strings.Index(out, "has_sentry") {
		t.Errorf("counters must be sorted by name:\n%s", out)
	}
}
