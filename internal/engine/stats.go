package engine

import (
	"maps"
	"slices"
	"sync"
)

// Counter names besides the decision reasons.
const (
	CounterConfigCreated     = "mr_sentryclirc_created"
	CounterSecretCreated     = "mr_dsn_created"
	CounterSecretUnconfirmed = "dsn_unconfirmed"
	CounterFailures          = "failures"
	CounterPlannedConfig     = "planned_mr_sentryclirc"
	CounterPlannedSecret     = "planned_mr_dsn"

	CounterAlertMRWaiting      = "alert_mr_waiting"
	CounterAlertMRClosed       = "alert_mr_closed"
	CounterAlertMRCreated      = "alert_mr_created"
	CounterAlertIssueWaiting   = "alert_issue_waiting"
	CounterAlertIssueCreated   = "alert_issue_created"
	CounterAlertRulesAdded     = "alert_rules_added"
	CounterAlertRulesPresent   = "alert_rules_present"
	CounterAlertRulesRefreshed = "alert_rules_refreshed"
	CounterPlannedAlert        = "planned_alert"
)

// Stats counts what happened during one run. A zero Stats is ready to use.
type Stats struct {
	mu       sync.Mutex
	counters map[string]int
}

func NewStats() *Stats {
	return &Stats{counters: make(map[string]int)}
}

func (s *Stats) Inc(name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters == nil {
		s.counters = make(map[string]int)
	}
	s.counters[name]++
}

func (s *Stats) Get(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

// Snapshot returns a copy of the non-zero counters.
func (s *Stats) Snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.counters)
}

// Names lists the non-zero counters in sorted order.
func (s *Stats) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.counters))
}
