package output

// Outcome of one repository.
const (
	OutcomeSkipped     = "skipped"
	OutcomePlanned     = "planned"
	OutcomeCreated     = "created"
	OutcomeUnconfirmed = "unconfirmed"
	OutcomeFailed      = "failed"
)

// Event types.
const (
	EventRunStarted     = "run.started"
	EventRepoReconciled = "repo.reconciled"
	EventRunFinished    = "run.finished"
)

// RepoResult is what the engine did to one repository.
type RepoResult struct {
	Repo    string `json:"repo"`
	Group   string `json:"group,omitempty"`
	Action  string `json:"action"`
	Reason  string `json:"reason"`
	Outcome string `json:"outcome"`

	// Alert is the alert pass counter, empty when the pass did not run.
	Alert string `json:"alert,omitempty"`

	Error string `json:"error,omitempty"`
}

// Event is a lifecycle record for NDJSON streaming output:
//   - run.started
//   - repo.reconciled
//   - run.finished
//
// JSON mode remains an aggregate of RepoResult values.
type Event struct {
	Type  string `json:"type"`
	RunID string `json:"run_id,omitempty"`
	*RepoResult
	DryRun   bool           `json:"dry_run,omitempty"`
	ExitCode int            `json:"exit_code,omitempty"`
	Stats    map[string]int `json:"stats,omitempty"`
}

func eventFromResult(r RepoResult) Event {
	return Event{Type: EventRepoReconciled, RepoResult: &r}
}
