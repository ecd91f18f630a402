package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/numberly/gitlab2sentry/internal/config"
	"github.com/numberly/gitlab2sentry/internal/inventory"
	"github.com/numberly/gitlab2sentry/internal/output"
	"github.com/numberly/gitlab2sentry/internal/sentry"
)

// Exit code contract:
// 0 = clean run
// 2 = partial failure (one or more repositories failed)
// 3 = fatal error (nothing was reconciled)
const (
	ExitOK      = 0
	ExitPartial = 2
	ExitFatal   = 3
)

func exitCodeForRun(fatal, partial bool) int {
	if fatal {
		return ExitFatal
	}
	if partial {
		return ExitPartial
	}
	return ExitOK
}

// Inventory enumerates team repositories.
type Inventory interface {
	Pages(ctx context.Context) inventory.Pager
	Lookup(ctx context.Context, fullPath string) (inventory.RepositoryDescriptor, bool, error)
}

// Provisioner creates the Sentry side of a repository.
type Provisioner interface {
	EnsureTeam(ctx context.Context, name string) bool
	GetOrCreateProject(ctx context.Context, name, team string) (*sentry.Project, error)
	IssueSecret(ctx context.Context, projectSlug string) (dsn string, ok bool, err error)
}

// Submitter opens merge requests. Each call reports whether the merge
// request was created.
type Submitter interface {
	ProposeConfig(ctx context.Context, d inventory.RepositoryDescriptor) bool
	ProposeSecret(ctx context.Context, d inventory.RepositoryDescriptor, dsn, projectSlug string) bool
	ProposeAlerting(ctx context.Context, d inventory.RepositoryDescriptor, content string) bool
}

// ErrorReporter receives per-repository failures.
type ErrorReporter interface {
	Capture(err error, tags map[string]string)
}

type nopReporter struct{}

func (nopReporter) Capture(error, map[string]string) {}

// Deps are the collaborators of an Engine. Issues and Rules are only used
// when alerting is enabled.
type Deps struct {
	Inventory   Inventory
	Provisioner Provisioner
	Submitter   Submitter
	Issues      IssueTracker
	Rules       RuleStore
	Reporter    ErrorReporter
	Output      *output.Manager
	Logger      *slog.Logger

	// RunID tags every event of the run.
	RunID string
}

type Engine struct {
	inventory   Inventory
	provisioner Provisioner
	submitter   Submitter
	alerts      *alertPass
	reporter    ErrorReporter
	out         *output.Manager
	targeting   config.Targeting
	dryRun      bool
	runID       string
	logger      *slog.Logger
}

func New(cfg *config.Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	e := &Engine{
		inventory:   deps.Inventory,
		provisioner: deps.Provisioner,
		submitter:   deps.Submitter,
		reporter:    reporter,
		out:         deps.Output,
		targeting:   cfg.Targeting,
		dryRun:      cfg.Runtime.DryRun,
		runID:       deps.RunID,
		logger:      logger,
	}
	if cfg.Alerting.Enabled {
		e.alerts = &alertPass{
			cfg:       cfg.Alerting,
			filePath:  cfg.Proposals.FilePath,
			issues:    deps.Issues,
			rules:     deps.Rules,
			submitter: deps.Submitter,
			dryRun:    cfg.Runtime.DryRun,
			logger:    logger,
			bootstrap: sentry.SendBootstrapEvent,
			now:       time.Now,
		}
	}
	return e
}

// Summary is the result of a run.
type Summary struct {
	RunID    string         `json:"run_id"`
	ExitCode int            `json:"exit_code"`
	Repos    int            `json:"repos"`
	Stats    map[string]int `json:"stats"`
}

// teamBatch holds the repositories of one team in enumeration order.
type teamBatch struct {
	team  string
	repos []inventory.RepositoryDescriptor
}

// groupByTeam keeps teams in first-seen order.
func groupByTeam(repos []inventory.RepositoryDescriptor) []teamBatch {
	var batches []teamBatch
	index := make(map[string]int)
	for _, r := range repos {
		i, ok := index[r.Group]
		if !ok {
			i = len(batches)
			index[r.Group] = i
			batches = append(batches, teamBatch{team: r.Group})
		}
		batches[i].repos = append(batches[i].repos, r)
	}
	return batches
}

// Run enumerates every team repository and reconciles it.
func (e *Engine) Run(ctx context.Context) Summary {
	e.start()

	var repos []inventory.RepositoryDescriptor
	pager := e.inventory.Pages(ctx)
	pages := 0
	for {
		page, ok := pager.Next(ctx)
		if !ok {
			break
		}
		pages++
		repos = append(repos, page...)
	}
	inventoryErr := pager.Err()
	if inventoryErr != nil {
		e.logger.Error("project enumeration stopped", "error", inventoryErr, "pages", pages)
		e.reporter.Capture(inventoryErr, map[string]string{"stage": "inventory"})
	}

	repos = FilterRepos(repos, e.targeting)
	e.logger.Info("repositories found", "repos", len(repos), "pages", pages)

	stats := NewStats()
	memo := newTeamMemo()
	for _, batch := range groupByTeam(repos) {
		if err := ctx.Err(); err != nil {
			e.logger.Error("run interrupted", "error", err)
			return e.finish(stats, len(repos), exitCodeForRun(false, true))
		}
		e.ensureTeam(ctx, memo, batch.team)
		for _, d := range batch.repos {
			e.record(stats, e.Reconcile(ctx, d))
		}
	}

	partial := inventoryErr != nil || stats.Get(CounterFailures) > 0
	return e.finish(stats, len(repos), exitCodeForRun(false, partial))
}

// RunSingle reconciles one repository by full path.
func (e *Engine) RunSingle(ctx context.Context, fullPath string) Summary {
	e.start()
	stats := NewStats()

	d, found, err := e.inventory.Lookup(ctx, fullPath)
	if err != nil {
		e.logger.Error("project lookup failed", "repo", fullPath, "error", err)
		e.reporter.Capture(err, map[string]string{"repo": fullPath})
		return e.finish(stats, 0, ExitFatal)
	}
	if !found {
		e.logger.Warn("project not found or not in a team group", "repo", fullPath)
		return e.finish(stats, 0, ExitOK)
	}

	e.ensureTeam(ctx, newTeamMemo(), d.Group)
	e.record(stats, e.Reconcile(ctx, d))
	return e.finish(stats, 1, exitCodeForRun(false, stats.Get(CounterFailures) > 0))
}

// ensureTeam creates the team before its repositories are evaluated. A team
// that cannot be ensured does not stop them: project creation fails later.
func (e *Engine) ensureTeam(ctx context.Context, memo teamMemo, team string) {
	if e.dryRun {
		return
	}
	if !memo.ensure(ctx, e.provisioner, team) {
		e.logger.Warn("sentry team not ensured", "group", team)
	}
}

func (e *Engine) record(stats *Stats, o Outcome) {
	stats.Inc(o.Counter)
	stats.Inc(o.Alert)
	e.write(o.Result())
}

func (e *Engine) start() {
	e.logger.Info("run started", "dry_run", e.dryRun)
	e.write(output.Event{Type: output.EventRunStarted, RunID: e.runID, DryRun: e.dryRun})
}

func (e *Engine) finish(stats *Stats, repos int, code int) Summary {
	s := Summary{RunID: e.runID, ExitCode: code, Repos: repos, Stats: stats.Snapshot()}
	e.write(output.Event{Type: output.EventRunFinished, RunID: e.runID, DryRun: e.dryRun, ExitCode: code, Stats: s.Stats})
	e.logger.Info("run finished", "exit_code", code, "repos", repos)
	return s
}

func (e *Engine) write(v any) {
	if err := e.out.Write(v); err != nil {
		e.logger.Warn("output write failed", "error", err)
	}
}
