package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/numberly/gitlab2sentry/internal/alerting"
	"github.com/numberly/gitlab2sentry/internal/config"
	"github.com/numberly/gitlab2sentry/internal/inventory"
	"github.com/numberly/gitlab2sentry/internal/sentry"
)

// IssueTracker is the GitLab side of the alert pass.
type IssueTracker interface {
	HasOpenIssue(ctx context.Context, projectID int64, title string) (bool, error)
	CreateIssue(ctx context.Context, projectID int64, title, description string) error
	FileCommittedAt(ctx context.Context, projectID int64, path string) (time.Time, error)
}

// RuleStore is the Sentry side of the alert pass.
type RuleStore interface {
	Teams(ctx context.Context) ([]sentry.Team, error)
	Environments(ctx context.Context, projectSlug string) ([]sentry.Environment, error)
	ProjectRules(ctx context.Context, projectSlug string) ([]sentry.Rule, error)
	AddTeamToProject(ctx context.Context, projectSlug, teamSlug string) error
	AddRule(ctx context.Context, projectSlug string, spec sentry.RuleSpec) (*sentry.Rule, error)
	DeleteRule(ctx context.Context, projectSlug, ruleID string) error
}

type alertPass struct {
	cfg       config.Alerting
	filePath  string
	issues    IssueTracker
	rules     RuleStore
	submitter Submitter
	dryRun    bool
	logger    *slog.Logger

	// bootstrap sends the first event of an environment.
	bootstrap func(dsn, environment string) error
	now       func() time.Time
}

// run applies the alert sections of a complete repository. It returns the
// counter to increment, empty when the repository is not selected.
func (a *alertPass) run(ctx context.Context, d inventory.RepositoryDescriptor) (string, error) {
	if !inGroups(a.cfg.Groups, d.Group) {
		return "", nil
	}
	logger := a.logger.With("repo", d.FullPath, "group", d.Group, "branch", a.cfg.Branch)

	file, parseErr := alerting.Parse(d.ConfigContent)
	if parseErr == nil && len(file.Alerts) == 0 {
		switch d.AlertRequestState {
		case inventory.RequestStateOpened:
			return CounterAlertMRWaiting, nil
		case inventory.RequestStateClosed:
			return CounterAlertMRClosed, nil
		}
		if a.dryRun {
			return CounterPlannedAlert, nil
		}
		content := alerting.WithDefaultAlert(d.ConfigContent, a.cfg.DefaultRule)
		if !a.submitter.ProposeAlerting(ctx, d, content) {
			return "", fmt.Errorf("propose alerting: %w", errNotProposed)
		}
		logger.Info("alerting merge request opened")
		return CounterAlertMRCreated, nil
	}

	if a.dryRun {
		return CounterPlannedAlert, nil
	}

	open, err := a.issues.HasOpenIssue(ctx, d.ID, a.cfg.IssueTitle)
	if err != nil {
		return "", fmt.Errorf("list issues: %w", err)
	}
	if open {
		return CounterAlertIssueWaiting, nil
	}
	if parseErr != nil {
		return a.openIssue(ctx, d, parseErr, logger)
	}

	projectSlug := file.Project
	if projectSlug == "" {
		projectSlug = sentry.Slug(d.SentryProjectName())
	}

	actx, err := a.resolveContext(ctx, d, projectSlug)
	if err != nil {
		return "", err
	}
	plan, err := alerting.Resolve(file.Alerts, actx)
	if err != nil {
		return a.openIssue(ctx, d, err, logger)
	}

	rules, err := a.rules.ProjectRules(ctx, projectSlug)
	if err != nil {
		return "", fmt.Errorf("list rules of %s: %w", projectSlug, err)
	}
	counter := CounterAlertRulesAdded
	if len(rules) > 0 {
		changed, err := a.changedSinceLastRun(ctx, d)
		if err != nil {
			return "", err
		}
		if !changed {
			return CounterAlertRulesPresent, nil
		}
		logger.Info("config file changed since last run, replacing rules", "project", projectSlug, "rules", len(rules))
		for _, r := range rules {
			if err := a.rules.DeleteRule(ctx, projectSlug, r.ID); err != nil {
				return "", fmt.Errorf("delete rule %s of %s: %w", r.ID, projectSlug, err)
			}
		}
		counter = CounterAlertRulesRefreshed
	}

	if plan.Bootstrap {
		if file.DSN == "" {
			return "", fmt.Errorf("bootstrap environment of %s: no dsn in config file", projectSlug)
		}
		if err := a.bootstrap(file.DSN, alerting.DefaultEnvironment); err != nil {
			return "", fmt.Errorf("bootstrap environment of %s: %w", projectSlug, err)
		}
		logger.Info("environment bootstrapped", "environment", alerting.DefaultEnvironment)
	}
	for _, team := range plan.LinkTeams {
		if err := a.rules.AddTeamToProject(ctx, projectSlug, team); err != nil {
			return "", fmt.Errorf("link team %s to %s: %w", team, projectSlug, err)
		}
	}
	for _, spec := range plan.Rules {
		if _, err := a.rules.AddRule(ctx, projectSlug, spec); err != nil {
			return "", fmt.Errorf("add rule %q to %s: %w", spec.Name, projectSlug, err)
		}
	}
	logger.Info("alert rules added", "project", projectSlug, "rules", len(plan.Rules))
	return counter, nil
}

// changedSinceLastRun reports whether the config file was committed within
// the refresh window, that is after the previous scheduled run started.
func (a *alertPass) changedSinceLastRun(ctx context.Context, d inventory.RepositoryDescriptor) (bool, error) {
	if a.cfg.RefreshWindow <= 0 {
		return false, nil
	}
	committed, err := a.issues.FileCommittedAt(ctx, d.ID, a.filePath)
	if err != nil {
		return false, fmt.Errorf("last commit of %s: %w", a.filePath, err)
	}
	return committed.After(a.now().Add(-a.cfg.RefreshWindow)), nil
}

func (a *alertPass) resolveContext(ctx context.Context, d inventory.RepositoryDescriptor, projectSlug string) (alerting.Context, error) {
	teams, err := a.rules.Teams(ctx)
	if err != nil {
		return alerting.Context{}, fmt.Errorf("list teams: %w", err)
	}
	envs, err := a.rules.Environments(ctx, projectSlug)
	if err != nil {
		return alerting.Context{}, fmt.Errorf("list environments of %s: %w", projectSlug, err)
	}

	c := alerting.Context{
		ProjectSlug: projectSlug,
		Teams:       make(map[string]sentry.Team, len(teams)),
		DefaultTeam: d.Group,
		Frequency:   a.cfg.RuleFrequency,
	}
	for _, t := range teams {
		c.Teams[t.Name] = t
	}
	for _, e := range envs {
		c.Environments = append(c.Environments, e.Name)
	}
	return c, nil
}

// openIssue reports invalid alert sections in a GitLab issue. Other errors
// are returned as is.
func (a *alertPass) openIssue(ctx context.Context, d inventory.RepositoryDescriptor, err error, logger *slog.Logger) (string, error) {
	var syntaxErr *alerting.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return "", err
	}
	logger.Warn("invalid alert configuration", "error", err)

	description := config.Expand(a.cfg.IssueDescription, map[string]string{"error": syntaxErr.Error()})
	if err := a.issues.CreateIssue(ctx, d.ID, a.cfg.IssueTitle, description); err != nil {
		return "", fmt.Errorf("create issue: %w", err)
	}
	return CounterAlertIssueCreated, nil
}
