package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/numberly/gitlab2sentry/internal/inventory"
	"github.com/numberly/gitlab2sentry/internal/output"
)

var errNotProposed = errors.New("merge request not created")

// Outcome is the result of reconciling one repository.
type Outcome struct {
	Repo     string
	Group    string
	Decision Decision

	// Status is one of the output.Outcome* values.
	Status string

	// Counter is incremented once for this repository.
	Counter string

	// Alert is the alert pass counter, empty when the pass did not run. A
	// failed alert pass counts as a failure on top of Counter.
	Alert string

	Err error
}

// Result converts o for the output sinks.
func (o Outcome) Result() output.RepoResult {
	r := output.RepoResult{
		Repo:    o.Repo,
		Group:   o.Group,
		Action:  o.Decision.Action.String(),
		Reason:  o.Decision.Reason,
		Outcome: o.Status,
		Alert:   o.Alert,
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	return r
}

// Reconcile decides and executes the next step for d. Errors never escape:
// they are logged, reported and returned in the Outcome.
func (e *Engine) Reconcile(ctx context.Context, d inventory.RepositoryDescriptor) Outcome {
	dec := Decide(d)
	o := Outcome{Repo: d.FullPath, Group: d.Group, Decision: dec}
	logger := e.logger.With("repo", d.FullPath, "group", d.Group, "action", dec.Action.String())

	switch dec.Action {
	case ActionNone:
		o.Status, o.Counter = output.OutcomeSkipped, dec.Reason
		logger.Debug("nothing to do", "reason", dec.Reason)
		if dec.Reason == ReasonComplete && e.alerts != nil {
			o.Alert, o.Err = e.alerts.run(ctx, d)
			if o.Err != nil {
				o.Alert = CounterFailures
				e.fail(logger, &o, "alerting failed")
			}
		}
		return o

	case ActionProposeConfig:
		if e.dryRun {
			o.Status, o.Counter = output.OutcomePlanned, CounterPlannedConfig
			logger.Info("would propose config file")
			return o
		}
		if !e.submitter.ProposeConfig(ctx, d) {
			o.Err = fmt.Errorf("propose config: %w", errNotProposed)
			e.fail(logger, &o, "config merge request failed")
			return o
		}
		o.Status, o.Counter = output.OutcomeCreated, CounterConfigCreated
		logger.Info("config merge request opened")
		return o

	case ActionProvisionAndProposeSecret:
		name := d.SentryProjectName()
		if e.dryRun {
			o.Status, o.Counter = output.OutcomePlanned, CounterPlannedSecret
			logger.Info("would provision sentry project and propose secret", "project", name)
			return o
		}
		e.provisionAndPropose(ctx, d, name, logger, &o)
		return o
	}
	return o
}

func (e *Engine) provisionAndPropose(ctx context.Context, d inventory.RepositoryDescriptor, name string, logger *slog.Logger, o *Outcome) {
	project, err := e.provisioner.GetOrCreateProject(ctx, name, d.Group)
	if err != nil {
		o.Err = err
		e.fail(logger, o, "sentry project unavailable")
		return
	}
	dsn, ok, err := e.provisioner.IssueSecret(ctx, project.Slug)
	if err != nil {
		o.Err = err
		e.fail(logger, o, "sentry key unavailable")
		return
	}
	if !ok {
		o.Status, o.Counter = output.OutcomeUnconfirmed, CounterSecretUnconfirmed
		logger.Warn("secret not confirmed, skipping", "project", project.Slug)
		return
	}
	if !e.submitter.ProposeSecret(ctx, d, dsn, project.Slug) {
		o.Err = fmt.Errorf("propose secret: %w", errNotProposed)
		e.fail(logger, o, "secret merge request failed")
		return
	}
	o.Status, o.Counter = output.OutcomeCreated, CounterSecretCreated
	logger.Info("secret merge request opened", "project", project.Slug)
}

// fail marks o failed. The core counter becomes failures unless the core
// step already succeeded.
func (e *Engine) fail(logger *slog.Logger, o *Outcome, msg string) {
	o.Status = output.OutcomeFailed
	if o.Counter == "" {
		o.Counter = CounterFailures
	}
	logger.Error(msg, "error", o.Err)
	e.reporter.Capture(o.Err, map[string]string{
		"repo":   o.Repo,
		"group":  o.Group,
		"action": o.Decision.Action.String(),
	})
}
