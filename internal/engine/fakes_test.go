package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/numberly/gitlab2sentry/internal/inventory"
	"github.com/numberly/gitlab2sentry/internal/sentry"
)

type fakePager struct {
	pages [][]inventory.RepositoryDescriptor
	err   error
}

func (p *fakePager) Next(context.Context) ([]inventory.RepositoryDescriptor, bool) {
	if len(p.pages) == 0 {
		return nil, false
	}
	page := p.pages[0]
	p.pages = p.pages[1:]
	return page, true
}

func (p *fakePager) Err() error {
	if len(p.pages) > 0 {
		return nil
	}
	return p.err
}

type fakeInventory struct {
	pages     [][]inventory.RepositoryDescriptor
	err       error
	byPath    map[string]inventory.RepositoryDescriptor
	lookupErr error
}

func (f *fakeInventory) Pages(context.Context) inventory.Pager {
	return &fakePager{pages: f.pages, err: f.err}
}

func (f *fakeInventory) Lookup(_ context.Context, fullPath string) (inventory.RepositoryDescriptor, bool, error) {
	if f.lookupErr != nil {
		return inventory.RepositoryDescriptor{}, false, f.lookupErr
	}
	d, ok := f.byPath[fullPath]
	return d, ok, nil
}

type fakeProvisioner struct {
	calls       []string
	teamFails   map[string]bool
	projectErr  error
	secretErr   error
	unconfirmed bool
}

func (p *fakeProvisioner) EnsureTeam(_ context.Context, name string) bool {
	p.calls = append(p.calls, "team "+name)
	return !p.teamFails[name]
}

func (p *fakeProvisioner) GetOrCreateProject(_ context.Context, name, team string) (*sentry.Project, error) {
	p.calls = append(p.calls, "project "+team+"/"+name)
	if p.projectErr != nil {
		return nil, p.projectErr
	}
	return &sentry.Project{ID: "7", Slug: sentry.Slug(name), Name: name}, nil
}

func (p *fakeProvisioner) IssueSecret(_ context.Context, slug string) (string, bool, error) {
	p.calls = append(p.calls, "secret "+slug)
	if p.secretErr != nil {
		return "", false, p.secretErr
	}
	if p.unconfirmed {
		return "", false, nil
	}
	return "https://pub@sentry.example.com/7", true, nil
}

type fakeSubmitter struct {
	calls []string
	fail  bool

	secretDSN   string
	alertConfig string
}

func (s *fakeSubmitter) ProposeConfig(_ context.Context, d inventory.RepositoryDescriptor) bool {
	s.calls = append(s.calls, "config "+d.FullPath)
	return !s.fail
}

func (s *fakeSubmitter) ProposeSecret(_ context.Context, d inventory.RepositoryDescriptor, dsn, slug string) bool {
	s.calls = append(s.calls, "secret "+d.FullPath+" "+slug)
	s.secretDSN = dsn
	return !s.fail
}

func (s *fakeSubmitter) ProposeAlerting(_ context.Context, d inventory.RepositoryDescriptor, content string) bool {
	s.calls = append(s.calls, "alerting "+d.FullPath)
	s.alertConfig = content
	return !s.fail
}

type fakeReporter struct {
	errs []error
	tags []map[string]string
}

func (r *fakeReporter) Capture(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

type fakeIssues struct {
	open   bool
	err    error
	titles []string
	bodies []string

	committedAt time.Time
	commitErr   error
	commitPaths []string
}

func (f *fakeIssues) HasOpenIssue(context.Context, int64, string) (bool, error) {
	return f.open, f.err
}

func (f *fakeIssues) CreateIssue(_ context.Context, _ int64, title, description string) error {
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, description)
	return nil
}

func (f *fakeIssues) FileCommittedAt(_ context.Context, _ int64, path string) (time.Time, error) {
	f.commitPaths = append(f.commitPaths, path)
	return f.committedAt, f.commitErr
}

type fakeRules struct {
	teams   []sentry.Team
	envs    []string
	rules   []sentry.Rule
	err     error
	linked  []string
	added   []sentry.RuleSpec
	deleted []string
}

func (f *fakeRules) Teams(context.Context) ([]sentry.Team, error) {
	return f.teams, f.err
}

func (f *fakeRules) Environments(context.Context, string) ([]sentry.Environment, error) {
	out := make([]sentry.Environment, 0, len(f.envs))
	for i, e := range f.envs {
		out = append(out, sentry.Environment{ID: fmt.Sprint(i), Name: e})
	}
	return out, f.err
}

func (f *fakeRules) ProjectRules(context.Context, string) ([]sentry.Rule, error) {
	return f.rules, f.err
}

func (f *fakeRules) AddTeamToProject(_ context.Context, projectSlug, teamSlug string) error {
	f.linked = append(f.linked, projectSlug+" "+teamSlug)
	return nil
}

func (f *fakeRules) AddRule(_ context.Context, _ string, spec sentry.RuleSpec) (*sentry.Rule, error) {
	f.added = append(f.added, spec)
	return &sentry.Rule{ID: fmt.Sprint(len(f.added)), Name: spec.Name}, nil
}

func (f *fakeRules) DeleteRule(_ context.Context, projectSlug, ruleID string) error {
	f.deleted = append(f.deleted, projectSlug+" "+ruleID)
	return nil
}

var errBoom = errors.New("boom")
