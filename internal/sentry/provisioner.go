package sentry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gosimple/slug"
)

var (
	// ErrProjectCreationFailed is returned when Sentry refuses to create a
	// project for any reason other than it already existing.
	ErrProjectCreationFailed = errors.New("sentry project creation failed")

	// ErrKeyNotFound is returned when a project has no usable client key.
	ErrKeyNotFound = errors.New("sentry client key not found")
)

// Provisioner creates the Sentry side of a repository: its team, its project
// and a rate-limited client key.
type Provisioner struct {
	client    *Client
	rateLimit RateLimit
	logger    *slog.Logger
}

func NewProvisioner(client *Client, rateLimit RateLimit, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{client: client, rateLimit: rateLimit, logger: logger}
}

// Slug mirrors Sentry's own slugification of team and project names.
func Slug(name string) string {
	return slug.Make(name)
}

// EnsureTeam creates the team or confirms it already exists.
func (p *Provisioner) EnsureTeam(ctx context.Context, name string) bool {
	teamSlug := Slug(name)
	body := map[string]string{"name": name, "slug": teamSlug}
	path := fmt.Sprintf("/organizations/%s/teams/", p.client.org)

	_, err := p.client.do(ctx, http.MethodPost, path, body, nil)
	if err == nil {
		p.logger.Info("sentry team created", "team", name)
		return true
	}
	if !IsConflict(err) {
		p.logger.Error("sentry team creation failed", "team", name, "error", err)
		return false
	}

	if _, err := p.client.do(ctx, http.MethodGet, fmt.Sprintf("/teams/%s/%s/", p.client.org, teamSlug), nil, nil); err != nil {
		p.logger.Error("sentry team lookup failed", "team", name, "error", err)
		return false
	}
	return true
}

// GetOrCreateProject creates name under team, or returns the existing
// project with the same slug.
func (p *Provisioner) GetOrCreateProject(ctx context.Context, name, team string) (*Project, error) {
	projectSlug := Slug(name)
	body := map[string]string{"name": name, "slug": projectSlug}
	path := fmt.Sprintf("/teams/%s/%s/projects/", p.client.org, Slug(team))

	var created Project
	_, err := p.client.do(ctx, http.MethodPost, path, body, &created)
	if err == nil {
		p.logger.Info("sentry project created", "project", projectSlug, "team", team)
		return &created, nil
	}
	if !IsConflict(err) {
		return nil, fmt.Errorf("%w: %s: %w", ErrProjectCreationFailed, name, err)
	}

	var existing Project
	if _, err := p.client.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/%s/", p.client.org, projectSlug), nil, &existing); err != nil {
		return nil, fmt.Errorf("%w: %s exists but lookup failed: %w", ErrProjectCreationFailed, name, err)
	}
	return &existing, nil
}

// IssueSecret returns the public DSN of the project's first key after
// applying the rate limit to it. ok is false, with a nil error, when the
// rate limit could not be applied.
func (p *Provisioner) IssueSecret(ctx context.Context, projectSlug string) (dsn string, ok bool, err error) {
	keys, err := p.client.ProjectKeys(ctx, projectSlug)
	if err != nil {
		return "", false, fmt.Errorf("list keys of %s: %w", projectSlug, err)
	}

	if len(keys) == 0 || keys[0].ID == "" || keys[0].DSN.Public == "" {
		return "", false, fmt.Errorf("%w: project %s", ErrKeyNotFound, projectSlug)
	}
	key := keys[0]

	if err := p.client.SetKeyRateLimit(ctx, projectSlug, key.ID, p.rateLimit); err != nil {
		p.logger.Warn("rate limit not applied, secret withheld", "project", projectSlug, "key", key.ID, "error", err)
		return "", false, nil
	}
	return key.DSN.Public, true, nil
}

// RateLimitReport summarizes RateLimitAll.
type RateLimitReport struct {
	Projects int
	Keys     int
	Failed   int
}

// RateLimitAll applies the rate limit to every key of every project of the
// organization. Per-key failures are logged and counted; listing failures
// abort.
func (p *Provisioner) RateLimitAll(ctx context.Context) (RateLimitReport, error) {
	var report RateLimitReport
	projects, err := p.client.Projects(ctx)
	if err != nil {
		return report, fmt.Errorf("list projects: %w", err)
	}

	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Projects++
		keys, err := p.client.ProjectKeys(ctx, project.Slug)
		if err != nil {
			p.logger.Error("list keys failed", "project", project.Slug, "error", err)
			report.Failed++
			continue
		}
		for _, key := range keys {
			if err := p.client.SetKeyRateLimit(ctx, project.Slug, key.ID, p.rateLimit); err != nil {
				p.logger.Error("rate limit failed", "project", project.Slug, "key", key.ID, "error", err)
				report.Failed++
				continue
			}
			report.Keys++
		}
	}
	return report, nil
}

func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	return listAll[Project](ctx, c, fmt.Sprintf("/organizations/%s/projects/", c.org))
}

func (c *Client) ProjectKeys(ctx context.Context, projectSlug string) ([]Key, error) {
	return listAll[Key](ctx, c, fmt.Sprintf("/projects/%s/%s/keys/", c.org, projectSlug))
}

func (c *Client) SetKeyRateLimit(ctx context.Context, projectSlug, keyID string, limit RateLimit) error {
	body := map[string]any{"rateLimit": limit}
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/projects/%s/%s/keys/%s/", c.org, projectSlug, keyID), body, nil)
	return err
}
