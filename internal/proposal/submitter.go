// Package proposal opens the merge requests that bring a repository's
// .sentryclirc to its next state.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/numberly/gitlab2sentry/internal/config"
	"github.com/numberly/gitlab2sentry/internal/gitlab"
	"github.com/numberly/gitlab2sentry/internal/inventory"
)

// Backend is the subset of the GitLab REST API the submitter drives.
type Backend interface {
	DefaultBranch(ctx context.Context, projectID int64) (string, error)
	DeleteBranch(ctx context.Context, projectID int64, branch string) error
	CreateBranch(ctx context.Context, projectID int64, branch, ref string) error
	FileExists(ctx context.Context, projectID int64, path, ref string) (bool, error)
	CreateFile(ctx context.Context, projectID int64, f gitlab.FileChange) error
	UpdateFile(ctx context.Context, projectID int64, f gitlab.FileChange) error
	CreateMergeRequest(ctx context.Context, projectID int64, spec gitlab.MergeRequestSpec) (string, error)
	ListMembers(ctx context.Context, projectID int64) ([]gitlab.Member, error)
}

type Submitter struct {
	backend Backend
	cfg     *config.Config
	logger  *slog.Logger
}

func NewSubmitter(backend Backend, cfg *config.Config, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{backend: backend, cfg: cfg, logger: logger}
}

// request is one rendered proposal.
type request struct {
	kind        string
	branch      string
	title       string
	description string
	content     string
}

// ProposeConfig proposes a .sentryclirc holding only the Sentry URL.
func (s *Submitter) ProposeConfig(ctx context.Context, d inventory.RepositoryDescriptor) bool {
	p := s.cfg.Proposals.Config
	return s.submit(ctx, d, request{
		kind:        "config",
		branch:      p.Branch,
		title:       p.Title,
		description: p.Description,
		content:     p.Content,
	}, nil)
}

// ProposeSecret proposes the full .sentryclirc with the DSN and project slug.
func (s *Submitter) ProposeSecret(ctx context.Context, d inventory.RepositoryDescriptor, dsn, projectSlug string) bool {
	p := s.cfg.Proposals.Secret
	return s.submit(ctx, d, request{
		kind:        "secret",
		branch:      p.Branch,
		title:       p.Title,
		description: p.Description,
		content:     p.Content,
	}, map[string]string{"dsn": dsn, "project_slug": projectSlug})
}

// ProposeAlerting proposes content verbatim, which is the current file with
// a default alert section appended.
func (s *Submitter) ProposeAlerting(ctx context.Context, d inventory.RepositoryDescriptor, content string) bool {
	a := s.cfg.Alerting
	return s.submit(ctx, d, request{
		kind:        "alerting",
		branch:      a.Branch,
		title:       a.Title,
		description: a.Description,
		content:     content,
	}, nil)
}

func (s *Submitter) submit(ctx context.Context, d inventory.RepositoryDescriptor, req request, extra map[string]string) bool {
	logger := s.logger.With("repo", d.FullPath, "branch", req.branch, "kind", req.kind)

	url, err := s.propose(ctx, d, req, extra)
	if err != nil {
		logger.Error("merge request not created", "error", err)
		return false
	}
	logger.Info("merge request created", "url", url)
	return true
}

func (s *Submitter) propose(ctx context.Context, d inventory.RepositoryDescriptor, req request, extra map[string]string) (string, error) {
	vars := map[string]string{
		"sentry_url":          s.cfg.Sentry.URL,
		"project_name":        d.Name,
		"name_with_namespace": d.NameWithNamespace,
	}
	for k, v := range extra {
		vars[k] = v
	}
	if strings.Contains(req.description, "{mentions}") {
		mentions, err := s.mentions(ctx, d.ID)
		if err != nil {
			return "", err
		}
		vars["mentions"] = mentions
	}

	target, err := s.backend.DefaultBranch(ctx, d.ID)
	if err != nil {
		return "", err
	}

	// A branch left over from a failed run is recreated from scratch.
	if err := s.backend.DeleteBranch(ctx, d.ID, req.branch); err != nil && !errors.Is(err, gitlab.ErrNotFound) {
		return "", err
	}
	if err := s.backend.CreateBranch(ctx, d.ID, req.branch, target); err != nil {
		return "", err
	}

	change := gitlab.FileChange{
		Path:          s.cfg.Proposals.FilePath,
		Branch:        req.branch,
		Content:       config.Expand(req.content, vars),
		CommitMessage: s.cfg.Proposals.CommitMessage,
		AuthorName:    s.cfg.GitLab.AuthorName,
		AuthorEmail:   s.cfg.GitLab.AuthorEmail,
	}
	exists, err := s.backend.FileExists(ctx, d.ID, change.Path, target)
	if err != nil {
		return "", err
	}
	if exists {
		err = s.backend.UpdateFile(ctx, d.ID, change)
	} else {
		err = s.backend.CreateFile(ctx, d.ID, change)
	}
	if err != nil {
		return "", err
	}

	url, err := s.backend.CreateMergeRequest(ctx, d.ID, gitlab.MergeRequestSpec{
		SourceBranch:       req.branch,
		TargetBranch:       target,
		Title:              config.Expand(req.title, vars),
		Description:        config.Expand(req.description, vars),
		Labels:             s.cfg.GitLab.Labels,
		RemoveSourceBranch: s.cfg.GitLab.RemoveSourceBranch,
	})
	if err != nil {
		return "", fmt.Errorf("open merge request: %w", err)
	}
	return url, nil
}
