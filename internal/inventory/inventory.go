package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/numberly/gitlab2sentry/internal/config"
	"github.com/numberly/gitlab2sentry/internal/gitlab"
)

// Pager yields descriptor pages in enumeration order.
type Pager interface {
	Next(ctx context.Context) ([]RepositoryDescriptor, bool)
	Err() error
}

// Inventory turns GitLab projects into descriptors of team repositories.
type Inventory struct {
	src     ProjectSource
	builder Builder
	query   gitlab.ProjectQuery
	maxAge  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func New(src ProjectSource, cfg *config.Config, logger *slog.Logger) *Inventory {
	if logger == nil {
		logger = slog.Default()
	}
	branches := []string{cfg.Proposals.Config.Branch, cfg.Proposals.Secret.Branch}
	if cfg.Alerting.Enabled {
		branches = append(branches, cfg.Alerting.Branch)
	}
	return &Inventory{
		src:     src,
		builder: NewBuilder(cfg),
		query: gitlab.ProjectQuery{
			Search:     cfg.GitLab.GroupPrefix,
			FilePath:   cfg.Proposals.FilePath,
			Branches:   branches,
			PageLength: cfg.GitLab.PageLength,
			Timeout:    cfg.GitLab.GraphQLTimeout,
		},
		maxAge: time.Duration(cfg.GitLab.CreationLimitDays) * 24 * time.Hour,
		now:    time.Now,
		logger: logger,
	}
}

// Pages starts a new enumeration.
func (inv *Inventory) Pages(ctx context.Context) Pager {
	var cutoff time.Time
	if inv.maxAge > 0 {
		cutoff = inv.now().Add(-inv.maxAge)
	}
	return &descriptorPager{
		raw:     NewPageIterator(inv.src, inv.query, cutoff, inv.logger),
		builder: inv.builder,
		logger:  inv.logger,
	}
}

// Lookup builds the descriptor of one project by full path. found is false
// when the project does not exist, is not visible, or is not a team project.
func (inv *Inventory) Lookup(ctx context.Context, fullPath string) (RepositoryDescriptor, bool, error) {
	node, err := inv.src.FetchProject(ctx, inv.query, fullPath)
	if err != nil {
		if gitlab.IsNotFound(err) {
			inv.logger.Warn("project query returned not found", "repo", fullPath)
			return RepositoryDescriptor{}, false, nil
		}
		return RepositoryDescriptor{}, false, fmt.Errorf("fetch project %s: %w", fullPath, err)
	}
	if node == nil {
		return RepositoryDescriptor{}, false, nil
	}
	d, ok := inv.builder.Build(*node)
	return d, ok, nil
}

type descriptorPager struct {
	raw     *PageIterator
	builder Builder
	logger  *slog.Logger
}

func (p *descriptorPager) Next(ctx context.Context) ([]RepositoryDescriptor, bool) {
	for {
		nodes, ok := p.raw.Next(ctx)
		if !ok {
			return nil, false
		}
		out := make([]RepositoryDescriptor, 0, len(nodes))
		for _, n := range nodes {
			d, ok := p.builder.Build(n)
			if !ok {
				p.logger.Debug("project skipped", "repo", n.FullPath)
				continue
			}
			out = append(out, d)
		}
		if len(out) > 0 {
			return out, true
		}
	}
}

func (p *descriptorPager) Err() error { return p.raw.Err() }
