package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/numberly/gitlab2sentry/internal/gitlab"
)

// ProjectSource is the GraphQL side of the GitLab client.
type ProjectSource interface {
	ListProjects(ctx context.Context, q gitlab.ProjectQuery, after string) (gitlab.ProjectPage, error)
	FetchProject(ctx context.Context, q gitlab.ProjectQuery, fullPath string) (*gitlab.ProjectNode, error)
}

// PageIterator lazily walks the projects query. It is restartable per run
// only: a fresh iterator starts from the newest project again.
type PageIterator struct {
	src    ProjectSource
	query  gitlab.ProjectQuery
	cutoff time.Time
	logger *slog.Logger

	after string
	done  bool
	pages int
	err   error
}

// NewPageIterator pages through src. A zero cutoff scans the full history.
func NewPageIterator(src ProjectSource, q gitlab.ProjectQuery, cutoff time.Time, logger *slog.Logger) *PageIterator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageIterator{src: src, query: q, cutoff: cutoff, logger: logger}
}

// Next returns the next non-empty page of raw nodes. It returns false once
// the server has no more pages, the age cutoff was crossed, or a request
// failed (see Err).
func (it *PageIterator) Next(ctx context.Context) ([]gitlab.ProjectNode, bool) {
	for !it.done {
		if err := ctx.Err(); err != nil {
			it.fail(err)
			return nil, false
		}

		page, err := it.src.ListProjects(ctx, it.query, it.after)
		if err != nil {
			if gitlab.IsNotFound(err) {
				it.logger.Warn("projects query returned not found", "after", it.after, "error", err)
				it.done = true
				return nil, false
			}
			it.logger.Error("projects query failed", "after", it.after, "error", err)
			it.fail(err)
			return nil, false
		}
		it.pages++

		nodes := page.Nodes
		if !it.cutoff.IsZero() {
			kept := nodes[:0:0]
			for _, n := range nodes {
				if n.CreatedAt.Before(it.cutoff) {
					it.done = true
					continue
				}
				kept = append(kept, n)
			}
			if it.done {
				it.logger.Debug("creation cutoff reached", "cutoff", it.cutoff, "kept", len(kept), "page_size", len(nodes))
			}
			nodes = kept
		}

		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			it.done = true
		}
		it.after = page.PageInfo.EndCursor

		if len(nodes) > 0 {
			return nodes, true
		}
	}
	return nil, false
}

// Err is the transport error that ended iteration, if any. Not-found is not
// an error.
func (it *PageIterator) Err() error { return it.err }

// Pages is the number of requests issued so far.
func (it *PageIterator) Pages() int { return it.pages }

func (it *PageIterator) fail(err error) {
	it.err = err
	it.done = true
}
