package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gl "gitlab.com/gitlab-org/api/client-go"
)

// ErrNotFound wraps every 404 returned by the REST helpers below.
var ErrNotFound = errors.New("gitlab: not found")

// FileChange is one commit touching a single file on a branch.
type FileChange struct {
	Path          string
	Branch        string
	Content       string
	CommitMessage string
	AuthorName    string
	AuthorEmail   string
}

type MergeRequestSpec struct {
	SourceBranch       string
	TargetBranch       string
	Title              string
	Description        string
	Labels             []string
	RemoveSourceBranch bool
}

type Member struct {
	Username    string
	State       string
	AccessLevel int
}

func notFound(resp *gl.Response, err error) error {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func (c *Client) DefaultBranch(ctx context.Context, projectID int64) (string, error) {
	p, resp, err := c.REST.Projects.GetProject(int(projectID), nil, gl.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("get project %d: %w", projectID, notFound(resp, err))
	}
	if p.DefaultBranch == "" {
		return "", fmt.Errorf("project %d has no default branch", projectID)
	}
	return p.DefaultBranch, nil
}

func (c *Client) DeleteBranch(ctx context.Context, projectID int64, branch string) error {
	resp, err := c.REST.Branches.DeleteBranch(int(projectID), branch, gl.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete branch %s: %w", branch, notFound(resp, err))
	}
	return nil
}

func (c *Client) CreateBranch(ctx context.Context, projectID int64, branch, ref string) error {
	opt := &gl.CreateBranchOptions{Branch: gl.Ptr(branch), Ref: gl.Ptr(ref)}
	if _, resp, err := c.REST.Branches.CreateBranch(int(projectID), opt, gl.WithContext(ctx)); err != nil {
		return fmt.Errorf("create branch %s from %s: %w", branch, ref, notFound(resp, err))
	}
	return nil
}

// FileExists reports whether path exists at ref.
func (c *Client) FileExists(ctx context.Context, projectID int64, path, ref string) (bool, error) {
	_, resp, err := c.REST.RepositoryFiles.GetFile(int(projectID), path, &gl.GetFileOptions{Ref: gl.Ptr(ref)}, gl.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("get file %s@%s: %w", path, ref, err)
	}
	return true, nil
}

// FileCommittedAt returns when path was last changed on the default branch.
func (c *Client) FileCommittedAt(ctx context.Context, projectID int64, path string) (time.Time, error) {
	ref, err := c.DefaultBranch(ctx, projectID)
	if err != nil {
		return time.Time{}, err
	}
	f, resp, err := c.REST.RepositoryFiles.GetFile(int(projectID), path, &gl.GetFileOptions{Ref: gl.Ptr(ref)}, gl.WithContext(ctx))
	if err != nil {
		return time.Time{}, fmt.Errorf("get file %s@%s: %w", path, ref, notFound(resp, err))
	}
	commit, resp, err := c.REST.Commits.GetCommit(int(projectID), f.LastCommitID, nil, gl.WithContext(ctx))
	if err != nil {
		return time.Time{}, fmt.Errorf("get commit %s: %w", f.LastCommitID, notFound(resp, err))
	}
	if commit.CommittedDate == nil {
		return time.Time{}, fmt.Errorf("commit %s has no committed date", f.LastCommitID)
	}
	return *commit.CommittedDate, nil
}

func (c *Client) CreateFile(ctx context.Context, projectID int64, f FileChange) error {
	opt := &gl.CreateFileOptions{
		Branch:        gl.Ptr(f.Branch),
		Content:       gl.Ptr(f.Content),
		CommitMessage: gl.Ptr(f.CommitMessage),
		AuthorName:    gl.Ptr(f.AuthorName),
		AuthorEmail:   gl.Ptr(f.AuthorEmail),
	}
	if _, resp, err := c.REST.RepositoryFiles.CreateFile(int(projectID), f.Path, opt, gl.WithContext(ctx)); err != nil {
		return fmt.Errorf("create file %s on %s: %w", f.Path, f.Branch, notFound(resp, err))
	}
	return nil
}

func (c *Client) UpdateFile(ctx context.Context, projectID int64, f FileChange) error {
	opt := &gl.UpdateFileOptions{
		Branch:        gl.Ptr(f.Branch),
		Content:       gl.Ptr(f.Content),
		CommitMessage: gl.Ptr(f.CommitMessage),
		AuthorName:    gl.Ptr(f.AuthorName),
		AuthorEmail:   gl.Ptr(f.AuthorEmail),
	}
	if _, resp, err := c.REST.RepositoryFiles.UpdateFile(int(projectID), f.Path, opt, gl.WithContext(ctx)); err != nil {
		return fmt.Errorf("update file %s on %s: %w", f.Path, f.Branch, notFound(resp, err))
	}
	return nil
}

// CreateMergeRequest opens the MR and returns its web URL.
func (c *Client) CreateMergeRequest(ctx context.Context, projectID int64, spec MergeRequestSpec) (string, error) {
	opt := &gl.CreateMergeRequestOptions{
		Title:              gl.Ptr(spec.Title),
		Description:        gl.Ptr(spec.Description),
		SourceBranch:       gl.Ptr(spec.SourceBranch),
		TargetBranch:       gl.Ptr(spec.TargetBranch),
		RemoveSourceBranch: gl.Ptr(spec.RemoveSourceBranch),
	}
	if len(spec.Labels) > 0 {
		labels := gl.LabelOptions(spec.Labels)
		opt.Labels = &labels
	}
	mr, resp, err := c.REST.MergeRequests.CreateMergeRequest(int(projectID), opt, gl.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create merge request from %s: %w", spec.SourceBranch, notFound(resp, err))
	}
	return mr.WebURL, nil
}

// ListMembers returns every member of the project, inherited ones included.
func (c *Client) ListMembers(ctx context.Context, projectID int64) ([]Member, error) {
	opt := &gl.ListProjectMembersOptions{ListOptions: gl.ListOptions{PerPage: 100}}
	var out []Member
	for {
		members, resp, err := c.REST.ProjectMembers.ListAllProjectMembers(int(projectID), opt, gl.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list members of %d: %w", projectID, notFound(resp, err))
		}
		for _, m := range members {
			out = append(out, Member{Username: m.Username, State: m.State, AccessLevel: int(m.AccessLevel)})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return out, nil
}

// HasOpenIssue reports whether an opened issue with exactly this title exists.
func (c *Client) HasOpenIssue(ctx context.Context, projectID int64, title string) (bool, error) {
	opt := &gl.ListProjectIssuesOptions{
		State:  gl.Ptr("opened"),
		Search: gl.Ptr(title),
	}
	issues, resp, err := c.REST.Issues.ListProjectIssues(int(projectID), opt, gl.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("list issues of %d: %w", projectID, notFound(resp, err))
	}
	for _, is := range issues {
		if is.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) CreateIssue(ctx context.Context, projectID int64, title, description string) error {
	opt := &gl.CreateIssueOptions{Title: gl.Ptr(title), Description: gl.Ptr(description)}
	if _, resp, err := c.REST.Issues.CreateIssue(int(projectID), opt, gl.WithContext(ctx)); err != nil {
		return fmt.Errorf("create issue on %d: %w", projectID, notFound(resp, err))
	}
	return nil
}
