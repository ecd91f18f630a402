package gitlab

import (
	"context"
	"fmt"
	"time"
)

// ProjectNode is the raw per-project shape returned by both project queries.
type ProjectNode struct {
	ID                   string                 `json:"id"`
	FullPath             string                 `json:"fullPath"`
	Name                 string                 `json:"name"`
	NameWithNamespace    string                 `json:"nameWithNamespace"`
	CreatedAt            time.Time              `json:"createdAt"`
	MergeRequestsEnabled bool                   `json:"mergeRequestsEnabled"`
	Group                *GroupRef              `json:"group"`
	Repository           *Repository            `json:"repository"`
	MergeRequests        MergeRequestConnection `json:"mergeRequests"`
}

type GroupRef struct {
	Name string `json:"name"`
}

type Repository struct {
	Blobs struct {
		Nodes []Blob `json:"nodes"`
	} `json:"blobs"`
}

type Blob struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	RawTextBlob string `json:"rawTextBlob"`
}

type MergeRequestConnection struct {
	Nodes []MergeRequestNode `json:"nodes"`
}

type MergeRequestNode struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	State string `json:"state"`
}

type PageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
}

// ProjectPage is one page of the bulk projects query.
type ProjectPage struct {
	Nodes    []ProjectNode
	PageInfo PageInfo
}

// ProjectQuery carries the filters shared by the bulk and single project queries.
type ProjectQuery struct {
	// Search is matched against namespaces too, so the team prefix selects groups.
	Search     string
	FilePath   string
	Branches   []string
	PageLength int
	Timeout    time.Duration
}

const projectFields = `
      id
      fullPath
      name
      nameWithNamespace
      createdAt
      mergeRequestsEnabled
      group { name }
      repository {
        blobs(paths: $paths) {
          nodes { name path rawTextBlob }
        }
      }
      mergeRequests(sourceBranches: $branches) {
        nodes { id title state }
      }`

// Projects are sorted newest first so the age cutoff can stop paging early.
const listProjectsQuery = `query($first: Int!, $after: String, $search: String, $paths: [String!]!, $branches: [String!]) {
  projects(first: $first, after: $after, search: $search, searchNamespaces: true, sort: "id_desc") {
    edges {
      node {` + projectFields + `
      }
    }
    pageInfo { endCursor hasNextPage }
  }
}`

const fetchProjectQuery = `query($fullPath: ID!, $paths: [String!]!, $branches: [String!]) {
  project(fullPath: $fullPath) {` + projectFields + `
  }
}`

type listProjectsData struct {
	Projects struct {
		Edges []struct {
			Node ProjectNode `json:"node"`
		} `json:"edges"`
		PageInfo PageInfo `json:"pageInfo"`
	} `json:"projects"`
}

type fetchProjectData struct {
	Project *ProjectNode `json:"project"`
}

// ListProjects fetches one page of projects starting after the given cursor.
func (c *Client) ListProjects(ctx context.Context, q ProjectQuery, after string) (ProjectPage, error) {
	if q.PageLength <= 0 {
		return ProjectPage{}, fmt.Errorf("list projects: page length must be > 0")
	}
	vars := map[string]any{
		"first":    q.PageLength,
		"paths":    []string{q.FilePath},
		"branches": q.Branches,
	}
	if after != "" {
		vars["after"] = after
	}
	if q.Search != "" {
		vars["search"] = q.Search
	}

	ctx, cancel := withOptionalTimeout(ctx, q.Timeout)
	defer cancel()

	resp, err := DoGraphQL[listProjectsData](ctx, c, GraphQLRequest{Query: listProjectsQuery, Variables: vars})
	if err != nil {
		return ProjectPage{}, err
	}

	page := ProjectPage{PageInfo: resp.Data.Projects.PageInfo}
	page.Nodes = make([]ProjectNode, 0, len(resp.Data.Projects.Edges))
	for _, e := range resp.Data.Projects.Edges {
		page.Nodes = append(page.Nodes, e.Node)
	}
	return page, nil
}

// FetchProject runs the single-project query. A project that does not exist
// or is not visible yields (nil, nil).
func (c *Client) FetchProject(ctx context.Context, q ProjectQuery, fullPath string) (*ProjectNode, error) {
	vars := map[string]any{
		"fullPath": fullPath,
		"paths":    []string{q.FilePath},
		"branches": q.Branches,
	}

	ctx, cancel := withOptionalTimeout(ctx, q.Timeout)
	defer cancel()

	resp, err := DoGraphQL[fetchProjectData](ctx, c, GraphQLRequest{Query: fetchProjectQuery, Variables: vars})
	if err != nil {
		return nil, err
	}
	return resp.Data.Project, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
