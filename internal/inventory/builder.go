package inventory

import (
	"path"
	"strconv"
	"strings"

	"github.com/numberly/gitlab2sentry/internal/config"
	"github.com/numberly/gitlab2sentry/internal/gitlab"
)

// Builder normalizes raw GraphQL project nodes into descriptors.
type Builder struct {
	GroupPrefix string
	FilePath    string
	SecretKey   string

	// Title templates; {project_name} is substituted before matching.
	ConfigTitle string
	SecretTitle string
	AlertTitle  string
}

func NewBuilder(cfg *config.Config) Builder {
	return Builder{
		GroupPrefix: cfg.GitLab.GroupPrefix,
		FilePath:    cfg.Proposals.FilePath,
		SecretKey:   cfg.Proposals.SecretKey,
		ConfigTitle: cfg.Proposals.Config.Title,
		SecretTitle: cfg.Proposals.Secret.Title,
		AlertTitle:  cfg.Alerting.Title,
	}
}

// Build returns false for nodes we must not act on: no readable repository,
// no group, a group outside the team prefix, or an unparseable id.
func (b Builder) Build(n gitlab.ProjectNode) (RepositoryDescriptor, bool) {
	if n.Repository == nil || n.Group == nil {
		return RepositoryDescriptor{}, false
	}
	group, _, _ := strings.Cut(strings.Trim(n.FullPath, "/"), "/")
	if group == "" || !strings.HasPrefix(group, b.GroupPrefix) {
		return RepositoryDescriptor{}, false
	}
	id, ok := parseGlobalID(n.ID)
	if !ok {
		return RepositoryDescriptor{}, false
	}

	d := RepositoryDescriptor{
		ID:                id,
		FullPath:          n.FullPath,
		Name:              n.Name,
		Group:             group,
		NameWithNamespace: n.NameWithNamespace,
		MRsEnabled:        n.MergeRequestsEnabled,
		CreatedAt:         n.CreatedAt,
	}
	if d.NameWithNamespace == "" {
		d.NameWithNamespace = group + " / " + n.Name
	}

	if blob, found := b.configBlob(n.Repository.Blobs.Nodes); found {
		d.HasConfigFile = true
		d.ConfigContent = blob.RawTextBlob
		d.HasSecret = HasSecret(blob.RawTextBlob, b.SecretKey)
	}

	vars := map[string]string{"project_name": n.Name, "name_with_namespace": d.NameWithNamespace}
	d.ConfigRequestState, d.SecretRequestState, d.AlertRequestState = requestStates(
		n.MergeRequests.Nodes,
		config.Expand(b.ConfigTitle, vars),
		config.Expand(b.SecretTitle, vars),
		config.Expand(b.AlertTitle, vars),
	)
	return d, true
}

func (b Builder) configBlob(blobs []gitlab.Blob) (gitlab.Blob, bool) {
	base := path.Base(b.FilePath)
	for _, blob := range blobs {
		if blob.Path == b.FilePath || (blob.Path == "" && blob.Name == base) {
			return blob, true
		}
	}
	return gitlab.Blob{}, false
}

// HasSecret reports whether any line, leading whitespace trimmed, starts with key.
func HasSecret(content, key string) bool {
	if key == "" {
		return false
	}
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), key) {
			return true
		}
	}
	return false
}

// requestStates folds the merge requests into one state per title. An opened
// request always wins; otherwise the last state seen is kept.
func requestStates(mrs []gitlab.MergeRequestNode, configTitle, secretTitle, alertTitle string) (cfg, secret, alert RequestState) {
	fold := func(cur, next RequestState) RequestState {
		if cur == RequestStateOpened {
			return cur
		}
		return next
	}
	for _, mr := range mrs {
		st, ok := ParseRequestState(mr.State)
		if !ok {
			continue
		}
		switch mr.Title {
		case configTitle:
			cfg = fold(cfg, st)
		case secretTitle:
			secret = fold(secret, st)
		case alertTitle:
			alert = fold(alert, st)
		}
	}
	return cfg, secret, alert
}

// parseGlobalID extracts 123 from gid://gitlab/Project/123.
func parseGlobalID(gid string) (int64, bool) {
	i := strings.LastIndex(gid, "/")
	id, err := strconv.ParseInt(gid[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
