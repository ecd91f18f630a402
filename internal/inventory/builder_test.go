package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numberly/gitlab2sentry/internal/config"
	"github.com/numberly/gitlab2sentry/internal/gitlab"
)

func testBuilder() Builder {
	return NewBuilder(config.New())
}

type nodeOpts struct {
	name       string
	group      string
	mrsEnabled bool
	content    *string
	mrs        []gitlab.MergeRequestNode
	created    time.Time
}

func projectNode(o nodeOpts) gitlab.ProjectNode {
	n := gitlab.ProjectNode{
		ID:                   "gid://gitlab/Project/1",
		FullPath:             o.group + "/" + o.name,
		Name:                 o.name,
		CreatedAt:            o.created,
		MergeRequestsEnabled: o.mrsEnabled,
		Group:                &gitlab.GroupRef{Name: o.group},
		Repository:           &gitlab.Repository{},
		MergeRequests:        gitlab.MergeRequestConnection{Nodes: o.mrs},
	}
	if o.content != nil {
		n.Repository.Blobs.Nodes = []gitlab.Blob{{Name: ".sentryclirc", Path: ".sentryclirc", RawTextBlob: *o.content}}
	}
	return n
}

func ptr(s string) *string { return &s }

func configTitle(name string) string {
	return "[gitlab2sentry] Merge me to add Sentry to " + name + " or close me"
}

func secretTitle(name string) string {
	return "[gitlab2sentry] Merge me to add your Sentry DSN to " + name
}

func TestBuild_RoundTripCompleteProject(t *testing.T) {
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	d, ok := testBuilder().Build(projectNode(nodeOpts{
		name:       "api",
		group:      "team-a",
		mrsEnabled: true,
		content:    ptr("[defaults]\nurl = https://sentry.example.com\ndsn = https://key@sentry.example.com/1\n"),
		created:    created,
	}))
	require.True(t, ok)

	assert.Equal(t, int64(1), d.ID)
	assert.Equal(t, "api", d.Name)
	assert.Equal(t, "team-a", d.Group)
	assert.Equal(t, "team-a/api", d.FullPath)
	assert.Equal(t, "team-a / api", d.NameWithNamespace)
	assert.Equal(t, created, d.CreatedAt)
	assert.True(t, d.MRsEnabled)
	assert.True(t, d.HasConfigFile)
	assert.True(t, d.HasSecret)
	assert.True(t, d.Complete())
	assert.Equal(t, RequestStateNone, d.ConfigRequestState)
	assert.Equal(t, RequestStateNone, d.SecretRequestState)
}

func TestHasSecret(t *testing.T) {
	assert.True(t, HasSecret("dsn=http://x", "dsn"))
	assert.True(t, HasSecret("[defaults]\n  dsn = http://x\n", "dsn"))
	assert.False(t, HasSecret("[defaults]\nurl=http://x", "dsn"))
	assert.False(t, HasSecret("", "dsn"))
	assert.False(t, HasSecret("# dsn = later", "dsn"))
}

func TestBuild_ConfigWithoutSecret(t *testing.T) {
	d, ok := testBuilder().Build(projectNode(nodeOpts{
		name: "api", group: "team-a", mrsEnabled: true,
		content: ptr("[defaults]\nurl=http://x"),
	}))
	require.True(t, ok)
	assert.True(t, d.HasConfigFile)
	assert.False(t, d.HasSecret)
	assert.Equal(t, "[defaults]\nurl=http://x", d.ConfigContent)
}

func TestBuild_RequestStates(t *testing.T) {
	tests := []struct {
		name       string
		mrs        []gitlab.MergeRequestNode
		wantConfig RequestState
		wantSecret RequestState
	}{
		{
			name:       "no requests",
			wantConfig: RequestStateNone,
			wantSecret: RequestStateNone,
		},
		{
			name: "opened wins over merged",
			mrs: []gitlab.MergeRequestNode{
				{Title: configTitle("api"), State: "opened"},
				{Title: configTitle("api"), State: "merged"},
			},
			wantConfig: RequestStateOpened,
		},
		{
			name: "opened wins when seen last",
			mrs: []gitlab.MergeRequestNode{
				{Title: secretTitle("api"), State: "closed"},
				{Title: secretTitle("api"), State: "opened"},
			},
			wantSecret: RequestStateOpened,
		},
		{
			name: "last state wins without opened",
			mrs: []gitlab.MergeRequestNode{
				{Title: configTitle("api"), State: "merged"},
				{Title: configTitle("api"), State: "closed"},
			},
			wantConfig: RequestStateClosed,
		},
		{
			name: "unknown states and titles are ignored",
			mrs: []gitlab.MergeRequestNode{
				{Title: configTitle("api"), State: "locked"},
				{Title: configTitle("other"), State: "opened"},
				{Title: secretTitle("api"), State: "merged"},
			},
			wantConfig: RequestStateNone,
			wantSecret: RequestStateMerged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := testBuilder().Build(projectNode(nodeOpts{name: "api", group: "team-a", mrsEnabled: true, mrs: tt.mrs}))
			require.True(t, ok)
			assert.Equal(t, tt.wantConfig, d.ConfigRequestState)
			assert.Equal(t, tt.wantSecret, d.SecretRequestState)
		})
	}
}

func TestBuild_Excludes(t *testing.T) {
	b := testBuilder()

	noRepo := projectNode(nodeOpts{name: "api", group: "team-a"})
	noRepo.Repository = nil
	_, ok := b.Build(noRepo)
	assert.False(t, ok, "repository not visible")

	noGroup := projectNode(nodeOpts{name: "api", group: "team-a"})
	noGroup.Group = nil
	_, ok = b.Build(noGroup)
	assert.False(t, ok, "user namespace")

	_, ok = b.Build(projectNode(nodeOpts{name: "api", group: "platform"}))
	assert.False(t, ok, "group outside prefix")

	badID := projectNode(nodeOpts{name: "api", group: "team-a"})
	badID.ID = "gid://gitlab/Project/abc"
	_, ok = b.Build(badID)
	assert.False(t, ok, "unparseable id")
}

func TestSentryProjectName(t *testing.T) {
	assert.Equal(t, "api", RepositoryDescriptor{FullPath: "team-a/api"}.SentryProjectName())
	assert.Equal(t, "backend-api", RepositoryDescriptor{FullPath: "team-a/backend/api"}.SentryProjectName())
	assert.Equal(t, "solo", RepositoryDescriptor{FullPath: "solo", Name: "solo"}.SentryProjectName())
}

func TestRequestState_Text(t *testing.T) {
	var s RequestState
	require.NoError(t, s.UnmarshalText([]byte("merged")))
	assert.Equal(t, RequestStateMerged, s)
	assert.Equal(t, "merged", s.String())
	assert.True(t, RequestStateClosed.Pending())
	assert.False(t, RequestStateMerged.Pending())
	assert.Error(t, s.UnmarshalText([]byte("locked")))
}
