package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/numberly/gitlab2sentry/internal/config"
	"github.com/numberly/gitlab2sentry/internal/inventory"
)

func names(repos []inventory.RepositoryDescriptor) []string {
	out := make([]string, 0, len(repos))
	for _, r := range repos {
		out = append(out, r.FullPath)
	}
	return out
}

func TestFilterRepos(t *testing.T) {
	repos := []inventory.RepositoryDescriptor{
		{FullPath: "team-a/api", Name: "api"},
		{FullPath: "team-a/billing-service", Name: "billing-service"},
		{FullPath: "team-b/auth-service", Name: "auth-service"},
		{FullPath: "team-b/tools/cli", Name: "cli"},
	}

	tests := []struct {
		name     string
		t        config.Targeting
		expected []string
	}{
		{"no patterns", config.Targeting{}, names(repos)},
		{"include by name", config.Targeting{Include: []string{"*-service"}}, []string{"team-a/billing-service", "team-b/auth-service"}},
		{"include by full path", config.Targeting{Include: []string{"team-b/*"}}, []string{"team-b/auth-service"}},
		{"include nested path", config.Targeting{Include: []string{"team-b/*/*"}}, []string{"team-b/tools/cli"}},
		{"exclude", config.Targeting{Exclude: []string{"api", "team-b/*/*"}}, []string{"team-a/billing-service", "team-b/auth-service"}},
		{"include then exclude", config.Targeting{Include: []string{"*-service"}, Exclude: []string{"team-a/*"}}, []string{"team-b/auth-service"}},
		{"blank pattern matches nothing", config.Targeting{Include: []string{" "}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, names(FilterRepos(repos, tt.t)))
		})
	}
}

func TestFilterRepos_DoesNotAliasInput(t *testing.T) {
	repos := []inventory.RepositoryDescriptor{{FullPath: "team-a/api", Name: "api"}, {FullPath: "team-a/web", Name: "web"}}
	_ = FilterRepos(repos, config.Targeting{Exclude: []string{"api"}})
	assert.Equal(t, "team-a/api", repos[0].FullPath)
}

func TestInGroups(t *testing.T) {
	assert.True(t, inGroups(nil, "team-a"))
	assert.True(t, inGroups([]string{"team-a"}, "team-a"))
	assert.False(t, inGroups([]string{"team-b"}, "team-a"))
}
