package engine

import (
	"path"
	"slices"
	"strings"

	"github.com/numberly/gitlab2sentry/internal/config"
	"github.com/numberly/gitlab2sentry/internal/inventory"
)

// FilterRepos applies the include/exclude targeting patterns.
func FilterRepos(repos []inventory.RepositoryDescriptor, t config.Targeting) []inventory.RepositoryDescriptor {
	if len(t.Include) == 0 && len(t.Exclude) == 0 {
		return repos
	}

	filtered := repos[:0:0]
	for _, r := range repos {
		// If Include is set, must match at least one
		if len(t.Include) > 0 && !matchesAnyPattern(t.Include, r.FullPath, r.Name) {
			continue
		}
		// If Exclude is set, must not match any
		if len(t.Exclude) > 0 && matchesAnyPattern(t.Exclude, r.FullPath, r.Name) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func matchesAnyPattern(patterns []string, fullPath, name string) bool {
	for _, p := range patterns {
		if matchPattern(p, fullPath, name) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, fullPath, name string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	// Patterns with a group component match the full path, others the
	// project name, so "*-service" works across groups.
	if strings.Contains(pattern, "/") {
		matched, _ := path.Match(pattern, fullPath)
		return matched
	}
	matched, _ := path.Match(pattern, name)
	return matched
}

// inGroups reports whether group is selected. An empty list selects all.
func inGroups(groups []string, group string) bool {
	return len(groups) == 0 || slices.Contains(groups, group)
}
