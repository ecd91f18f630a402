package proposal

import (
	"context"
	"strings"

	"github.com/numberly/gitlab2sentry/internal/gitlab"
)

const blockedState = "blocked"

// mentions renders the {mentions} placeholder: the static list when one is
// configured, otherwise every non-blocked member at or above the access level.
func (s *Submitter) mentions(ctx context.Context, projectID int64) (string, error) {
	if len(s.cfg.GitLab.Mentions) > 0 {
		return strings.Join(s.cfg.GitLab.Mentions, ", "), nil
	}
	members, err := s.backend.ListMembers(ctx, projectID)
	if err != nil {
		return "", err
	}
	return memberMentions(members, s.cfg.GitLab.MentionsAccessLevel), nil
}

func memberMentions(members []gitlab.Member, minAccess int) string {
	var out []string
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if m.AccessLevel < minAccess || m.State == blockedState || seen[m.Username] {
			continue
		}
		seen[m.Username] = true
		out = append(out, "@"+m.Username)
	}
	return strings.Join(out, ", ")
}
