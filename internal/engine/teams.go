package engine

import "context"

// teamMemo ensures each team at most once per run. A team that could not be
// ensured stays failed until the next run.
type teamMemo map[string]bool

func newTeamMemo() teamMemo {
	return make(teamMemo)
}

func (m teamMemo) ensure(ctx context.Context, p Provisioner, team string) bool {
	if ok, seen := m[team]; seen {
		return ok
	}
	ok := p.EnsureTeam(ctx, team)
	m[team] = ok
	return ok
}
