package sentry

type Team struct {
	ID       string       `json:"id"`
	Slug     string       `json:"slug"`
	Name     string       `json:"name"`
	Projects []ProjectRef `json:"projects,omitempty"`
}

// HasProject reports whether the team is already linked to projectSlug.
func (t Team) HasProject(projectSlug string) bool {
	for _, p := range t.Projects {
		if p.Slug == projectSlug {
			return true
		}
	}
	return false
}

type ProjectRef struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type Project struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type RateLimit struct {
	Window int `json:"window"`
	Count  int `json:"count"`
}

// Key is a project client key; DSN.Public is the secret we propose.
type Key struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	DSN  struct {
		Public string `json:"public"`
	} `json:"dsn"`
	RateLimit *RateLimit `json:"rateLimit"`
}

type Environment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Rule struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
