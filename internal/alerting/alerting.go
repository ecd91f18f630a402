// Package alerting reads the [alert.<kind>] sections of a .sentryclirc and
// turns them into Sentry issue alert rules.
package alerting

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/numberly/gitlab2sentry/internal/sentry"
)

const (
	KindNewIssue      = "new_issue"
	KindIssueInterval = "issue_interval"

	// DefaultEnvironment is bootstrapped when a project has none yet.
	DefaultEnvironment = "production"

	sectionPrefix = "alert."
)

// Kind is one supported alert type.
type Kind struct {
	ConditionID string
	RuleName    string

	// DefaultInterval and DefaultSeen are set for frequency conditions only.
	DefaultInterval string
	DefaultSeen     int
}

func (k Kind) frequency() bool { return k.DefaultInterval != "" }

var Kinds = map[string]Kind{
	KindNewIssue: {
		ConditionID: "sentry.rules.conditions.first_seen_event.FirstSeenEventCondition",
		RuleName:    "[Gitlab2Sentry] First seen event",
	},
	KindIssueInterval: {
		ConditionID:     "sentry.rules.conditions.event_frequency.EventFrequencyCondition",
		RuleName:        "[Gitlab2Sentry] Event Frequency",
		DefaultInterval: "1m",
		DefaultSeen:     100,
	},
}

// Intervals accepted by EventFrequencyCondition.
var Intervals = []string{"1m", "1h", "1d", "1w"}

// Alert is one [alert.<kind>] section as written by the user.
type Alert struct {
	Kind        string
	Notify      string
	Environment string
	Interval    string
	Seen        string
}

// File is the parsed .sentryclirc.
type File struct {
	DSN     string
	Project string
	Alerts  []Alert
}

// Parse reads content as INI. A malformed file is a SyntaxError.
func Parse(content string) (File, error) {
	cfg, err := ini.Load([]byte(content))
	if err != nil {
		return File{}, &SyntaxError{Reason: fmt.Sprintf("unreadable file: %v", err)}
	}

	var f File
	if defaults, err := cfg.GetSection("defaults"); err == nil {
		f.DSN = defaults.Key("dsn").String()
		f.Project = defaults.Key("project").String()
	}
	for _, section := range cfg.Sections() {
		kind, ok := strings.CutPrefix(section.Name(), sectionPrefix)
		if !ok {
			continue
		}
		f.Alerts = append(f.Alerts, Alert{
			Kind:        kind,
			Notify:      section.Key("notify").String(),
			Environment: section.Key("environment").String(),
			Interval:    section.Key("interval").String(),
			Seen:        section.Key("seen").String(),
		})
	}
	return f, nil
}

// WithDefaultAlert returns content with an empty [alert.<kind>] section
// appended, which the rules pass reads with every default applied.
func WithDefaultAlert(content, kind string) string {
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n[" + sectionPrefix + kind + "]\n"
}

// SyntaxError explains why an alert configuration cannot be applied. Its
// message ends up in the GitLab issue.
type SyntaxError struct {
	Alert  string
	Reason string
}

func (e *SyntaxError) Error() string {
	if e.Alert == "" {
		return e.Reason
	}
	return fmt.Sprintf("[%s%s] %s", sectionPrefix, e.Alert, e.Reason)
}

// Context is the Sentry state alerts are resolved against.
type Context struct {
	ProjectSlug string

	// Teams by name.
	Teams map[string]sentry.Team

	// DefaultTeam notifies alerts without notify (the repository's group).
	DefaultTeam string

	Environments []string

	// Frequency is the action interval of every rule, in minutes.
	Frequency int
}

// Plan is what must happen in Sentry for the alerts to exist.
type Plan struct {
	Rules []sentry.RuleSpec

	// LinkTeams are team slugs to grant access to the project first.
	LinkTeams []string

	// Bootstrap asks for one event in DefaultEnvironment before the rules.
	Bootstrap bool
}

// Resolve validates alerts and fills their defaults.
func Resolve(alerts []Alert, c Context) (Plan, error) {
	var plan Plan
	linked := map[string]bool{}

	for _, a := range alerts {
		kind, ok := Kinds[a.Kind]
		if !ok {
			return Plan{}, &SyntaxError{Alert: a.Kind, Reason: fmt.Sprintf("unknown alert type %q", a.Kind)}
		}

		notify := a.Notify
		if notify == "" {
			notify = c.DefaultTeam
		}
		team, ok := c.Teams[notify]
		if !ok {
			return Plan{}, &SyntaxError{Alert: a.Kind, Reason: fmt.Sprintf("team %q not found in Sentry", notify)}
		}
		if !team.HasProject(c.ProjectSlug) && !linked[team.Slug] {
			linked[team.Slug] = true
			plan.LinkTeams = append(plan.LinkTeams, team.Slug)
		}

		spec := sentry.RuleSpec{
			Name:        kind.RuleName,
			ConditionID: kind.ConditionID,
			TeamID:      team.ID,
			Frequency:   c.Frequency,
		}

		if kind.frequency() {
			spec.Interval = a.Interval
			if spec.Interval == "" {
				spec.Interval = kind.DefaultInterval
			} else if !slices.Contains(Intervals, spec.Interval) {
				return Plan{}, &SyntaxError{Alert: a.Kind, Reason: fmt.Sprintf("interval %q must be one of %s", a.Interval, strings.Join(Intervals, ", "))}
			}
			spec.Value = kind.DefaultSeen
			if a.Seen != "" {
				seen, err := strconv.Atoi(a.Seen)
				if err != nil || seen < 1 || seen > 100 {
					return Plan{}, &SyntaxError{Alert: a.Kind, Reason: fmt.Sprintf("seen %q must be an integer between 1 and 100", a.Seen)}
				}
				spec.Value = seen
			}
		}

		env, bootstrap, err := resolveEnvironment(a, c.Environments)
		if err != nil {
			return Plan{}, err
		}
		spec.Environment = env
		plan.Bootstrap = plan.Bootstrap || bootstrap

		plan.Rules = append(plan.Rules, spec)
	}
	return plan, nil
}

func resolveEnvironment(a Alert, envs []string) (string, bool, error) {
	if len(envs) == 0 {
		if a.Environment != "" && a.Environment != DefaultEnvironment {
			return "", false, &SyntaxError{Alert: a.Kind, Reason: fmt.Sprintf("environment %q does not exist", a.Environment)}
		}
		return DefaultEnvironment, true, nil
	}
	if a.Environment != "" {
		if !slices.Contains(envs, a.Environment) {
			return "", false, &SyntaxError{Alert: a.Kind, Reason: fmt.Sprintf("environment %q does not exist", a.Environment)}
		}
		return a.Environment, false, nil
	}
	for _, e := range envs {
		if strings.Contains(e, DefaultEnvironment) {
			return e, false, nil
		}
	}
	// No production-like environment: the rule applies to all of them.
	return "", false, nil
}
