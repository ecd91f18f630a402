package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - environment overrides in load.go (envBindings)
	// - CLI flags in internal/cli/root.go
	GitLab         GitLab         `yaml:"gitlab"`
	Sentry         Sentry         `yaml:"sentry"`
	Proposals      Proposals      `yaml:"proposals"`
	Alerting       Alerting       `yaml:"alerting"`
	Targeting      Targeting      `yaml:"targeting"`
	Output         Output         `yaml:"output"`
	Runtime        Runtime        `yaml:"runtime"`
	SelfMonitoring SelfMonitoring `yaml:"self_monitoring"`
}

type GitLab struct {
	// URL is the GitLab instance root (e.g. https://gitlab.example.com).
	URL string `yaml:"url"`

	// Token is a personal access token with api scope.
	Token string `yaml:"token"`

	// GroupPrefix selects team groups: only projects whose top-level group
	// starts with it are reconciled (e.g. "team-").
	GroupPrefix string `yaml:"group_prefix"`

	// AuthorName and AuthorEmail sign the commits that create the config file.
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`

	// PageLength is the number of projects requested per GraphQL page.
	PageLength int `yaml:"graphql_page_length"`

	// GraphQLTimeout bounds a single GraphQL page request.
	GraphQLTimeout time.Duration `yaml:"graphql_timeout"`

	// CreationLimitDays stops enumeration at projects created more than this
	// many days ago. 0 scans the full history.
	CreationLimitDays int `yaml:"project_creation_limit"`

	// Mentions is a static list of users pinged in MR descriptions. When empty,
	// project members at or above MentionsAccessLevel are mentioned instead.
	Mentions            []string `yaml:"mentions"`
	MentionsAccessLevel int      `yaml:"mentions_access_level"`

	// Labels are attached to every MR we open.
	Labels []string `yaml:"labels"`

	// RemoveSourceBranch asks GitLab to delete our branch once the MR is merged.
	RemoveSourceBranch bool `yaml:"remove_source_branch"`
}

type Sentry struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	OrgSlug string `yaml:"org_slug"`

	// RateLimitWindow (seconds) and RateLimitCount are applied to every client
	// key we hand out.
	RateLimitWindow int `yaml:"rate_limit_window"`
	RateLimitCount  int `yaml:"rate_limit_count"`
}

type Proposals struct {
	// FilePath is the config file proposed to every repository.
	FilePath string `yaml:"file_path"`

	// SecretKey is the key whose presence in FilePath marks the DSN as set.
	SecretKey string `yaml:"secret_key"`

	CommitMessage string `yaml:"commit_message"`

	Config Proposal `yaml:"config"`
	Secret Proposal `yaml:"secret"`
}

// Proposal holds the branch and templates of one kind of merge request.
type Proposal struct {
	Branch      string `yaml:"branch"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Content     string `yaml:"content"`
}

type Alerting struct {
	Enabled bool `yaml:"enabled"`

	// Groups restricts the alert pass to these team groups. Empty means all.
	Groups []string `yaml:"groups"`

	Branch      string `yaml:"branch"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`

	IssueTitle       string `yaml:"issue_title"`
	IssueDescription string `yaml:"issue_description"`

	// DefaultRule is the alert section proposed to projects without alerting.
	DefaultRule string `yaml:"default_rule"`

	// RuleFrequency is the Sentry action interval, in minutes.
	RuleFrequency int `yaml:"rule_frequency"`

	// RefreshWindow is the interval between two scheduled runs. Rules of a
	// project whose .sentryclirc changed within it are replaced.
	RefreshWindow time.Duration `yaml:"refresh_window"`
}

type Targeting struct {
	// Include filters projects using Go path.Match style. If a pattern contains
	// '/', it matches the full path; otherwise it matches the project name.
	Include []string `yaml:"include"`

	// Exclude uses the same matching rules as Include.
	Exclude []string `yaml:"exclude"`

	// FullPath reconciles a single project and bypasses enumeration.
	FullPath string `yaml:"-"`
}

type Output struct {
	// ConsoleFormat is one of text, json, ndjson.
	ConsoleFormat string `yaml:"console_format"`

	// Out writes structured output to this path; OutFormat is json or ndjson
	// and is inferred from the extension when empty.
	Out       string `yaml:"out"`
	OutFormat string `yaml:"out_format"`

	// Report writes a Markdown run report to this path.
	Report string `yaml:"report"`

	NoConsole bool `yaml:"no_console"`
}

type Runtime struct {
	// Timeout is the global deadline of a run. Must be > 0.
	Timeout time.Duration `yaml:"timeout"`

	// DryRun computes decisions without touching GitLab or Sentry.
	DryRun bool `yaml:"dry_run"`

	// Verbose traces every HTTP call at debug level.
	Verbose bool `yaml:"verbose"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type SelfMonitoring struct {
	// DSN reports our own failures to Sentry when set.
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

const (
	DefaultConfigBranch = "auto_add_sentry"
	DefaultSecretBranch = "auto_add_sentry_dsn"
	DefaultAlertBranch  = "auto_add_sentry_alerting"
	DefaultFilePath     = ".sentryclirc"
)

func New() *Config {
	return &Config{
		GitLab: GitLab{
			URL:                 "https://gitlab.com",
			GroupPrefix:         "team-",
			AuthorName:          "gitlab2sentry",
			AuthorEmail:         "gitlab2sentry@example.com",
			PageLength:          20,
			GraphQLTimeout:      10 * time.Second,
			CreationLimitDays:   30,
			MentionsAccessLevel: 40,
			Labels:              []string{"sentry"},
			RemoveSourceBranch:  true,
		},
		Sentry: Sentry{
			URL:             "https://sentry.io",
			RateLimitWindow: 60,
			RateLimitCount:  300,
		},
		Proposals: Proposals{
			FilePath:      DefaultFilePath,
			SecretKey:     "dsn",
			CommitMessage: "Update .sentryclirc",
			Config: Proposal{
				Branch:      DefaultConfigBranch,
				Title:       "[gitlab2sentry] Merge me to add Sentry to {project_name} or close me",
				Description: "{mentions} Merge this and it will automatically create a Sentry project for {name_with_namespace} :cookie:",
				Content:     "## File generated by gitlab2sentry\n[defaults]\nurl = {sentry_url}\n",
			},
			Secret: Proposal{
				Branch:      DefaultSecretBranch,
				Title:       "[gitlab2sentry] Merge me to add your Sentry DSN to {project_name}",
				Description: "{mentions} Congrats, your Sentry project has been created, merge this to finalize your Sentry integration of {name_with_namespace} :clap: :cookie:",
				Content:     "## File generated by gitlab2sentry\n[defaults]\nurl = {sentry_url}\ndsn = {dsn}\nproject = {project_slug}\n",
			},
		},
		Alerting: Alerting{
			Branch:           DefaultAlertBranch,
			Title:            "[gitlab2sentry] Merge me to add alerting to {project_name} or close me",
			Description:      "{mentions} Merge this and it will automatically create a default alert in Sentry for {name_with_namespace}",
			IssueTitle:       "[Alerting Sentry] Syntax Error on .sentryclirc",
			IssueDescription: "The file .sentryclirc has been modified.\nIt contains a configuration to add alerts on Sentry.\nThis configuration could not be added because there is an error:\n\n{error}\n\nPlease, correct this error and close the issue to add this configuration to Sentry.",
			DefaultRule:      "new_issue",
			RuleFrequency:    30,
			RefreshWindow:    3 * time.Hour,
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Timeout:   2 * time.Hour,
			LogLevel:  "info",
			LogFormat: "text",
		},
		SelfMonitoring: SelfMonitoring{
			Environment: "production",
		},
	}
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.GitLab.Mentions = normalizeMentions(splitCommaList(c.GitLab.Mentions))
	c.GitLab.Labels = splitCommaList(c.GitLab.Labels)
	c.Alerting.Groups = splitCommaList(c.Alerting.Groups)
	c.Targeting.Include = splitCommaList(c.Targeting.Include)
	c.Targeting.Exclude = splitCommaList(c.Targeting.Exclude)
	c.Targeting.FullPath = strings.Trim(strings.TrimSpace(c.Targeting.FullPath), "/")

	// Endpoints and credentials
	var err error
	if c.GitLab.URL, err = normalizeBaseURL(c.GitLab.URL); err != nil {
		return fmt.Errorf("invalid gitlab.url: %w", err)
	}
	if c.Sentry.URL, err = normalizeBaseURL(c.Sentry.URL); err != nil {
		return fmt.Errorf("invalid sentry.url: %w", err)
	}
	if strings.TrimSpace(c.GitLab.Token) == "" {
		return errors.New("gitlab.token is required (set GITLAB_TOKEN)")
	}
	if strings.TrimSpace(c.Sentry.Token) == "" {
		return errors.New("sentry.token is required (set SENTRY_TOKEN)")
	}
	c.Sentry.OrgSlug = strings.TrimSpace(c.Sentry.OrgSlug)
	if c.Sentry.OrgSlug == "" {
		return errors.New("sentry.org_slug is required (set SENTRY_ORG_SLUG)")
	}

	// Enumeration
	if c.GitLab.PageLength <= 0 {
		return errors.New("gitlab.graphql_page_length must be >= 1")
	}
	if c.GitLab.GraphQLTimeout <= 0 {
		return errors.New("gitlab.graphql_timeout must be > 0")
	}
	if c.GitLab.CreationLimitDays < 0 {
		return errors.New("gitlab.project_creation_limit must be >= 0")
	}
	if c.GitLab.MentionsAccessLevel < 0 {
		return errors.New("gitlab.mentions_access_level must be >= 0")
	}
	if c.Sentry.RateLimitWindow <= 0 || c.Sentry.RateLimitCount <= 0 {
		return errors.New("sentry.rate_limit_window and sentry.rate_limit_count must be > 0")
	}

	// Proposals
	if strings.TrimSpace(c.Proposals.FilePath) == "" {
		return errors.New("proposals.file_path is required")
	}
	if strings.TrimSpace(c.Proposals.SecretKey) == "" {
		return errors.New("proposals.secret_key is required")
	}
	if err := validateProposal("proposals.config", c.Proposals.Config); err != nil {
		return err
	}
	if err := validateProposal("proposals.secret", c.Proposals.Secret); err != nil {
		return err
	}
	if c.Proposals.Config.Branch == c.Proposals.Secret.Branch {
		return fmt.Errorf("proposals.config.branch and proposals.secret.branch must differ (both %q)", c.Proposals.Config.Branch)
	}
	if !strings.Contains(c.Proposals.Secret.Content, "{dsn}") {
		return errors.New("proposals.secret.content must contain the {dsn} placeholder")
	}

	if c.Alerting.Enabled {
		if strings.TrimSpace(c.Alerting.Branch) == "" {
			return errors.New("alerting.branch is required when alerting is enabled")
		}
		if !strings.Contains(c.Alerting.Title, "{project_name}") {
			return errors.New("alerting.title must contain the {project_name} placeholder")
		}
		if c.Alerting.RuleFrequency <= 0 {
			return errors.New("alerting.rule_frequency must be > 0")
		}
		if c.Alerting.RefreshWindow < 0 {
			return errors.New("alerting.refresh_window must be >= 0")
		}
		for _, p := range []struct {
			name   string
			branch string
		}{
			{"proposals.config.branch", c.Proposals.Config.Branch},
			{"proposals.secret.branch", c.Proposals.Secret.Branch},
		} {
			if c.Alerting.Branch == p.branch {
				return fmt.Errorf("alerting.branch and %s must differ (both %q)", p.name, p.branch)
			}
		}
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		c.Output.ConsoleFormat = "text"
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}
	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	c.Runtime.LogLevel = normalizeEnumValue(c.Runtime.LogLevel)
	switch c.Runtime.LogLevel {
	case "":
		c.Runtime.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported --log-level: %s (must be one of: debug, info, warn, error)", c.Runtime.LogLevel)
	}
	c.Runtime.LogFormat = normalizeEnumValue(c.Runtime.LogFormat)
	switch c.Runtime.LogFormat {
	case "":
		c.Runtime.LogFormat = "text"
	case "text", "json":
	default:
		return fmt.Errorf("unsupported --log-format: %s (must be one of: text, json)", c.Runtime.LogFormat)
	}

	return nil
}

func validateProposal(name string, p Proposal) error {
	if strings.TrimSpace(p.Branch) == "" {
		return fmt.Errorf("%s.branch is required", name)
	}
	if !strings.Contains(p.Title, "{project_name}") {
		return fmt.Errorf("%s.title must contain the {project_name} placeholder", name)
	}
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("%s.content is required", name)
	}
	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%q: missing host", raw)
	}
	return strings.TrimSuffix(raw, "/"), nil
}

// normalizeMentions accepts "foo" or "@foo" and always returns "@foo".
func normalizeMentions(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimLeft(v, "@")
		if v == "" {
			continue
		}
		out = append(out, "@"+v)
	}
	return out
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
