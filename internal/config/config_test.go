package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := New()
	cfg.GitLab.Token = "glpat-test"
	cfg.Sentry.Token = "sntrys-test"
	cfg.Sentry.OrgSlug = "acme"
	return cfg
}

func TestNew_DefaultsValidateOnceCredentialsAreSet(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Proposals.Config.Branch != "auto_add_sentry" || cfg.Proposals.Secret.Branch != "auto_add_sentry_dsn" {
		t.Fatalf("unexpected default branches: %+v", cfg.Proposals)
	}
	if cfg.GitLab.MentionsAccessLevel != 40 {
		t.Fatalf("MentionsAccessLevel = %d, want 40", cfg.GitLab.MentionsAccessLevel)
	}
}

func TestValidate_NormalizesMentions(t *testing.T) {
	cfg := validConfig()
	cfg.GitLab.Mentions = []string{"alice, @bob", "carol", ",,"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"@alice", "@bob", "@carol"}
	if !reflect.DeepEqual(cfg.GitLab.Mentions, want) {
		t.Fatalf("Mentions normalized mismatch: got %v want %v", cfg.GitLab.Mentions, want)
	}
}

func TestValidate_TrimsTrailingSlashFromURLs(t *testing.T) {
	cfg := validConfig()
	cfg.GitLab.URL = "https://gitlab.example.com/"
	cfg.Sentry.URL = " https://sentry.example.com/ "

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.GitLab.URL != "https://gitlab.example.com" || cfg.Sentry.URL != "https://sentry.example.com" {
		t.Fatalf("unexpected urls: %q %q", cfg.GitLab.URL, cfg.Sentry.URL)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "missing_gitlab_token", mutate: func(c *Config) { c.GitLab.Token = "" }, want: "gitlab.token"},
		{name: "missing_sentry_token", mutate: func(c *Config) { c.Sentry.Token = " " }, want: "sentry.token"},
		{name: "missing_org", mutate: func(c *Config) { c.Sentry.OrgSlug = "" }, want: "org_slug"},
		{name: "bad_scheme", mutate: func(c *Config) { c.GitLab.URL = "ftp://gitlab" }, want: "gitlab.url"},
		{name: "zero_page_length", mutate: func(c *Config) { c.GitLab.PageLength = 0 }, want: "page_length"},
		{name: "zero_graphql_timeout", mutate: func(c *Config) { c.GitLab.GraphQLTimeout = 0 }, want: "graphql_timeout"},
		{name: "negative_creation_limit", mutate: func(c *Config) { c.GitLab.CreationLimitDays = -1 }, want: "project_creation_limit"},
		{name: "title_without_project_name", mutate: func(c *Config) { c.Proposals.Config.Title = "Add Sentry" }, want: "{project_name}"},
		{name: "secret_content_without_dsn", mutate: func(c *Config) { c.Proposals.Secret.Content = "[defaults]\n" }, want: "{dsn}"},
		{name: "same_branches", mutate: func(c *Config) { c.Proposals.Secret.Branch = c.Proposals.Config.Branch }, want: "must differ"},
		{name: "alert_branch_is_config_branch", mutate: func(c *Config) {
			c.Alerting.Enabled = true
			c.Alerting.Branch = c.Proposals.Config.Branch
		}, want: "alerting.branch and proposals.config.branch must differ"},
		{name: "alert_branch_is_secret_branch", mutate: func(c *Config) {
			c.Alerting.Enabled = true
			c.Alerting.Branch = c.Proposals.Secret.Branch
		}, want: "alerting.branch and proposals.secret.branch must differ"},
		{name: "negative_refresh_window", mutate: func(c *Config) {
			c.Alerting.Enabled = true
			c.Alerting.RefreshWindow = -time.Minute
		}, want: "refresh_window"},
		{name: "console_format", mutate: func(c *Config) { c.Output.ConsoleFormat = "yaml" }, want: "console-format"},
		{name: "out_without_extension", mutate: func(c *Config) { c.Output.Out = "results" }, want: "missing extension"},
		{name: "log_level", mutate: func(c *Config) { c.Runtime.LogLevel = "trace" }, want: "log-level"},
		{name: "timeout", mutate: func(c *Config) { c.Runtime.Timeout = 0 }, want: "--timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_InfersOutFormatFromExtension(t *testing.T) {
	cfg := validConfig()
	cfg.Output.Out = "run.jsonl"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Output.OutFormat != "ndjson" {
		t.Fatalf("OutFormat = %q, want ndjson", cfg.Output.OutFormat)
	}
}

func TestLoad_LayersFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g2s.yaml")
	body := `gitlab:
  url: https://gitlab.internal
  group_prefix: squad-
  graphql_page_length: 50
sentry:
  org_slug: from-file
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := map[string]string{
		"SENTRY_ORG_SLUG":        "from-env",
		"GITLAB_GRAPHQL_TIMEOUT": "25",
		"GITLAB_MENTIONS":        "alice,bob",
	}
	cfg, err := load(path, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}

	if cfg.GitLab.URL != "https://gitlab.internal" {
		t.Fatalf("GitLab.URL = %q", cfg.GitLab.URL)
	}
	if cfg.GitLab.GroupPrefix != "squad-" {
		t.Fatalf("GroupPrefix = %q", cfg.GitLab.GroupPrefix)
	}
	if cfg.GitLab.PageLength != 50 {
		t.Fatalf("PageLength = %d", cfg.GitLab.PageLength)
	}
	if cfg.Sentry.OrgSlug != "from-env" {
		t.Fatalf("env should override file, got %q", cfg.Sentry.OrgSlug)
	}
	if cfg.GitLab.GraphQLTimeout != 25*time.Second {
		t.Fatalf("GraphQLTimeout = %s", cfg.GitLab.GraphQLTimeout)
	}
	if !reflect.DeepEqual(cfg.GitLab.Mentions, []string{"alice,bob"}) {
		t.Fatalf("Mentions = %v", cfg.GitLab.Mentions)
	}
	// Untouched sections keep their defaults.
	if cfg.Proposals.FilePath != DefaultFilePath {
		t.Fatalf("FilePath = %q", cfg.Proposals.FilePath)
	}
}

func TestLoad_UsesEnvConfigPathWhenFlagIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g2s.yaml")
	if err := os.WriteFile(path, []byte("gitlab:\n  group_prefix: ops-\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := load("", func(k string) (string, bool) {
		if k == EnvConfigPath {
			return path, true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.GitLab.GroupPrefix != "ops-" {
		t.Fatalf("GroupPrefix = %q", cfg.GitLab.GroupPrefix)
	}
}

func TestLoad_RejectsUnknownFieldsAndBadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("gitlab:\n  nope: 1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	noEnv := func(string) (string, bool) { return "", false }
	if _, err := load(path, noEnv); err == nil {
		t.Fatalf("expected error for unknown field")
	}

	badEnv := func(k string) (string, bool) {
		if k == "GITLAB_GRAPHQL_PAGE_LENGTH" {
			return "many", true
		}
		return "", false
	}
	if _, err := load("", badEnv); err == nil {
		t.Fatalf("expected error for non-integer page length")
	}
}

func TestExpand(t *testing.T) {
	got := Expand("[g2s] add {project_name} to {sentry_url} {unknown}", map[string]string{
		"project_name": "api",
		"sentry_url":   "https://sentry.example.com",
	})
	want := "[g2s] add api to https://sentry.example.com {unknown}"
	if got != want {
		t.Fatalf("Expand() = %q, want %q", got, want)
	}
}
