package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable consulted when no --config flag is given.
const EnvConfigPath = "G2S_CONFIG"

// Load builds a Config from defaults, then the YAML file at path (optional),
// then environment variables. CLI flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := New()

	if strings.TrimSpace(path) == "" {
		path, _ = lookup(EnvConfigPath)
	}
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file keeps defaults.
			return nil
		}
		return err
	}
	return nil
}

type envBinding struct {
	name  string
	apply func(cfg *Config, value string) error
}

var envBindings = []envBinding{
	{"GITLAB_URL", func(c *Config, v string) error { c.GitLab.URL = v; return nil }},
	{"GITLAB_TOKEN", func(c *Config, v string) error { c.GitLab.Token = v; return nil }},
	{"GITLAB_GROUP_IDENTIFIER", func(c *Config, v string) error { c.GitLab.GroupPrefix = v; return nil }},
	{"GITLAB_AUTHOR_NAME", func(c *Config, v string) error { c.GitLab.AuthorName = v; return nil }},
	{"GITLAB_AUTHOR_EMAIL", func(c *Config, v string) error { c.GitLab.AuthorEmail = v; return nil }},
	{"GITLAB_MENTIONS", func(c *Config, v string) error { c.GitLab.Mentions = []string{v}; return nil }},
	{"GITLAB_MENTIONS_ACCESS_LEVEL", func(c *Config, v string) error {
		return parseIntEnv("GITLAB_MENTIONS_ACCESS_LEVEL", v, &c.GitLab.MentionsAccessLevel)
	}},
	{"GITLAB_GRAPHQL_PAGE_LENGTH", func(c *Config, v string) error {
		return parseIntEnv("GITLAB_GRAPHQL_PAGE_LENGTH", v, &c.GitLab.PageLength)
	}},
	{"GITLAB_GRAPHQL_TIMEOUT", func(c *Config, v string) error {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return fmt.Errorf("invalid GITLAB_GRAPHQL_TIMEOUT %q: %w", v, err)
		}
		c.GitLab.GraphQLTimeout = d
		return nil
	}},
	{"GITLAB_PROJECT_CREATION_LIMIT", func(c *Config, v string) error {
		return parseIntEnv("GITLAB_PROJECT_CREATION_LIMIT", v, &c.GitLab.CreationLimitDays)
	}},
	{"SENTRY_URL", func(c *Config, v string) error { c.Sentry.URL = v; return nil }},
	{"SENTRY_TOKEN", func(c *Config, v string) error { c.Sentry.Token = v; return nil }},
	{"SENTRY_ORG_SLUG", func(c *Config, v string) error { c.Sentry.OrgSlug = v; return nil }},
	{"SENTRY_DSN", func(c *Config, v string) error { c.SelfMonitoring.DSN = v; return nil }},
	{"SENTRY_ENV", func(c *Config, v string) error { c.SelfMonitoring.Environment = v; return nil }},
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(cfg, strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	return nil
}

func parseIntEnv(name, raw string, dst *int) error {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: must be an integer", name, raw)
	}
	*dst = n
	return nil
}

// parseSecondsOrDuration accepts a bare number of seconds ("10") or a Go
// duration string ("10s", "1m30s").
func parseSecondsOrDuration(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}
