package sentry

import (
	"context"
	"fmt"
	"net/http"
)

const notifyEmailAction = "sentry.mail.actions.NotifyEmailAction"

// RuleSpec describes one issue alert rule notifying a team by email.
type RuleSpec struct {
	Name        string
	ConditionID string

	// Interval and Value are only set for frequency conditions.
	Interval string
	Value    int

	Environment string
	TeamID      string

	// Frequency is the minimum number of minutes between two notifications.
	Frequency int
}

func (r RuleSpec) payload() map[string]any {
	condition := map[string]any{"id": r.ConditionID}
	if r.Interval != "" {
		condition["interval"] = r.Interval
		condition["value"] = r.Value
	}
	body := map[string]any{
		"name":        r.Name,
		"actionMatch": "all",
		"filterMatch": "all",
		"frequency":   r.Frequency,
		"conditions":  []any{condition},
		"filters":     []any{},
		"actions": []any{map[string]any{
			"id":               notifyEmailAction,
			"targetType":       "Team",
			"targetIdentifier": r.TeamID,
		}},
	}
	if r.Environment != "" {
		body["environment"] = r.Environment
	}
	return body
}

// Teams lists the organization's teams with their linked projects.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	return listAll[Team](ctx, c, fmt.Sprintf("/organizations/%s/teams/", c.org))
}

func (c *Client) Environments(ctx context.Context, projectSlug string) ([]Environment, error) {
	var envs []Environment
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/%s/environments/", c.org, projectSlug), nil, &envs)
	return envs, err
}

func (c *Client) ProjectRules(ctx context.Context, projectSlug string) ([]Rule, error) {
	return listAll[Rule](ctx, c, fmt.Sprintf("/projects/%s/%s/rules/", c.org, projectSlug))
}

func (c *Client) AddRule(ctx context.Context, projectSlug string, spec RuleSpec) (*Rule, error) {
	var rule Rule
	if _, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/%s/rules/", c.org, projectSlug), spec.payload(), &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// AddTeamToProject grants teamSlug access to the project.
func (c *Client) AddTeamToProject(ctx context.Context, projectSlug, teamSlug string) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/%s/teams/%s/", c.org, projectSlug, teamSlug), nil, nil)
	return err
}

// DeleteRule removes one issue alert rule of the project.
func (c *Client) DeleteRule(ctx context.Context, projectSlug, ruleID string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/projects/%s/%s/rules/%s/", c.org, projectSlug, ruleID), nil, nil)
	return err
}
