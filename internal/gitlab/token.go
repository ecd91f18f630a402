package gitlab

import (
	"context"
	"errors"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

type AuthTokenSource string

const (
	AuthTokenSourceExplicit AuthTokenSource = "explicit"
	AuthTokenSourceEnv      AuthTokenSource = "env:GITLAB_TOKEN"
	AuthTokenSourceGlab     AuthTokenSource = "glab"
)

// glabLookup is swapped in tests.
var glabLookup = tokenFromGlabCLI

// ResolveAuthToken resolves a GitLab access token.
//
// Precedence:
//  1. provided (if non-empty)
//  2. GITLAB_TOKEN env var
//  3. GitLab CLI: `glab config get token --host <host>`
//
// It never prints the token.
func ResolveAuthToken(ctx context.Context, provided, baseURL string) (token string, source AuthTokenSource, err error) {
	if tok := strings.TrimSpace(provided); tok != "" {
		return tok, AuthTokenSourceExplicit, nil
	}
	if env := strings.TrimSpace(os.Getenv("GITLAB_TOKEN")); env != "" {
		return env, AuthTokenSourceEnv, nil
	}

	host := "gitlab.com"
	if u, perr := url.Parse(baseURL); perr == nil && u.Host != "" {
		host = u.Host
	}
	tok, ok, err := glabLookup(ctx, host)
	if err != nil {
		return "", "", err
	}
	if ok {
		return tok, AuthTokenSourceGlab, nil
	}
	return "", "", nil
}

func tokenFromGlabCLI(ctx context.Context, host string) (string, bool, error) {
	if _, err := exec.LookPath("glab"); err != nil {
		return "", false, nil
	}

	cmdCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	out, runErr := exec.CommandContext(cmdCtx, "glab", "config", "get", "token", "--host", host).Output()
	if runErr != nil {
		if cmdCtx.Err() != nil {
			return "", false, cmdCtx.Err()
		}
		// glab present but not logged in for this host.
		return "", false, nil
	}

	tok := strings.TrimSpace(string(out))
	if tok == "" {
		return "", false, nil
	}
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", false, errors.New("invalid token returned by glab: contains whitespace")
	}
	return tok, true, nil
}
