// Package sentry talks to the Sentry REST API: teams, projects, client keys
// and alert rules of one organization.
package sentry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/numberly/gitlab2sentry/internal/logging"
)

// Config holds configuration for creating a Sentry API Client.
type Config struct {
	// BaseURL is the Sentry instance root, without /api/0.
	BaseURL string

	// Token is an organization auth token with project:admin and team:admin.
	Token string

	// OrgSlug scopes every call.
	OrgSlug string

	// Transport replaces http.DefaultTransport. Tests point it at fakes.
	Transport http.RoundTripper

	// Verbose traces every call at debug level.
	Verbose bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type Client struct {
	baseURL string
	org     string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("sentry: base url is required")
	}
	if strings.TrimSpace(cfg.OrgSlug) == "" {
		return nil, errors.New("sentry: organization slug is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if cfg.Verbose {
		transport = &logging.RoundTripper{Base: transport, Logger: logger, Service: "sentry"}
	}
	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   transport,
		}
	}

	return &Client{
		baseURL: base,
		org:     cfg.OrgSlug,
		http:    &http.Client{Transport: transport},
		logger:  logger,
	}, nil
}

// APIError represents a non-2xx response from the Sentry API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int

	// Detail is Sentry's "detail" field when the body is JSON, the raw body
	// otherwise (truncated).
	Detail string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("sentry: %s %s: HTTP %d: %s", err.Method, err.Path, err.StatusCode, err.Detail)
}

// IsNotFound reports whether err is a Sentry 404 response.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a Sentry 409 response (resource exists).
func IsConflict(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusConflict
}

func parseAPIError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
	var body struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Detail != "" {
		apiErr.Detail = body.Detail
	} else {
		apiErr.Detail = strings.TrimSpace(string(raw))
		if len(apiErr.Detail) > 256 {
			apiErr.Detail = apiErr.Detail[:256]
		}
	}
	return apiErr
}

// do sends a JSON request to {base}/api/0{path} and decodes a 2xx body into
// out (when non-nil). Non-2xx responses return *APIError. The response
// headers are returned for pagination.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	return c.doURL(ctx, method, c.baseURL+"/api/0"+path, path, body, out)
}

func (c *Client) doURL(ctx context.Context, method, url, path string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("sentry: marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("sentry: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sentry: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, parseAPIError(method, path, resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("sentry: decode %s %s: %w", method, path, err)
		}
	}
	return resp.Header, nil
}

// listAll follows Sentry's cursor Link headers and concatenates every page.
func listAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	url := c.baseURL + "/api/0" + path
	for url != "" {
		var page []T
		header, err := c.doURL(ctx, http.MethodGet, url, path, nil, &page)
		if err != nil {
			return all, err
		}
		all = append(all, page...)
		url = parseLinkNext(header.Get("Link"))
	}
	return all, nil
}

// parseLinkNext returns the rel="next" URL of a Sentry Link header, or "" when
// Sentry flags it with results="false".
//
// Format: <https://sentry.io/api/0/...?&cursor=0:100:0>; rel="next"; results="true"; cursor="0:100:0"
func parseLinkNext(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(strings.TrimSpace(part), ";")
		if len(segments) < 2 {
			continue
		}
		urlPart := strings.TrimSpace(segments[0])
		isNext, hasResults := false, false
		for _, attr := range segments[1:] {
			switch strings.TrimSpace(attr) {
			case `rel="next"`:
				isNext = true
			case `results="true"`:
				hasResults = true
			}
		}
		if !isNext || !hasResults {
			continue
		}
		if strings.HasPrefix(urlPart, "<") && strings.HasSuffix(urlPart, ">") {
			return urlPart[1 : len(urlPart)-1]
		}
	}
	return ""
}
