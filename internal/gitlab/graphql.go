package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	gl "gitlab.com/gitlab-org/api/client-go"
)

type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type GraphQLError struct {
	Message string `json:"message"`
}

type GraphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// HTTPError is returned for non-2xx GraphQL transport responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("graphql: http %d", e.StatusCode)
	}
	return fmt.Sprintf("graphql: http %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from either the GraphQL transport
// or the REST client.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound
	}
	var restErr *gl.ErrorResponse
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

func graphqlEndpoint(base *url.URL) (*url.URL, error) {
	if base == nil {
		return nil, fmt.Errorf("graphql: base url is nil")
	}
	u := *base
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/graphql"
	return &u, nil
}

// DoGraphQL executes a GraphQL POST against {base}/api/graphql using the
// client's authenticated transport. One budget unit is taken per call.
func DoGraphQL[T any](ctx context.Context, c *Client, req GraphQLRequest) (GraphQLResponse[T], error) {
	var zero GraphQLResponse[T]
	if ctx == nil {
		return zero, fmt.Errorf("graphql: ctx is nil")
	}
	if c == nil || c.HTTP == nil {
		return zero, fmt.Errorf("graphql: client is nil")
	}

	endpoint, err := graphqlEndpoint(c.BaseURL)
	if err != nil {
		return zero, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("graphql: marshal request: %w", err)
	}

	if c.Budget != nil {
		if err := c.Budget.Wait(ctx); err != nil {
			return zero, fmt.Errorf("graphql: %w", err)
		}
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("graphql: build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")

	hresp, err := c.HTTP.Do(hreq)
	if err != nil {
		return zero, fmt.Errorf("graphql: do request: %w", err)
	}
	defer hresp.Body.Close()

	if hresp.StatusCode < 200 || hresp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(hresp.Body, 512))
		return zero, &HTTPError{StatusCode: hresp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out GraphQLResponse[T]
	if err := json.NewDecoder(hresp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("graphql: decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return zero, fmt.Errorf("graphql: %s", out.Errors[0].Message)
	}
	return out, nil
}
