package gitlab

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gl "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/oauth2"

	"github.com/numberly/gitlab2sentry/internal/logging"
)

// Client bundles the REST client used for mutations with the raw HTTP client
// used for GraphQL bulk queries. Both share the rate-limit budget and the
// verbose trace.
type Client struct {
	REST    *gl.Client
	HTTP    *http.Client
	BaseURL *url.URL
	Budget  *RequestBudget
	Logger  *slog.Logger
}

type options struct {
	verbose bool
	logger  *slog.Logger
	base    http.RoundTripper
	budget  *RequestBudget
}

type Option func(*options)

// WithVerbose traces every HTTP call at debug level through logger.
func WithVerbose(enabled bool) Option {
	return func(o *options) { o.verbose = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTransport replaces http.DefaultTransport. Tests use it to point at fakes.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

func WithBudget(b *RequestBudget) Option {
	return func(o *options) { o.budget = b }
}

func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.budget == nil {
		o.budget = NewRequestBudget()
	}

	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("gitlab client: invalid base url %q", baseURL)
	}

	transport := o.base
	if transport == nil {
		transport = http.DefaultTransport
	}
	if o.verbose {
		transport = &logging.RoundTripper{Base: transport, Logger: o.logger, Service: "gitlab"}
	}
	transport = &budgetTransport{base: transport, budget: o.budget}

	// client-go sets its own PRIVATE-TOKEN header; GraphQL takes a Bearer token.
	restHTTP := &http.Client{Transport: transport}
	gqlHTTP := &http.Client{Transport: &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   transport,
	}}

	rest, err := gl.NewClient(token,
		gl.WithBaseURL(u.String()),
		gl.WithHTTPClient(restHTTP),
		gl.WithCustomLimiter(o.budget),
		gl.WithoutRetries(),
	)
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}

	return &Client{
		REST:    rest,
		HTTP:    gqlHTTP,
		BaseURL: u,
		Budget:  o.budget,
		Logger:  o.logger,
	}, nil
}

// budgetTransport feeds every response's rate-limit headers back into the budget.
type budgetTransport struct {
	base   http.RoundTripper
	budget *RequestBudget
}

func (t *budgetTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		t.budget.UpdateFromResponse(resp)
	}
	return resp, err
}
