package sentry

import (
	"errors"
	"fmt"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
)

const flushTimeout = 5 * time.Second

// SendBootstrapEvent reports one message to dsn in environment so that Sentry
// creates the environment. Alert rules can only target existing environments.
func SendBootstrapEvent(dsn, environment string) error {
	client, err := sentrygo.NewClient(sentrygo.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Transport:   sentrygo.NewHTTPSyncTransport(),
	})
	if err != nil {
		return fmt.Errorf("bootstrap client: %w", err)
	}
	hub := sentrygo.NewHub(client, sentrygo.NewScope())
	if id := hub.CaptureMessage("Event generated by gitlab2sentry"); id == nil {
		return errors.New("bootstrap event dropped")
	}
	if !client.Flush(flushTimeout) {
		return errors.New("bootstrap event not flushed")
	}
	return nil
}

// Reporter sends our own failures to Sentry. The zero value and a Reporter
// built with an empty DSN are no-ops.
type Reporter struct {
	hub *sentrygo.Hub
}

func NewReporter(dsn, environment, release string) (*Reporter, error) {
	if dsn == "" {
		return &Reporter{}, nil
	}
	client, err := sentrygo.NewClient(sentrygo.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, fmt.Errorf("self-monitoring: %w", err)
	}
	return &Reporter{hub: sentrygo.NewHub(client, sentrygo.NewScope())}, nil
}

func (r *Reporter) Enabled() bool { return r != nil && r.hub != nil }

// Capture reports err tagged with tags (e.g. repo, group).
func (r *Reporter) Capture(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentrygo.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// Flush waits for queued events. Call it before exiting.
func (r *Reporter) Flush() {
	if r.Enabled() {
		r.hub.Flush(flushTimeout)
	}
}
