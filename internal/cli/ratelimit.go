package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/numberly/gitlab2sentry/internal/engine"
	"github.com/numberly/gitlab2sentry/internal/sentry"
)

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Apply the configured rate limit to every client key of the Sentry organization",
	Long: `Apply sentry.rate_limit_count events per sentry.rate_limit_window seconds to
every client key of every project of the Sentry organization.

New keys are rate limited when gitlab2sentry creates them; this command brings
keys created before that, or by hand, in line.

Exit codes:
	0 = every key updated
	2 = some keys could not be updated
	3 = fatal error`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runRateLimit(cmd, &opts))
	},
}

func init() {
	rootCmd.AddCommand(rateLimitCmd)
}

func runRateLimit(cmd *cobra.Command, o *options) int {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := newSession(ctx, cmd, o)
	if err != nil {
		return fatal(cmd, "%v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Runtime.Timeout)
	defer cancel()

	sc, err := s.sentryClient()
	if err != nil {
		return fatal(cmd, "failed to create Sentry client: %v", err)
	}

	limit := s.rateLimit()
	s.logger.Info("rate limiting keys", "window", limit.Window, "count", limit.Count)
	report, err := sentry.NewProvisioner(sc, limit, s.logger).RateLimitAll(ctx)
	if err != nil {
		s.logger.Error("rate limiting stopped", "error", err)
		return engine.ExitFatal
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d projects, %d keys rate limited, %d failures\n", report.Projects, report.Keys, report.Failed)
	if report.Failed > 0 {
		return engine.ExitPartial
	}
	return engine.ExitOK
}
