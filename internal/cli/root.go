package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/numberly/gitlab2sentry/internal/config"
	"github.com/numberly/gitlab2sentry/internal/engine"
	"github.com/numberly/gitlab2sentry/internal/flags"
	"github.com/numberly/gitlab2sentry/internal/gitlab"
	"github.com/numberly/gitlab2sentry/internal/inventory"
	"github.com/numberly/gitlab2sentry/internal/logging"
	"github.com/numberly/gitlab2sentry/internal/output"
	"github.com/numberly/gitlab2sentry/internal/proposal"
	"github.com/numberly/gitlab2sentry/internal/sentry"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// options holds raw flag values. They override the loaded configuration only
// when the flag was set on the command line.
type options struct {
	configPath string

	fullPath string
	include  []string
	exclude  []string
	dryRun   bool

	consoleFormat string
	report        string
	out           string
	outFormat     string
	noConsole     bool

	timeout   time.Duration
	verbose   bool
	logLevel  string
	logFormat string
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "gitlab2sentry",
	Short: "Bring every team repository of a GitLab instance under Sentry monitoring",
	Long: `gitlab2sentry walks the projects of every team group on a GitLab instance and
moves each one step closer to being monitored by Sentry:

  1. no .sentryclirc yet      -> open a merge request adding one
  2. .sentryclirc without dsn -> create the Sentry project and open a merge
                                 request adding its DSN
  3. both present             -> nothing to do (optionally apply [alert.*] rules)

A pending or closed merge request is never reopened. Re-running is always safe.

Configuration:
	Defaults, then the YAML file given by --config (or G2S_CONFIG), then
	environment variables (GITLAB_URL, GITLAB_TOKEN, SENTRY_URL, SENTRY_TOKEN,
	SENTRY_ORG_SLUG, SENTRY_DSN, SENTRY_ENV, ...), then flags.

	The GitLab token falls back to the GitLab CLI (glab config get token) when
	neither the configuration nor GITLAB_TOKEN provides one.

Exit codes:
	0 = clean run
	2 = partial failure (some repositories failed)
	3 = fatal error (nothing was reconciled)

Examples:
	# Reconcile every team repository
	gitlab2sentry --config g2s.yaml

	# Show what would happen without touching GitLab or Sentry
	gitlab2sentry --dry-run --report plan.md

	# Reconcile one project
	gitlab2sentry --full-path team-a/api

	# Stream machine-readable results
	gitlab2sentry --no-console --out results.ndjson`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runReconcile(cmd, &opts))
	},
}

func init() {
	bindGlobalFlags(rootCmd, &opts)
	bindRunFlags(rootCmd, &opts)
}

func bindGlobalFlags(cmd *cobra.Command, o *options) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&o.configPath, flags.FlagConfig, "", "YAML configuration file (default: $G2S_CONFIG)")
	pf.BoolVar(&o.verbose, flags.FlagVerbose, false, "Trace every GitLab and Sentry API call (implies --log-level debug)")
	pf.StringVar(&o.logLevel, flags.FlagLogLevel, "info", "Log level: debug|info|warn|error")
	pf.StringVar(&o.logFormat, flags.FlagLogFormat, "text", "Log format: text|json")
	pf.DurationVar(&o.timeout, flags.FlagTimeout, 2*time.Hour, "Global timeout of the run")
}

func bindRunFlags(cmd *cobra.Command, o *options) {
	f := cmd.Flags()

	// Targeting
	f.StringVar(&o.fullPath, flags.FlagFullPath, "", "Reconcile a single project (group/project) instead of every team repository")
	f.StringSliceVar(&o.include, flags.FlagInclude, nil, "Include pattern(s) (repeatable; comma-separated accepted). Go path.Match style; if pattern contains '/', matches the full path, else the project name")
	f.StringSliceVar(&o.exclude, flags.FlagExclude, nil, "Exclude pattern(s) (repeatable; comma-separated accepted). Same matching rules as --include")
	f.BoolVar(&o.dryRun, flags.FlagDryRun, false, "Compute and report decisions without creating anything")

	// Output
	f.StringVar(&o.consoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson")
	f.StringVar(&o.report, flags.FlagReport, "", "Write a Markdown report to this path")
	f.StringVar(&o.out, flags.FlagOut, "", "Write structured output to this path")
	f.StringVar(&o.outFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	f.BoolVar(&o.noConsole, flags.FlagNoConsole, false, "Suppress console output (use with --out/--report)")
}

// applyFlags copies the flags set on the command line over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, o *options) {
	changed := cmd.Flags().Changed

	if changed(flags.FlagFullPath) {
		cfg.Targeting.FullPath = o.fullPath
	}
	if changed(flags.FlagInclude) {
		cfg.Targeting.Include = o.include
	}
	if changed(flags.FlagExclude) {
		cfg.Targeting.Exclude = o.exclude
	}
	if changed(flags.FlagDryRun) {
		cfg.Runtime.DryRun = o.dryRun
	}

	if changed(flags.FlagConsoleFormat) {
		cfg.Output.ConsoleFormat = o.consoleFormat
	}
	if changed(flags.FlagReport) {
		cfg.Output.Report = o.report
	}
	if changed(flags.FlagOut) {
		cfg.Output.Out = o.out
	}
	if changed(flags.FlagOutFormat) {
		cfg.Output.OutFormat = o.outFormat
	}
	if changed(flags.FlagNoConsole) {
		cfg.Output.NoConsole = o.noConsole
	}

	if changed(flags.FlagTimeout) {
		cfg.Runtime.Timeout = o.timeout
	}
	if changed(flags.FlagVerbose) {
		cfg.Runtime.Verbose = o.verbose
	}
	if changed(flags.FlagLogLevel) {
		cfg.Runtime.LogLevel = o.logLevel
	}
	if changed(flags.FlagLogFormat) {
		cfg.Runtime.LogFormat = o.logFormat
	}
}

// loadConfig layers the configuration file, the environment and the flags,
// resolves the GitLab token and validates the result.
func loadConfig(ctx context.Context, cmd *cobra.Command, o *options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg, o)

	token, _, err := gitlab.ResolveAuthToken(ctx, cfg.GitLab.Token, cfg.GitLab.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve GitLab auth token: %w", err)
	}
	cfg.GitLab.Token = token

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is what every command needs once the configuration is valid.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  string
}

func newSession(ctx context.Context, cmd *cobra.Command, o *options) (*session, error) {
	cfg, err := loadConfig(ctx, cmd, o)
	if err != nil {
		return nil, err
	}
	level := cfg.Runtime.LogLevel
	if cfg.Runtime.Verbose {
		// Traces are logged at debug.
		level = "debug"
	}
	logger, err := logging.Setup(cmd.ErrOrStderr(), level, cfg.Runtime.LogFormat)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	return &session{cfg: cfg, logger: logger.With("run_id", runID), runID: runID}, nil
}

func (s *session) sentryClient() (*sentry.Client, error) {
	return sentry.NewClient(sentry.Config{
		BaseURL: s.cfg.Sentry.URL,
		Token:   s.cfg.Sentry.Token,
		OrgSlug: s.cfg.Sentry.OrgSlug,
		Verbose: s.cfg.Runtime.Verbose,
		Logger:  s.logger,
	})
}

func (s *session) rateLimit() sentry.RateLimit {
	return sentry.RateLimit{Window: s.cfg.Sentry.RateLimitWindow, Count: s.cfg.Sentry.RateLimitCount}
}

func fatal(cmd *cobra.Command, format string, args ...any) int {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: "+format+"\n", args...)
	return engine.ExitFatal
}

func runReconcile(cmd *cobra.Command, o *options) int {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := newSession(ctx, cmd, o)
	if err != nil {
		return fatal(cmd, "%v", err)
	}
	cfg, logger := s.cfg, s.logger

	ctx, cancel := context.WithTimeout(ctx, cfg.Runtime.Timeout)
	defer cancel()

	reporter, err := sentry.NewReporter(cfg.SelfMonitoring.DSN, cfg.SelfMonitoring.Environment, buildVersion)
	if err != nil {
		return fatal(cmd, "%v", err)
	}
	defer reporter.Flush()

	gl, err := gitlab.NewClient(cfg.GitLab.URL, cfg.GitLab.Token,
		gitlab.WithVerbose(cfg.Runtime.Verbose),
		gitlab.WithLogger(logger),
	)
	if err != nil {
		return fatal(cmd, "failed to create GitLab client: %v", err)
	}
	sc, err := s.sentryClient()
	if err != nil {
		return fatal(cmd, "failed to create Sentry client: %v", err)
	}

	out, err := output.NewManagerFor(output.Options{
		ConsoleFormat: cfg.Output.ConsoleFormat,
		NoConsole:     cfg.Output.NoConsole,
		Out:           cfg.Output.Out,
		OutFormat:     cfg.Output.OutFormat,
		Report:        cfg.Output.Report,
	})
	if err != nil {
		return fatal(cmd, "failed to open output: %v", err)
	}

	eng := engine.New(cfg, engine.Deps{
		Inventory:   inventory.New(gl, cfg, logger),
		Provisioner: sentry.NewProvisioner(sc, s.rateLimit(), logger),
		Submitter:   proposal.NewSubmitter(gl, cfg, logger),
		Issues:      gl,
		Rules:       sc,
		Reporter:    reporter,
		Output:      out,
		Logger:      logger,
		RunID:       s.runID,
	})

	var summary engine.Summary
	if cfg.Targeting.FullPath != "" {
		summary = eng.RunSingle(ctx, cfg.Targeting.FullPath)
	} else {
		summary = eng.Run(ctx)
	}

	if err := out.Close(); err != nil {
		logger.Error("failed to close output", "error", err)
	}
	if !cfg.Output.NoConsole && strings.EqualFold(cfg.Output.ConsoleFormat, "text") {
		output.WriteSummary(cmd.ErrOrStderr(), summary.Stats, summary.ExitCode)
	}
	return summary.ExitCode
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(engine.ExitFatal)
	}
}
