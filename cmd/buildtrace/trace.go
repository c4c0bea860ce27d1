package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/buildtrace/buildtrace/config"
	"github.com/buildtrace/buildtrace/pkg/buildtrace"
	"github.com/buildtrace/buildtrace/pkg/github"
	"github.com/buildtrace/buildtrace/pkg/logger"
	"github.com/buildtrace/buildtrace/pkg/metrics"
	"github.com/buildtrace/buildtrace/pkg/storage"
	"github.com/buildtrace/buildtrace/pkg/storage/badger"
	"github.com/buildtrace/buildtrace/pkg/storage/memory"
	rediscache "github.com/buildtrace/buildtrace/pkg/storage/redis"
	"github.com/buildtrace/buildtrace/pkg/telemetry/otelsink"
	"github.com/buildtrace/buildtrace/pkg/telemetry/tracing"
	"github.com/buildtrace/buildtrace/pkg/version"
)

const (
	tracerName      = "github.com/buildtrace/buildtrace"
	shutdownTimeout = 30 * time.Second
	traceparentEnv  = "TRACEPARENT"
)

var errNoRunID = errors.New("no run to trace: set GITHUB_RUN_ID, --run-id or --preceding-run-ids")

type traceOptions struct {
	configPath      string
	logLevel        string
	debug           bool
	runID           string
	precedingRunIDs string
	fromFile        string
	saveDir         string
	exporter        string
	endpoint        string
	rootName        string
	dryRun          bool
}

func newTraceCmd(opts *traceOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trace",
		Short: "Reconstruct and export the build trace",
		Long: `Fetch the jobs of every run, rebuild the workflow/job/step timing tree and
export it as spans. The trace_id, span_id, traceparent and uber_trace_id of
the root span are written as step outputs when GITHUB_OUTPUT is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), cmd.OutOrStdout(), *opts)
		},
	}
}

func buildOverrides(opts traceOptions) map[string]interface{} {
	overrides := make(map[string]interface{})

	if opts.logLevel != "" {
		overrides["log.level"] = opts.logLevel
	}
	if opts.debug {
		overrides["app.debug"] = true
	}
	if opts.runID != "" {
		overrides["github.run_id"] = opts.runID
	}
	if opts.precedingRunIDs != "" {
		overrides["github.preceding_run_ids"] = opts.precedingRunIDs
	}
	if opts.fromFile != "" {
		overrides["github.from_file"] = opts.fromFile
	}
	if opts.saveDir != "" {
		overrides["github.save_dir"] = opts.saveDir
	}
	if opts.exporter != "" {
		overrides["tracing.exporter"] = opts.exporter
	}
	if opts.endpoint != "" {
		overrides["tracing.endpoint"] = opts.endpoint
	}
	if opts.rootName != "" {
		overrides["tracing.root_span_name"] = opts.rootName
	}
	if opts.dryRun {
		overrides["tracing.enabled"] = false
	}

	return overrides
}

func runTrace(ctx context.Context, out io.Writer, opts traceOptions) error {
	cfg, err := config.Load(opts.configPath, buildOverrides(opts))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	settings, err := github.LoadSettings()
	if err != nil {
		return err
	}

	log := newLogger(cfg, settings)
	logger.SetGlobal(log)
	defer log.Close()

	log.Info("Starting buildtrace",
		"version", version.Version,
		"gitCommit", version.GitCommit,
		"repository", settings.Repository,
		"exporter", cfg.Tracing.Exporter,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	provider, err := tracing.Init(ctx, cfg.Tracing, buildInfo(cfg, settings))
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	flushed := false
	defer func() {
		if !flushed {
			shutdownProvider(log, provider)
		}
	}()

	metricsManager := metrics.NewManager(metrics.Config{
		Enabled:        cfg.Metrics.Enabled,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		Job:            cfg.Metrics.Job,
		Grouping:       map[string]string{"repository": settings.Repository},
	})

	src, closeSource, err := newSource(ctx, cfg, settings, log, metricsManager)
	if err != nil {
		return err
	}
	defer closeSource()

	parent := ctx
	if tp := os.Getenv(traceparentEnv); tp != "" {
		parent = provider.Extract(ctx, map[string]string{"traceparent": tp})
		log.Debug("Using remote parent", "traceparent", tp)
	}

	sink := otelsink.New(provider.Tracer(tracerName, trace.WithInstrumentationVersion(version.Version)))
	tr, err := buildtrace.BuildAndEmit(parent, src, sink,
		buildtrace.WithRootName(cfg.Tracing.RootSpanName),
		buildtrace.WithLogger(log),
		buildtrace.WithMetrics(metricsManager),
	)
	if err != nil {
		return fmt.Errorf("failed to reconstruct build trace: %w", err)
	}

	if opts.dryRun {
		printTree(out, tr.Result.Root, 0)
	}

	reportTrace(log, cfg, settings, tr)

	shutdownProvider(log, provider)
	flushed = true

	publishMetrics(ctx, log, cfg, metricsManager)
	return nil
}

func newLogger(cfg *config.Config, settings *github.Settings) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.FormatFor(settings.InActions()),
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	return logger.New(logCfg)
}

func buildInfo(cfg *config.Config, settings *github.Settings) tracing.BuildInfo {
	return tracing.BuildInfo{
		ServiceName:    cfg.App.Name,
		ServiceVersion: version.Version,
		Environment:    cfg.App.Environment,
		Repository:     settings.Repository,
		Actor:          settings.Actor,
		SHA:            settings.SHA,
		WorkflowURL:    settings.RunURL(),
	}
}

// newSource returns the configured run source and a func releasing it.
// Runs fetched from GitHub go through the run cache; the saver, when
// configured, wraps whichever source is in use.
func newSource(ctx context.Context, cfg *config.Config, settings *github.Settings, log logger.Logger, recorder storage.LookupRecorder) (buildtrace.Source, func(), error) {
	var (
		src     buildtrace.Source
		release = func() {}
	)

	if cfg.GitHub.FromFile != "" {
		fileSource, err := github.NewFileSource(splitList(cfg.GitHub.FromFile)...)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Replaying stored runs", "runs", fileSource.RunIDs())
		src = fileSource
	} else {
		ghSource, err := newGitHubSource(cfg, settings, log)
		if err != nil {
			return nil, nil, err
		}
		src = ghSource

		cache, err := openCache(ctx, cfg.Cache)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open run cache: %w", err)
		}
		if cache != nil {
			log.Info("Run cache enabled", "type", cfg.Cache.Type)
			release = func() {
				if err := cache.Close(); err != nil {
					log.Error("Error closing run cache", "error", err)
				}
			}
			src = storage.NewCachedSource(ghSource, cache,
				storage.WithLogger(log),
				storage.WithLookupRecorder(recorder),
			)
		}
	}

	if cfg.GitHub.SaveDir != "" {
		log.Info("Saving fetched runs", "dir", cfg.GitHub.SaveDir)
		src = github.NewSavingSource(src, cfg.GitHub.SaveDir, log)
	}
	return src, release, nil
}

func newGitHubSource(cfg *config.Config, settings *github.Settings, log logger.Logger) (*github.Source, error) {
	runID := cfg.GitHub.RunID
	if runID == "" {
		runID = settings.RunID
	}
	ids := cfg.GitHub.RunIDs(runID)
	if len(ids) == 0 {
		return nil, errNoRunID
	}
	if settings.Repository == "" {
		return nil, errors.New("GITHUB_REPOSITORY is not set")
	}

	apiURL := cfg.GitHub.APIURL
	if apiURL == "" {
		apiURL = settings.APIURL
	}
	client := github.NewClient(github.ClientConfig{
		BaseURL:    apiURL,
		Repository: settings.Repository,
		Token:      cfg.GitHub.Token,
		PerPage:    cfg.GitHub.PerPage,
		Filter:     cfg.GitHub.JobFilter,
		Timeout:    cfg.GitHub.Timeout,
		RetryMax:   cfg.GitHub.RetryMax,
		RateLimit:  cfg.GitHub.RateLimit,
		Logger:     log,
	})
	log.Info("Fetching runs", "repository", settings.Repository, "runs", ids)
	return github.NewSource(client, ids), nil
}

// openCache returns nil when caching is disabled.
func openCache(ctx context.Context, cfg config.CacheConfig) (storage.RunCache, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewMemoryStorage(), nil
	case "badger":
		return badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
	case "redis":
		return rediscache.Open(ctx, &goredis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, rediscache.Config{
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
	default:
		return nil, nil
	}
}

// reportTrace writes the root span identifiers as step outputs and logs
// where the trace can be found.
func reportTrace(log logger.Logger, cfg *config.Config, settings *github.Settings, tr *buildtrace.Trace) {
	span, ok := otelsink.SpanOf(tr.Handle())
	if !ok || !span.SpanContext().IsValid() {
		log.Info("Trace reconstructed without export", "spans", tr.Result.Root.Count())
		return
	}
	sc := span.SpanContext()
	traceID := sc.TraceID().String()

	outputs := []struct{ name, value string }{
		{"trace_id", traceID},
		{"span_id", sc.SpanID().String()},
		{"traceparent", otelsink.Traceparent(span)},
		{"uber_trace_id", otelsink.UberTraceID(span)},
	}
	for _, o := range outputs {
		if err := settings.SetOutput(o.name, o.value); err != nil {
			if errors.Is(err, github.ErrNoOutputFile) {
				log.Debug("GITHUB_OUTPUT not set, skipping step outputs")
				break
			}
			log.Warn("Failed to write step output", "name", o.name, "error", err)
		}
	}

	log.Info("Trace emitted", "trace_id", traceID, "spans", tr.Result.Root.Count())
	if cfg.Tracing.GrafanaURL != "" {
		log.Info("View trace in Grafana", "url", otelsink.ExploreURL(cfg.Tracing.GrafanaURL, traceID))
	}
}

// shutdownProvider flushes pending spans so the trace is complete once the
// command returns.
func shutdownProvider(log logger.Logger, provider *tracing.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracer provider", "error", err)
	}
}

func publishMetrics(ctx context.Context, log logger.Logger, cfg *config.Config, m *metrics.Manager) {
	if !m.Enabled() {
		return
	}
	if err := m.Push(ctx); err != nil {
		log.Warn("Failed to push metrics", "error", err)
	}
	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log.Warn("Failed to write metrics textfile", "error", err)
	}
}

func printTree(w io.Writer, node *buildtrace.SpanNode, depth int) {
	status := ""
	if node.Failed() {
		status = " [" + node.FailureReason() + "]"
	}
	fmt.Fprintf(w, "%s%s %q %s -> %s%s\n",
		strings.Repeat("  ", depth), node.Kind, node.Name, node.Start, node.End, status)
	for _, child := range node.Children {
		printTree(w, child, depth+1)
	}
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
