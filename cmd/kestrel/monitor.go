package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kestrelmon/kestrel/internal/config"
	"github.com/kestrelmon/kestrel/internal/content"
	"github.com/kestrelmon/kestrel/internal/engine"
	"github.com/kestrelmon/kestrel/internal/identity"
	"github.com/kestrelmon/kestrel/internal/provider/netprobe"
	"github.com/kestrelmon/kestrel/internal/provider/sqldb"
	"github.com/kestrelmon/kestrel/internal/secrets"
	"github.com/kestrelmon/kestrel/internal/sink"
	"github.com/kestrelmon/kestrel/internal/state"
	"github.com/kestrelmon/kestrel/internal/telemetry"
	"github.com/kestrelmon/kestrel/internal/version"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run one monitoring cycle",
	Run: func(cmd *cobra.Command, args []string) {
		runMonitor()
	},
}

// runMonitor bootstraps config and logging, runs one cycle, and exits
// with the mapped code. The cycle body returns normally so its deferred
// cleanups run before os.Exit.
func runMonitor() {
	v, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(exitUsage)
	}

	logger, err := config.NewLogger(v, verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(exitUsage)
	}

	exitWith(logger, monitorCycle(v, logger))
}

// monitorCycle executes one full cycle and returns the terminal error,
// if any.
func monitorCycle(v *viper.Viper, logger *zap.Logger) error {
	cycleID := uuid.NewString()
	logger = logger.With(zap.String("cycle_id", cycleID))
	logger.Info("cycle starting", zap.String("version", version.Short()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Identity first; without a MonitorId nothing else can be addressed.
	metaSvc := identity.NewHTTPMetadataService(
		v.GetString("metadata.endpoint"),
		v.GetDuration("metadata.timeout"),
		logger.Named("identity"),
	)
	id, err := identity.Resolve(ctx, metaSvc, "monitor")
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("monitor_id", id.MonitorID))

	opener := secrets.HTTPOpener(v.GetDuration("secrets.timeout"), logger.Named("secrets"))
	storeHost := fmt.Sprintf(v.GetString("secrets.host_pattern"), id.MonitorID)
	store, err := opener(storeHost, id.AccessIdentity())
	if err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrStoreUnavailable, err)
	}
	exists, err := store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrStoreUnavailable, err)
	}
	if !exists {
		return fmt.Errorf("%w: store %q does not exist", secrets.ErrStoreUnavailable, storeHost)
	}

	registry := content.NewRegistry(logger.Named("content"))
	registry.Register(sqldb.Kind, sqldb.New)
	registry.Register(netprobe.Kind, netprobe.New)
	providers, err := registry.LoadDir(v.GetString("content.dir"))
	if err != nil {
		return err
	}

	// Credentials are read fresh every cycle; passwords may have rotated
	// since the previous invocation.
	resolver := secrets.NewResolver(opener, v.GetString("credentials.sink_secret"), logger.Named("secrets"))
	secretsByName, err := resolver.LoadCurrentSecrets(ctx, store)
	if err != nil {
		return err
	}
	bundle, err := resolver.ParseCredentials(ctx, secretsByName, v.GetString("credentials.prefix"))
	if err != nil {
		return err
	}
	sinkCreds, err := resolver.SinkCredentials(secretsByName)
	if err != nil {
		return err
	}

	providers, err = configureProviders(logger, providers, bundle)
	if err != nil {
		return err
	}

	states, err := openStateStore(ctx, v.GetString("state.path"))
	if err != nil {
		return err
	}
	defer states.Close()

	endpoint := fmt.Sprintf(v.GetString("ingest.endpoint_pattern"), sinkCreds.WorkspaceID)
	collector, err := sink.NewCollector(endpoint, sinkCreds.WorkspaceID, sinkCreds.SharedKey,
		v.GetDuration("ingest.timeout"), logger.Named("sink"))
	if err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrSinkCredentials, err)
	}

	var analytics *sink.InfluxSink
	if bundle.AnalyticsEnabled && v.GetString("analytics.url") != "" {
		analytics = sink.NewInfluxSink(sink.InfluxConfig{
			URL:       v.GetString("analytics.url"),
			Token:     v.GetString("analytics.token"),
			Org:       v.GetString("analytics.org"),
			Bucket:    v.GetString("analytics.bucket"),
			RateLimit: v.GetFloat64("analytics.rate_limit"),
			Burst:     v.GetInt("analytics.burst"),
		}, logger.Named("analytics"))
		defer analytics.Close()
	}

	eng := engine.New(engine.Config{
		Logger:    logger.Named("engine"),
		States:    states,
		LogSink:   collector,
		Analytics: analyticsOrNil(analytics),
	})
	sum := eng.RunCycle(ctx, providers, bundle.AnalyticsEnabled)

	logger.Info("cycle complete",
		zap.Int("run", sum.Run),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("ingest_failures", sum.IngestFailures),
		zap.Int("persist_failures", sum.PersistFailures),
	)

	pushCycleMetrics(ctx, v, logger, id.MonitorID, sum)
	return nil
}

// configureProviders hands the credential bundle to the provider whose
// kind it targets. A configuration failure for the targeted kind is
// fatal; other kinds run without credentials.
func configureProviders(logger *zap.Logger, providers []content.Provider, bundle *secrets.CredentialBundle) ([]content.Provider, error) {
	configured := providers[:0]
	for _, p := range providers {
		if p.Kind() == bundle.ProviderKind {
			if err := p.Configure(bundle); err != nil {
				return nil, fmt.Errorf("%w: configure %q: %v", secrets.ErrMalformedCredentials, p.Name(), err)
			}
			configured = append(configured, p)
			continue
		}
		if err := p.Configure(nil); err != nil {
			logger.Warn("provider left unconfigured; skipping its checks",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			continue
		}
		configured = append(configured, p)
	}
	return configured, nil
}

// openStateStore creates the state directory if needed, opens the
// snapshot database, and refuses to run against a newer schema.
func openStateStore(ctx context.Context, path string) (*state.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	states, err := state.Open(path)
	if err != nil {
		return nil, err
	}
	if err := states.CheckVersion(ctx, version.Short()); err != nil {
		states.Close()
		return nil, err
	}
	return states, nil
}

// analyticsOrNil keeps a typed-nil *InfluxSink out of the engine's
// interface field.
func analyticsOrNil(s *sink.InfluxSink) sink.AnalyticsSink {
	if s == nil {
		return nil
	}
	return s
}

// pushCycleMetrics folds the summary into cycle counters and pushes them
// when a gateway is configured. Metric delivery is best effort.
func pushCycleMetrics(ctx context.Context, v *viper.Viper, logger *zap.Logger, monitorID string, sum engine.Summary) {
	cycle := telemetry.NewCycle(
		v.GetString("telemetry.pushgateway_url"),
		v.GetString("telemetry.job"),
		monitorID,
		logger.Named("telemetry"),
	)
	cycle.Observe(sum)
	if err := cycle.Push(ctx); err != nil {
		logger.Warn("metrics push failed", zap.Error(err))
	}
}
