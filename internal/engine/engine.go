// Package engine runs one monitoring cycle: it filters each provider's
// checks by eligibility and due-ness, executes the due ones, ships
// results to the sinks, and persists schedule state as it goes.
//
// Failure isolation is the core invariant: an error in one check's
// execution, ingestion, or persistence never prevents later checks from
// running, in the same provider or across providers.
package engine

import (
	"context"
	"time"

	"github.com/kestrelmon/kestrel/internal/content"
	"github.com/kestrelmon/kestrel/internal/sink"
	"github.com/kestrelmon/kestrel/internal/state"
	"go.uber.org/zap"
)

// Summary counts what happened during one cycle. Per-check failures are
// visible here and in logs; they do not fail the cycle itself.
type Summary struct {
	Run             int
	Skipped         int
	Failed          int
	IngestFailures  int
	PersistFailures int
}

// Config assembles an Engine's collaborators. Analytics may be nil when
// the secondary sink is not configured.
type Config struct {
	Logger    *zap.Logger
	States    *state.Store
	LogSink   sink.LogSink
	Analytics sink.AnalyticsSink
	Now       func() time.Time
}

// Engine executes monitoring cycles. One Engine serves one process
// invocation; it holds no state between cycles beyond what States
// persists.
type Engine struct {
	logger    *zap.Logger
	states    *state.Store
	logSink   sink.LogSink
	analytics sink.AnalyticsSink
	now       func() time.Time
}

// New creates an Engine from cfg.
func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		logger:    cfg.Logger,
		states:    cfg.States,
		logSink:   cfg.LogSink,
		analytics: cfg.Analytics,
		now:       now,
	}
}

// RunCycle performs one sequential pass over all providers and their
// checks in declaration order. analyticsEnabled mirrors the credential
// bundle's flag; when false the secondary sink is not touched.
func (e *Engine) RunCycle(ctx context.Context, providers []content.Provider, analyticsEnabled bool) Summary {
	var sum Summary
	for _, provider := range providers {
		e.runProvider(ctx, provider, analyticsEnabled, &sum)
	}
	return sum
}

func (e *Engine) runProvider(ctx context.Context, provider content.Provider, analyticsEnabled bool, sum *Summary) {
	plog := e.logger.With(zap.String("provider", provider.Name()))

	st, err := e.states.Load(ctx, provider.Name())
	if err != nil {
		// An unreadable snapshot makes every check due again; check
		// reads must be idempotent anyway, so re-running is safe.
		plog.Warn("could not load schedule state; treating all checks as due", zap.Error(err))
		st = state.NewProviderState()
	}

	for _, check := range provider.Checks() {
		clog := plog.With(zap.String("check", check.Name()))

		if !check.Enabled() {
			clog.Debug("check disabled; skipping")
			sum.Skipped++
			continue
		}

		lastRun := st.Checks[check.Name()]
		if !Due(lastRun, check.Interval(), e.now()) {
			clog.Debug("check not due; skipping",
				zap.Time("last_run", lastRun),
				zap.Duration("interval", check.Interval()),
			)
			sum.Skipped++
			continue
		}

		clog.Info("running check")
		result, err := check.Run(ctx)
		if err != nil {
			// The schedule does not advance, so the check stays due and
			// is retried on the next cycle.
			clog.Error("check execution failed", zap.Error(err))
			sum.Failed++
			continue
		}
		completed := e.now().UTC()

		// Advance on produce: the schedule moves forward once the check
		// produced a result, regardless of delivery outcome.
		st.Checks[check.Name()] = completed
		sum.Run++

		if err := e.logSink.Ingest(ctx, check.Destination(), result.Rows, result.TimeField); err != nil {
			clog.Error("ingestion failed", zap.Error(err))
			sum.IngestFailures++
		}

		// Persist after every check, not at end of cycle, so a crash
		// loses at most the in-flight check's progress.
		if err := e.states.Save(ctx, provider.Name(), st); err != nil {
			clog.Error("state persistence failed", zap.Error(err))
			sum.PersistFailures++
		}

		if analyticsEnabled && e.analytics != nil {
			e.emitAnalytics(ctx, clog, check, result, completed)
		}
	}
}

// emitAnalytics re-serializes each result row as an individually
// timestamped record. Best-effort: failures are logged at debug and never
// affect the cycle.
func (e *Engine) emitAnalytics(ctx context.Context, clog *zap.Logger, check content.Check, result *content.Result, completed time.Time) {
	for _, row := range result.Rows {
		rec := sink.Record{
			Type:      check.Destination(),
			Data:      row,
			EmittedAt: completed,
		}
		if err := e.analytics.Emit(ctx, rec); err != nil {
			clog.Debug("analytics emit failed", zap.Error(err))
		}
	}
}
