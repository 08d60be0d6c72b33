// Package sink delivers check results to telemetry backends: a durable
// primary log sink and an optional best-effort analytics sink.
package sink

import (
	"context"
	"time"
)

// LogSink is the durable primary delivery target. Delivery failures are
// ordinary errors; they never corrupt sink state and the caller decides
// how to proceed.
type LogSink interface {
	Ingest(ctx context.Context, destination string, rows []map[string]any, timeField string) error
}

// Record is one individually timestamped analytics item.
type Record struct {
	Type      string
	Data      map[string]any
	EmittedAt time.Time
}

// AnalyticsSink is the optional secondary target with fire-and-forget
// semantics.
type AnalyticsSink interface {
	Emit(ctx context.Context, rec Record) error
}
