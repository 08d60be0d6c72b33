package sink

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Compile-time interface guard.
var _ AnalyticsSink = (*InfluxSink)(nil)

// InfluxConfig configures the analytics sink.
type InfluxConfig struct {
	URL       string
	Token     string
	Org       string
	Bucket    string
	RateLimit float64 // records per second; <= 0 uses the default
	Burst     int
}

const (
	defaultAnalyticsRate  = 50.0
	defaultAnalyticsBurst = 10
)

// InfluxSink writes analytics records as InfluxDB points. Emission is
// rate-limited; records over the limit are dropped rather than blocking
// the monitoring cycle, which is acceptable for a fire-and-forget sink.
type InfluxSink struct {
	client  influxdb2.Client
	write   api.WriteAPIBlocking
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewInfluxSink creates the analytics sink.
func NewInfluxSink(cfg InfluxConfig, logger *zap.Logger) *InfluxSink {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultAnalyticsRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultAnalyticsBurst
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:  client,
		write:   client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		logger:  logger,
	}
}

// Emit writes one record as a point in the check_result measurement.
func (s *InfluxSink) Emit(ctx context.Context, rec Record) error {
	if !s.limiter.Allow() {
		s.logger.Debug("analytics record dropped by rate limit", zap.String("type", rec.Type))
		return nil
	}

	fields := make(map[string]any, len(rec.Data))
	for k, v := range rec.Data {
		switch v.(type) {
		case nil:
			continue
		case bool, int, int32, int64, uint, uint32, uint64, float32, float64, string:
			fields[k] = v
		default:
			fields[k] = fmt.Sprint(v)
		}
	}
	if len(fields) == 0 {
		return nil
	}

	point := influxdb2.NewPoint(
		"check_result",
		map[string]string{"type": rec.Type},
		fields,
		rec.EmittedAt,
	)
	return s.write.WritePoint(ctx, point)
}

// Close releases the underlying client resources.
func (s *InfluxSink) Close() {
	s.client.Close()
}
