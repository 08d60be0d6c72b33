// Package netprobe implements the ICMP reachability content provider.
// Each check pings one declared target and reports packet statistics.
package netprobe

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"

	"github.com/kestrelmon/kestrel/internal/content"
	"github.com/kestrelmon/kestrel/internal/secrets"
)

// Kind is the provider kind this package registers under.
const Kind = "NetProbe"

const (
	defaultPingCount   = 3
	defaultPingTimeout = 5 * time.Second
)

// Compile-time interface guards.
var (
	_ content.Provider = (*Provider)(nil)
	_ content.Check    = (*pingCheck)(nil)
)

// Provider owns the declared reachability checks.
type Provider struct {
	name   string
	logger *zap.Logger
	checks []content.Check
}

// New is the content.Factory for NetProbe declarations.
func New(name string, decl *content.Declaration, logger *zap.Logger) (content.Provider, error) {
	p := &Provider{name: name, logger: logger}
	for i := range decl.Checks {
		spec := decl.Checks[i]
		target := spec.Params["target"]
		if target == "" {
			return nil, fmt.Errorf("check %q: params.target is required", spec.Name)
		}

		count := defaultPingCount
		if raw := spec.Params["count"]; raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("check %q: invalid params.count %q", spec.Name, raw)
			}
			count = n
		}

		timeout := defaultPingTimeout
		if raw := spec.Params["timeoutSeconds"]; raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("check %q: invalid params.timeoutSeconds %q", spec.Name, raw)
			}
			timeout = time.Duration(n) * time.Second
		}

		p.checks = append(p.checks, &pingCheck{
			spec:    spec,
			target:  target,
			count:   count,
			timeout: timeout,
			logger:  logger,
		})
	}
	return p, nil
}

func (p *Provider) Name() string            { return p.name }
func (p *Provider) Kind() string            { return Kind }
func (p *Provider) Checks() []content.Check { return p.checks }

// Configure is a no-op: reachability probes need no credentials.
func (p *Provider) Configure(bundle *secrets.CredentialBundle) error {
	return nil
}

// Validate probes the first declared target.
func (p *Provider) Validate(ctx context.Context) error {
	if len(p.checks) == 0 {
		return nil
	}
	_, err := p.checks[0].Run(ctx)
	return err
}

// pingCheck pings a single target.
type pingCheck struct {
	spec    content.CheckSpec
	target  string
	count   int
	timeout time.Duration
	logger  *zap.Logger
}

func (c *pingCheck) Name() string            { return c.spec.Name }
func (c *pingCheck) Enabled() bool           { return c.spec.Enabled }
func (c *pingCheck) Interval() time.Duration { return c.spec.Interval() }
func (c *pingCheck) Destination() string     { return c.spec.Destination }
func (c *pingCheck) TimeField() string       { return c.spec.TimeField }

// Run pings the target and reports one row of packet statistics. An
// unreachable target is a result (alive=false), not an execution error.
func (c *pingCheck) Run(ctx context.Context) (*content.Result, error) {
	pinger, err := probing.NewPinger(c.target)
	if err != nil {
		return nil, fmt.Errorf("create pinger for %q: %w", c.target, err)
	}
	pinger.Count = c.count
	pinger.Timeout = c.timeout
	// Windows has no unprivileged ICMP sockets.
	pinger.SetPrivileged(runtime.GOOS == "windows")

	started := time.Now().UTC()
	if err := pinger.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %q: %w", c.target, err)
	}
	stats := pinger.Statistics()

	row := map[string]any{
		"target":           c.target,
		"packets_sent":     stats.PacketsSent,
		"packets_received": stats.PacketsRecv,
		"packet_loss_pct":  stats.PacketLoss,
		"rtt_min_ms":       float64(stats.MinRtt) / float64(time.Millisecond),
		"rtt_avg_ms":       float64(stats.AvgRtt) / float64(time.Millisecond),
		"rtt_max_ms":       float64(stats.MaxRtt) / float64(time.Millisecond),
		"alive":            stats.PacketsRecv > 0,
		c.spec.TimeField:   started.Format(time.RFC3339Nano),
	}

	c.logger.Debug("probe completed",
		zap.String("target", c.target),
		zap.Int("received", stats.PacketsRecv),
	)
	return &content.Result{TimeField: c.spec.TimeField, Rows: []map[string]any{row}}, nil
}
