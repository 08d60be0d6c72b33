// Package content defines the monitoring content contracts: providers,
// the checks they own, and the declaration files that describe them.
package content

import (
	"context"
	"errors"
	"time"

	"github.com/kestrelmon/kestrel/internal/secrets"
)

// ErrNoContent is returned when not a single provider could be loaded;
// with no content there is nothing to monitor, so the cycle cannot run.
var ErrNoContent = errors.New("no content providers loaded")

// Result is the transient outcome of one check run. Rows are JSON-ready
// records; TimeField names the field carrying each row's generation time.
type Result struct {
	TimeField string
	Rows      []map[string]any
}

// Check is a single scheduled task owned by a provider. Checks are
// stateless; the engine owns the last-run bookkeeping.
type Check interface {
	Name() string
	Enabled() bool
	Interval() time.Duration
	Destination() string
	TimeField() string
	Run(ctx context.Context) (*Result, error)
}

// Provider groups the checks for one monitored technology. Checks keep
// their declaration order; some have implicit dependencies on shared
// setup, so the order is a contract.
type Provider interface {
	Name() string
	Kind() string
	Checks() []Check

	// Configure hands the provider the resolved credential bundle for
	// the cycle. Providers that need no credentials ignore it.
	Configure(bundle *secrets.CredentialBundle) error

	// Validate probes connectivity to the monitored system. Used by the
	// onboarding flow before monitoring begins.
	Validate(ctx context.Context) error
}

// CheckSpec is the declaration of one check inside a content file.
type CheckSpec struct {
	Name            string            `json:"name" validate:"required"`
	IntervalSeconds int               `json:"intervalSeconds" validate:"required,gt=0"`
	Enabled         bool              `json:"enabled"`
	Destination     string            `json:"destination" validate:"required"`
	TimeField       string            `json:"timeField" validate:"required"`
	Params          map[string]string `json:"params"`
}

// Interval returns the declared run interval.
func (s *CheckSpec) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Declaration is the schema of a content file. The file name determines
// the provider kind; the body declares its checks in execution order.
type Declaration struct {
	Checks []CheckSpec `json:"checks" validate:"required,min=1,dive"`
}
