package main

import (
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/kestrelmon/kestrel/internal/content"
	"github.com/kestrelmon/kestrel/internal/identity"
	"github.com/kestrelmon/kestrel/internal/onboard"
	"github.com/kestrelmon/kestrel/internal/secrets"
	"github.com/kestrelmon/kestrel/internal/state"
)

// Process exit codes. Distinct codes let the invoking scheduler tell a
// provisioning problem from a transient one without parsing logs.
const (
	exitOK                   = 0
	exitUsage                = 1
	exitIdentityUnavailable  = 10
	exitStoreUnavailable     = 11
	exitNoCredentials        = 12
	exitMalformedCredentials = 13
	exitIndirectFetch        = 14
	exitSinkCredentials      = 15
	exitNoContent            = 16
	exitValidationFailed     = 17
	exitPermission           = 18
	exitNewerSchema          = 19
)

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, identity.ErrUnavailable):
		return exitIdentityUnavailable
	case errors.Is(err, secrets.ErrStoreUnavailable):
		return exitStoreUnavailable
	case errors.Is(err, secrets.ErrNoCredentials):
		return exitNoCredentials
	case errors.Is(err, secrets.ErrMalformedCredentials):
		return exitMalformedCredentials
	case errors.Is(err, secrets.ErrIndirectFetch):
		return exitIndirectFetch
	case errors.Is(err, secrets.ErrSinkCredentials):
		return exitSinkCredentials
	case errors.Is(err, content.ErrNoContent):
		return exitNoContent
	case errors.Is(err, onboard.ErrValidationFailed):
		return exitValidationFailed
	case errors.Is(err, fs.ErrPermission):
		return exitPermission
	case errors.Is(err, state.ErrNewerSchema):
		return exitNewerSchema
	default:
		return exitUsage
	}
}

// exitWith logs the terminal error, flushes the logger, and exits with
// the mapped code.
func exitWith(logger *zap.Logger, err error) {
	code := exitCodeFor(err)
	if err != nil {
		logger.Error("run aborted", zap.Error(err), zap.Int("exit_code", code))
	}
	_ = logger.Sync()
	os.Exit(code)
}
