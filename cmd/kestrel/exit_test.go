package main

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/kestrelmon/kestrel/internal/content"
	"github.com/kestrelmon/kestrel/internal/identity"
	"github.com/kestrelmon/kestrel/internal/onboard"
	"github.com/kestrelmon/kestrel/internal/secrets"
	"github.com/kestrelmon/kestrel/internal/state"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"identity", identity.ErrUnavailable, exitIdentityUnavailable},
		{"store unavailable", secrets.ErrStoreUnavailable, exitStoreUnavailable},
		{"no credentials", secrets.ErrNoCredentials, exitNoCredentials},
		{"malformed credentials", secrets.ErrMalformedCredentials, exitMalformedCredentials},
		{"indirect fetch", secrets.ErrIndirectFetch, exitIndirectFetch},
		{"sink credentials", secrets.ErrSinkCredentials, exitSinkCredentials},
		{"no content", content.ErrNoContent, exitNoContent},
		{"validation failed", onboard.ErrValidationFailed, exitValidationFailed},
		{"permission", fs.ErrPermission, exitPermission},
		{"newer schema", state.ErrNewerSchema, exitNewerSchema},
		{"unknown", errors.New("something else"), exitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitCodeFor_WrappedErrors(t *testing.T) {
	// Codes must survive %w wrapping through the call stack.
	err := fmt.Errorf("cycle aborted: %w", fmt.Errorf("%w: list secrets: 503", secrets.ErrStoreUnavailable))
	if got := exitCodeFor(err); got != exitStoreUnavailable {
		t.Errorf("exitCodeFor(wrapped) = %d, want %d", got, exitStoreUnavailable)
	}
}
