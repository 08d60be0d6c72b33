// Package onboard implements the one-shot provisioning flow: it writes
// the credential bundle and sink secret into the monitor's store, then
// proves the round trip by resolving them back and validating a live
// connection to the monitored system.
package onboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelmon/kestrel/internal/content"
	"github.com/kestrelmon/kestrel/internal/secrets"
)

// ErrValidationFailed marks an onboarding run whose secrets were stored
// but could not be proven usable. The secrets are left in place so the
// operator can inspect and correct them.
var ErrValidationFailed = errors.New("onboarding validation failed")

// Params collects everything an onboarding run needs. Exactly one of
// Password and PasswordRef should be set; when PasswordRef is used,
// PasswordKeyHolderID names the access identity for the secondary store.
type Params struct {
	Kind     string
	Driver   string
	Host     string
	Port     string
	Database string
	Username string

	Password            string
	PasswordRef         string
	PasswordKeyHolderID string

	WorkspaceID string
	SharedKey   string

	AnalyticsEnabled bool
	CredentialPrefix string
	SinkSecretName   string
}

// Flow wires the collaborators of one onboarding run.
type Flow struct {
	store    secrets.Store
	resolver *secrets.Resolver
	registry *content.Registry
	logger   *zap.Logger
}

// NewFlow creates a Flow against the monitor's secret store.
func NewFlow(store secrets.Store, resolver *secrets.Resolver, registry *content.Registry, logger *zap.Logger) *Flow {
	return &Flow{store: store, resolver: resolver, registry: registry, logger: logger}
}

// Run stores the secrets and validates them end to end: the bundle is
// read back through the same resolution path the monitor uses, including
// the indirection hop, and the resulting provider must reach its target.
func (f *Flow) Run(ctx context.Context, p Params) error {
	bundle := secrets.CredentialBundle{
		ProviderKind: p.Kind,
		Fields: map[string]string{
			"driver":   p.Driver,
			"host":     p.Host,
			"database": p.Database,
			"username": p.Username,
		},
		PasswordRef:         p.PasswordRef,
		PasswordKeyHolderID: p.PasswordKeyHolderID,
		AnalyticsEnabled:    p.AnalyticsEnabled,
	}
	if p.Port != "" {
		bundle.Fields["port"] = p.Port
	}
	if p.Password != "" {
		bundle.Fields[secrets.FieldPassword] = p.Password
	}

	raw, err := json.Marshal(&bundle)
	if err != nil {
		return fmt.Errorf("serialize credential bundle: %w", err)
	}

	secretName := p.CredentialPrefix + p.Database
	if err := f.store.SetSecret(ctx, secretName, string(raw)); err != nil {
		return fmt.Errorf("store credential bundle %q: %w", secretName, err)
	}
	f.logger.Info("credential bundle stored", zap.String("secret", secretName))

	sinkCreds, err := json.Marshal(&secrets.SinkCredentials{
		WorkspaceID: p.WorkspaceID,
		SharedKey:   p.SharedKey,
	})
	if err != nil {
		return fmt.Errorf("serialize sink credentials: %w", err)
	}
	if err := f.store.SetSecret(ctx, p.SinkSecretName, string(sinkCreds)); err != nil {
		return fmt.Errorf("store sink credentials %q: %w", p.SinkSecretName, err)
	}
	f.logger.Info("sink credentials stored", zap.String("secret", p.SinkSecretName))

	return f.validate(ctx, p)
}

// validate re-resolves the freshly stored secrets exactly as a
// monitoring cycle would, then connects to the monitored system.
func (f *Flow) validate(ctx context.Context, p Params) error {
	secretsByName, err := f.resolver.LoadCurrentSecrets(ctx, f.store)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	bundle, err := f.resolver.ParseCredentials(ctx, secretsByName, p.CredentialPrefix)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if _, err := f.resolver.SinkCredentials(secretsByName); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	provider, err := f.registry.Create(bundle.ProviderKind, &content.Declaration{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := provider.Configure(bundle); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := provider.Validate(ctx); err != nil {
		return fmt.Errorf("%w: connection check: %v", ErrValidationFailed, err)
	}

	f.logger.Info("onboarding validated", zap.String("kind", bundle.ProviderKind))
	return nil
}
