package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Resolver fetches and deserializes credential bundles, performing the
// indirection hop when a bundle references a password in a second store.
// Credentials are resolved fresh every cycle; nothing is cached, because
// passwords may rotate between invocations.
type Resolver struct {
	opener         Opener
	logger         *zap.Logger
	validate       *validator.Validate
	sinkSecretName string
}

// NewResolver creates a Resolver that opens secondary stores through the
// given Opener. sinkSecretName may be empty to use the default.
func NewResolver(opener Opener, sinkSecretName string, logger *zap.Logger) *Resolver {
	if sinkSecretName == "" {
		sinkSecretName = DefaultSinkSecretName
	}
	return &Resolver{
		opener:         opener,
		logger:         logger,
		validate:       validator.New(),
		sinkSecretName: sinkSecretName,
	}
}

// LoadCurrentSecrets lists every secret currently in the store.
func (r *Resolver) LoadCurrentSecrets(ctx context.Context, store Store) (map[string]string, error) {
	secretsByName, err := store.ListSecrets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list secrets: %v", ErrStoreUnavailable, err)
	}
	r.logger.Debug("secrets listed", zap.Int("count", len(secretsByName)))
	return secretsByName, nil
}

// ParseCredentials selects the credential bundle whose secret name carries
// the given prefix and resolves its password.
//
// When several secrets match, the first in lexicographic listing order is
// chosen. This is a deliberate single-instance assumption, logged loudly
// rather than silently picked.
func (r *Resolver) ParseCredentials(ctx context.Context, secretsByName map[string]string, prefix string) (*CredentialBundle, error) {
	var names []string
	for name := range secretsByName {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no secret with prefix %q", ErrNoCredentials, prefix)
	}
	sort.Strings(names)
	if len(names) > 1 {
		r.logger.Warn("multiple credential bundles match prefix; using first in listing order",
			zap.String("prefix", prefix),
			zap.Strings("candidates", names),
			zap.String("selected", names[0]),
		)
	}

	var bundle CredentialBundle
	if err := json.Unmarshal([]byte(secretsByName[names[0]]), &bundle); err != nil {
		return nil, fmt.Errorf("%w: secret %q: %v", ErrMalformedCredentials, names[0], err)
	}
	if err := r.validate.Struct(&bundle); err != nil {
		return nil, fmt.Errorf("%w: secret %q: %v", ErrMalformedCredentials, names[0], err)
	}

	if bundle.Password() == "" {
		if bundle.PasswordRef == "" {
			return nil, fmt.Errorf("%w: secret %q carries neither a password nor a password reference", ErrMalformedCredentials, names[0])
		}
		password, err := r.fetchIndirect(ctx, bundle.PasswordRef, bundle.PasswordKeyHolderID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndirectFetch, err)
		}
		bundle.Fields[FieldPassword] = password
	}

	return &bundle, nil
}

// fetchIndirect performs the secondary store lookup for a referenced
// password. The second hop may run under a distinct access identity so an
// operator can rotate the password in a store the agent's own identity
// cannot read.
func (r *Resolver) fetchIndirect(ctx context.Context, ref, keyHolderID string) (string, error) {
	host, name, err := ParseSecretURL(ref)
	if err != nil {
		return "", err
	}

	store, err := r.opener(host, keyHolderID)
	if err != nil {
		return "", fmt.Errorf("open secondary store %q: %w", host, err)
	}

	value, err := store.GetSecret(ctx, name)
	if err != nil {
		return "", fmt.Errorf("fetch secret %q from %q: %w", name, host, err)
	}
	if value == "" {
		return "", fmt.Errorf("secret %q from %q is empty", name, host)
	}

	r.logger.Debug("password resolved via secondary store", zap.String("store", host))
	return value, nil
}

// SinkCredentials extracts and validates the log sink credential secret.
// Without it there is nowhere to deliver results, so absence or
// malformation is fatal to the cycle.
func (r *Resolver) SinkCredentials(secretsByName map[string]string) (*SinkCredentials, error) {
	raw, ok := secretsByName[r.sinkSecretName]
	if !ok {
		return nil, fmt.Errorf("%w: secret %q not found", ErrSinkCredentials, r.sinkSecretName)
	}

	var creds SinkCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("%w: secret %q: %v", ErrSinkCredentials, r.sinkSecretName, err)
	}
	if err := r.validate.Struct(&creds); err != nil {
		return nil, fmt.Errorf("%w: secret %q: %v", ErrSinkCredentials, r.sinkSecretName, err)
	}
	return &creds, nil
}
