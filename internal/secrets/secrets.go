// Package secrets fetches and resolves credential material from the
// secret store, including the indirection hop: a credential bundle may
// reference a password held in a second, differently-scoped store instead
// of carrying it inline.
package secrets

import (
	"context"
	"errors"
)

// Sentinel errors; the CLI maps each to a distinct exit code.
var (
	ErrStoreUnavailable     = errors.New("secret store unavailable")
	ErrNoCredentials        = errors.New("no credential bundle found")
	ErrMalformedCredentials = errors.New("malformed credential bundle")
	ErrIndirectFetch        = errors.New("indirect credential fetch failed")
	ErrSinkCredentials      = errors.New("log sink credentials unavailable")
)

// DefaultSinkSecretName is the fixed secret holding the log sink credentials.
const DefaultSinkSecretName = "LogIngestion"

// FieldPassword is the credential bundle field carrying the literal password.
const FieldPassword = "password"

// Store is the external secret-store collaborator. Implementations must be
// constructible against an alternate host and access identity so the
// indirection hop can reuse the same code path.
type Store interface {
	Exists(ctx context.Context) (bool, error)
	ListSecrets(ctx context.Context) (map[string]string, error)
	GetSecret(ctx context.Context, name string) (string, error)
	SetSecret(ctx context.Context, name, value string) error
}

// Opener constructs a Store for the given host, optionally under a
// distinct access identity. The primary store and the indirection hop are
// structurally identical: both go through an Opener.
type Opener func(host, accessIdentity string) (Store, error)

// CredentialBundle is the schema of a provider credential secret. Either
// Fields["password"] is populated directly, or PasswordRef names a secret
// in a second store; never both empty.
type CredentialBundle struct {
	ProviderKind        string            `json:"providerKind" validate:"required"`
	Fields              map[string]string `json:"fields" validate:"required"`
	PasswordRef         string            `json:"passwordRef,omitempty"`
	PasswordKeyHolderID string            `json:"passwordKeyHolderId,omitempty"`
	AnalyticsEnabled    bool              `json:"analyticsEnabled"`
}

// Password returns the resolved literal password field.
func (b *CredentialBundle) Password() string {
	return b.Fields[FieldPassword]
}

// SinkCredentials identifies the workspace the primary log sink writes to.
type SinkCredentials struct {
	WorkspaceID string `json:"workspaceId" validate:"required"`
	SharedKey   string `json:"sharedKey" validate:"required"`
}
