package secrets

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	secrets map[string]string
	listErr error
	getErr  error

	gets int
}

func (f *fakeStore) Exists(ctx context.Context) (bool, error) { return true, nil }

func (f *fakeStore) ListSecrets(ctx context.Context) (map[string]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.secrets, nil
}

func (f *fakeStore) GetSecret(ctx context.Context, name string) (string, error) {
	f.gets++
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.secrets[name], nil
}

func (f *fakeStore) SetSecret(ctx context.Context, name, value string) error {
	f.secrets[name] = value
	return nil
}

// fakeOpener returns the given secondary store and records each open.
type fakeOpener struct {
	store *fakeStore
	err   error

	opens     int
	gotHost   string
	gotAccess string
}

func (f *fakeOpener) open(host, accessIdentity string) (Store, error) {
	f.opens++
	f.gotHost = host
	f.gotAccess = accessIdentity
	if f.err != nil {
		return nil, f.err
	}
	return f.store, nil
}

func newTestResolver(opener Opener) *Resolver {
	return NewResolver(opener, "", zap.NewNop())
}

const directBundle = `{
	"providerKind": "SqlDb",
	"fields": {
		"driver": "mssql",
		"host": "db.internal",
		"database": "prod",
		"username": "monitor",
		"password": "hunter2"
	},
	"analyticsEnabled": true
}`

const indirectBundle = `{
	"providerKind": "SqlDb",
	"fields": {
		"driver": "mssql",
		"host": "db.internal",
		"database": "prod",
		"username": "monitor"
	},
	"passwordRef": "https://kestrel-other.secrets.internal/secrets/DbPassword",
	"passwordKeyHolderId": "acc-other"
}`

func TestParseCredentials_DirectPassword(t *testing.T) {
	opener := &fakeOpener{}
	r := newTestResolver(opener.open)

	bundle, err := r.ParseCredentials(context.Background(),
		map[string]string{"SqlDb-prod": directBundle}, "SqlDb-")
	if err != nil {
		t.Fatalf("ParseCredentials: %v", err)
	}
	if bundle.Password() != "hunter2" {
		t.Errorf("Password() = %q, want %q", bundle.Password(), "hunter2")
	}
	if !bundle.AnalyticsEnabled {
		t.Error("AnalyticsEnabled = false, want true")
	}
	// A direct password must not trigger the indirection hop.
	if opener.opens != 0 {
		t.Errorf("opener called %d times, want 0", opener.opens)
	}
}

func TestParseCredentials_IndirectPassword(t *testing.T) {
	secondary := &fakeStore{secrets: map[string]string{"DbPassword": "rotated-pw"}}
	opener := &fakeOpener{store: secondary}
	r := newTestResolver(opener.open)

	bundle, err := r.ParseCredentials(context.Background(),
		map[string]string{"SqlDb-prod": indirectBundle}, "SqlDb-")
	if err != nil {
		t.Fatalf("ParseCredentials: %v", err)
	}
	if bundle.Password() != "rotated-pw" {
		t.Errorf("Password() = %q, want %q", bundle.Password(), "rotated-pw")
	}
	if opener.opens != 1 {
		t.Errorf("opener called %d times, want exactly 1", opener.opens)
	}
	if opener.gotHost != "kestrel-other.secrets.internal" {
		t.Errorf("secondary host = %q", opener.gotHost)
	}
	if opener.gotAccess != "acc-other" {
		t.Errorf("secondary access identity = %q, want %q", opener.gotAccess, "acc-other")
	}
	if secondary.gets != 1 {
		t.Errorf("secondary GetSecret called %d times, want exactly 1", secondary.gets)
	}
}

func TestParseCredentials_Errors(t *testing.T) {
	tests := []struct {
		name    string
		secrets map[string]string
		opener  *fakeOpener
		wantErr error
	}{
		{
			name:    "no matching prefix",
			secrets: map[string]string{"Other-thing": directBundle},
			opener:  &fakeOpener{},
			wantErr: ErrNoCredentials,
		},
		{
			name:    "invalid json",
			secrets: map[string]string{"SqlDb-prod": "not json"},
			opener:  &fakeOpener{},
			wantErr: ErrMalformedCredentials,
		},
		{
			name:    "missing provider kind",
			secrets: map[string]string{"SqlDb-prod": `{"fields":{"password":"x"}}`},
			opener:  &fakeOpener{},
			wantErr: ErrMalformedCredentials,
		},
		{
			name: "neither password nor reference",
			secrets: map[string]string{
				"SqlDb-prod": `{"providerKind":"SqlDb","fields":{"username":"monitor"}}`,
			},
			opener:  &fakeOpener{},
			wantErr: ErrMalformedCredentials,
		},
		{
			name:    "secondary store unreachable",
			secrets: map[string]string{"SqlDb-prod": indirectBundle},
			opener:  &fakeOpener{err: errors.New("dial tcp: timeout")},
			wantErr: ErrIndirectFetch,
		},
		{
			name:    "referenced secret empty",
			secrets: map[string]string{"SqlDb-prod": indirectBundle},
			opener:  &fakeOpener{store: &fakeStore{secrets: map[string]string{}}},
			wantErr: ErrIndirectFetch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(tt.opener.open)
			_, err := r.ParseCredentials(context.Background(), tt.secrets, "SqlDb-")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseCredentials error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseCredentials_MultipleMatchesPicksFirst(t *testing.T) {
	// Two bundles match the prefix; the lexicographically first name wins
	// regardless of map iteration order.
	secrets := map[string]string{
		"SqlDb-staging": `{"providerKind":"SqlDb","fields":{"password":"staging-pw"}}`,
		"SqlDb-prod":    `{"providerKind":"SqlDb","fields":{"password":"prod-pw"}}`,
	}
	r := newTestResolver((&fakeOpener{}).open)

	for i := 0; i < 20; i++ {
		bundle, err := r.ParseCredentials(context.Background(), secrets, "SqlDb-")
		if err != nil {
			t.Fatalf("ParseCredentials: %v", err)
		}
		if bundle.Password() != "prod-pw" {
			t.Fatalf("Password() = %q, want %q (SqlDb-prod sorts first)", bundle.Password(), "prod-pw")
		}
	}
}

func TestLoadCurrentSecrets(t *testing.T) {
	r := newTestResolver((&fakeOpener{}).open)

	t.Run("lists all secrets", func(t *testing.T) {
		store := &fakeStore{secrets: map[string]string{"a": "1", "b": "2"}}
		got, err := r.LoadCurrentSecrets(context.Background(), store)
		if err != nil {
			t.Fatalf("LoadCurrentSecrets: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d secrets, want 2", len(got))
		}
	})

	t.Run("store failure", func(t *testing.T) {
		store := &fakeStore{listErr: errors.New("503")}
		if _, err := r.LoadCurrentSecrets(context.Background(), store); !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("error = %v, want ErrStoreUnavailable", err)
		}
	})
}

func TestSinkCredentials(t *testing.T) {
	r := newTestResolver((&fakeOpener{}).open)

	t.Run("valid", func(t *testing.T) {
		creds, err := r.SinkCredentials(map[string]string{
			"LogIngestion": `{"workspaceId":"ws-1","sharedKey":"a2V5"}`,
		})
		if err != nil {
			t.Fatalf("SinkCredentials: %v", err)
		}
		if creds.WorkspaceID != "ws-1" {
			t.Errorf("WorkspaceID = %q, want %q", creds.WorkspaceID, "ws-1")
		}
		if creds.SharedKey != "a2V5" {
			t.Errorf("SharedKey = %q, want %q", creds.SharedKey, "a2V5")
		}
	})

	t.Run("missing secret", func(t *testing.T) {
		if _, err := r.SinkCredentials(map[string]string{}); !errors.Is(err, ErrSinkCredentials) {
			t.Fatalf("error = %v, want ErrSinkCredentials", err)
		}
	})

	t.Run("missing workspace id", func(t *testing.T) {
		_, err := r.SinkCredentials(map[string]string{
			"LogIngestion": `{"sharedKey":"a2V5"}`,
		})
		if !errors.Is(err, ErrSinkCredentials) {
			t.Fatalf("error = %v, want ErrSinkCredentials", err)
		}
	})

	t.Run("custom secret name", func(t *testing.T) {
		custom := NewResolver((&fakeOpener{}).open, "Ingest", zap.NewNop())
		if _, err := custom.SinkCredentials(map[string]string{
			"Ingest": `{"workspaceId":"ws-1","sharedKey":"a2V5"}`,
		}); err != nil {
			t.Fatalf("SinkCredentials: %v", err)
		}
	})
}
