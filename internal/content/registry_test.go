package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kestrelmon/kestrel/internal/secrets"
)

// fakeProvider is the minimal Provider used to exercise the registry.
type fakeProvider struct {
	name   string
	checks []Check
}

func (p *fakeProvider) Name() string                                { return p.name }
func (p *fakeProvider) Kind() string                                { return p.name }
func (p *fakeProvider) Checks() []Check                             { return p.checks }
func (p *fakeProvider) Configure(b *secrets.CredentialBundle) error { return nil }
func (p *fakeProvider) Validate(ctx context.Context) error          { return nil }

func fakeFactory(name string, decl *Declaration, logger *zap.Logger) (Provider, error) {
	p := &fakeProvider{name: name}
	for range decl.Checks {
		p.checks = append(p.checks, nil)
	}
	return p, nil
}

func writeDeclaration(t *testing.T, dir, file, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
}

const validDeclaration = `{
	"checks": [
		{
			"name": "A",
			"intervalSeconds": 60,
			"enabled": true,
			"destination": "DestA",
			"timeField": "TS",
			"params": {"query": "SELECT 1"}
		},
		{
			"name": "B",
			"intervalSeconds": 3600,
			"enabled": false,
			"destination": "DestB",
			"timeField": "TS",
			"params": {"query": "SELECT 2"}
		}
	]
}`

func TestLoadDir(t *testing.T) {
	t.Run("loads registered kinds", func(t *testing.T) {
		dir := t.TempDir()
		writeDeclaration(t, dir, "SqlDb.json", validDeclaration)
		writeDeclaration(t, dir, "notes.txt", "ignored")

		r := NewRegistry(zap.NewNop())
		r.Register("SqlDb", fakeFactory)

		providers, err := r.LoadDir(dir)
		if err != nil {
			t.Fatalf("LoadDir: %v", err)
		}
		if len(providers) != 1 {
			t.Fatalf("got %d providers, want 1", len(providers))
		}
		if providers[0].Kind() != "SqlDb" {
			t.Errorf("Kind = %q, want %q", providers[0].Kind(), "SqlDb")
		}
		if len(providers[0].Checks()) != 2 {
			t.Errorf("got %d checks, want 2", len(providers[0].Checks()))
		}
	})

	t.Run("unregistered kind is skipped", func(t *testing.T) {
		dir := t.TempDir()
		writeDeclaration(t, dir, "SqlDb.json", validDeclaration)
		writeDeclaration(t, dir, "Unknown.json", validDeclaration)

		r := NewRegistry(zap.NewNop())
		r.Register("SqlDb", fakeFactory)

		providers, err := r.LoadDir(dir)
		if err != nil {
			t.Fatalf("LoadDir: %v", err)
		}
		if len(providers) != 1 {
			t.Fatalf("got %d providers, want 1", len(providers))
		}
	})

	t.Run("invalid declaration does not block others", func(t *testing.T) {
		dir := t.TempDir()
		writeDeclaration(t, dir, "Bad.json", `{"checks": [{"name": "A"}]}`)
		writeDeclaration(t, dir, "Broken.json", `not json at all`)
		writeDeclaration(t, dir, "SqlDb.json", validDeclaration)

		r := NewRegistry(zap.NewNop())
		r.Register("SqlDb", fakeFactory)
		r.Register("Bad", fakeFactory)
		r.Register("Broken", fakeFactory)

		providers, err := r.LoadDir(dir)
		if err != nil {
			t.Fatalf("LoadDir: %v", err)
		}
		if len(providers) != 1 {
			t.Fatalf("got %d providers, want 1", len(providers))
		}
	})

	t.Run("zero providers is fatal", func(t *testing.T) {
		dir := t.TempDir()
		r := NewRegistry(zap.NewNop())
		r.Register("SqlDb", fakeFactory)

		if _, err := r.LoadDir(dir); !errors.Is(err, ErrNoContent) {
			t.Fatalf("LoadDir error = %v, want ErrNoContent", err)
		}
	})

	t.Run("missing dir is fatal", func(t *testing.T) {
		r := NewRegistry(zap.NewNop())
		if _, err := r.LoadDir("/does/not/exist"); !errors.Is(err, ErrNoContent) {
			t.Fatalf("LoadDir error = %v, want ErrNoContent", err)
		}
	})

	t.Run("interval must be positive", func(t *testing.T) {
		dir := t.TempDir()
		writeDeclaration(t, dir, "SqlDb.json", `{
			"checks": [
				{"name": "A", "intervalSeconds": 0, "destination": "D", "timeField": "TS"}
			]
		}`)

		r := NewRegistry(zap.NewNop())
		r.Register("SqlDb", fakeFactory)

		if _, err := r.LoadDir(dir); !errors.Is(err, ErrNoContent) {
			t.Fatalf("LoadDir error = %v, want ErrNoContent", err)
		}
	})
}

func TestCreate(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register("SqlDb", fakeFactory)

	p, err := r.Create("SqlDb", &Declaration{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Kind() != "SqlDb" {
		t.Errorf("Kind = %q, want %q", p.Kind(), "SqlDb")
	}

	if _, err := r.Create("Nope", &Declaration{}); err == nil {
		t.Fatal("Create of unregistered kind succeeded, want error")
	}
}

func TestCheckSpecInterval(t *testing.T) {
	spec := CheckSpec{IntervalSeconds: 300}
	if got := spec.Interval().Seconds(); got != 300 {
		t.Errorf("Interval() = %vs, want 300s", got)
	}
}
