package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Factory constructs a provider from its parsed declaration.
type Factory func(name string, decl *Declaration, logger *zap.Logger) (Provider, error)

// Registry maps provider kinds to factories. The set of kinds is closed
// and populated explicitly at startup; a declaration file can only ever
// instantiate a registered kind, never an arbitrary name.
type Registry struct {
	logger    *zap.Logger
	validate  *validator.Validate
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:    logger,
		validate:  validator.New(),
		factories: make(map[string]Factory),
	}
}

// Register adds a provider factory for a kind. Later registrations of the
// same kind replace earlier ones.
func (r *Registry) Register(kind string, factory Factory) {
	r.factories[kind] = factory
}

// Create instantiates a provider of the given kind directly, bypassing
// declaration files. Used by the onboarding flow for connectivity
// validation.
func (r *Registry) Create(kind string, decl *Declaration) (Provider, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("no provider registered for kind %q", kind)
	}
	return factory(kind, decl, r.logger.Named(strings.ToLower(kind)))
}

// LoadDir loads every declaration file (<Kind>.json) in dir. A file that
// fails to parse or validate is logged and skipped so one bad declaration
// cannot take down the others; zero loaded providers is fatal.
func (r *Registry) LoadDir(dir string) ([]Provider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read content dir %q: %v", ErrNoContent, dir, err)
	}

	var providers []Provider
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		kind := strings.TrimSuffix(entry.Name(), ".json")

		factory, ok := r.factories[kind]
		if !ok {
			r.logger.Warn("no provider registered for declaration; skipping",
				zap.String("file", entry.Name()),
				zap.String("kind", kind),
			)
			continue
		}

		path := filepath.Join(dir, entry.Name())
		decl, err := r.loadDeclaration(path)
		if err != nil {
			r.logger.Error("invalid content declaration; skipping",
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			continue
		}

		provider, err := factory(kind, decl, r.logger.Named(strings.ToLower(kind)))
		if err != nil {
			r.logger.Error("provider instantiation failed; skipping",
				zap.String("kind", kind),
				zap.Error(err),
			)
			continue
		}

		r.logger.Info("content provider loaded",
			zap.String("kind", kind),
			zap.Int("checks", len(provider.Checks())),
		)
		providers = append(providers, provider)
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: dir %q", ErrNoContent, dir)
	}
	return providers, nil
}

func (r *Registry) loadDeclaration(path string) (*Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declaration: %w", err)
	}

	var decl Declaration
	if err := json.Unmarshal(data, &decl); err != nil {
		return nil, fmt.Errorf("parse declaration: %w", err)
	}
	if err := r.validate.Struct(&decl); err != nil {
		return nil, fmt.Errorf("validate declaration: %w", err)
	}
	return &decl, nil
}
