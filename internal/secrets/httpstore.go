package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ Store = (*HTTPStore)(nil)

// HTTPStore is a REST client for the secret-store service:
//
//	GET  /v1/secrets          list all secrets
//	GET  /v1/secrets/{name}   read one secret
//	PUT  /v1/secrets/{name}   write one secret
//
// The access identity, when set, is forwarded as a request header and the
// store service decides what that identity may read.
type HTTPStore struct {
	baseURL        string
	accessIdentity string
	client         *http.Client
	logger         *zap.Logger
}

// NewHTTPStore creates a store client for the given host. The host may
// include a scheme; https is assumed otherwise.
func NewHTTPStore(host, accessIdentity string, timeout time.Duration, logger *zap.Logger) *HTTPStore {
	baseURL := host
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	return &HTTPStore{
		baseURL:        strings.TrimRight(baseURL, "/"),
		accessIdentity: accessIdentity,
		client:         &http.Client{Timeout: timeout},
		logger:         logger,
	}
}

// HTTPOpener returns an Opener producing HTTPStore clients. The same
// opener serves both the primary store and the indirection hop.
func HTTPOpener(timeout time.Duration, logger *zap.Logger) Opener {
	return func(host, accessIdentity string) (Store, error) {
		if host == "" {
			return nil, fmt.Errorf("secret store host is empty")
		}
		return NewHTTPStore(host, accessIdentity, timeout, logger), nil
	}
}

// Exists reports whether the store is reachable and provisioned.
func (s *HTTPStore) Exists(ctx context.Context) (bool, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/secrets", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("secret store returned %d", resp.StatusCode)
	}
}

// ListSecrets returns every secret currently in the store by name.
func (s *HTTPStore) ListSecrets(ctx context.Context) (map[string]string, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/secrets", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list secrets: store returned %d", resp.StatusCode)
	}

	var payload struct {
		Secrets map[string]string `json:"secrets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode secret listing: %w", err)
	}
	return payload.Secrets, nil
}

// GetSecret reads a single secret value.
func (s *HTTPStore) GetSecret(ctx context.Context, name string) (string, error) {
	resp, err := s.do(ctx, http.MethodGet, "/v1/secrets/"+name, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get secret %q: store returned %d", name, resp.StatusCode)
	}

	var payload struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode secret %q: %w", name, err)
	}
	return payload.Value, nil
}

// SetSecret writes a secret value, overwriting any existing version.
func (s *HTTPStore) SetSecret(ctx context.Context, name, value string) error {
	body, err := json.Marshal(map[string]string{"value": value})
	if err != nil {
		return fmt.Errorf("encode secret %q: %w", name, err)
	}

	resp, err := s.do(ctx, http.MethodPut, "/v1/secrets/"+name, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("set secret %q: store returned %d: %s", name, resp.StatusCode, detail)
	}

	s.logger.Debug("secret stored", zap.String("name", name))
	return nil
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build store request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.accessIdentity != "" {
		req.Header.Set("X-Access-Identity", s.accessIdentity)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("secret store request: %w", err)
	}
	return resp, nil
}
