package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ MetadataService = (*HTTPMetadataService)(nil)

// HTTPMetadataService queries the host's instance-metadata endpoint.
type HTTPMetadataService struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPMetadataService creates a metadata client for the given endpoint.
func NewHTTPMetadataService(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPMetadataService {
	return &HTTPMetadataService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// ComputeInstance implements MetadataService.
func (s *HTTPMetadataService) ComputeInstance(ctx context.Context, operation string) (*Instance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	// Link-local metadata endpoints require this header to reject
	// forwarded requests.
	req.Header.Set("Metadata", "true")
	req.Header.Set("X-Operation", operation)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query metadata service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("metadata service returned %d: %s", resp.StatusCode, body)
	}

	var inst Instance
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}

	s.logger.Debug("compute instance fetched", zap.String("operation", operation))
	return &inst, nil
}
