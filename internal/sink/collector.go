package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ LogSink = (*Collector)(nil)

// Collector ships result batches to the workspace log-ingestion endpoint.
// Each request is authenticated with an HMAC-SHA256 signature over a
// canonical request string, keyed by the workspace shared key.
type Collector struct {
	endpoint    string
	resource    string
	workspaceID string
	key         []byte
	client      *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

// NewCollector creates a log collector client. sharedKey must be
// base64-encoded; a key that does not decode is rejected here rather than
// on first delivery.
func NewCollector(endpoint, workspaceID, sharedKey string, timeout time.Duration, logger *zap.Logger) (*Collector, error) {
	key, err := base64.StdEncoding.DecodeString(sharedKey)
	if err != nil {
		return nil, fmt.Errorf("decode shared key: %w", err)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse ingest endpoint %q: %w", endpoint, err)
	}
	resource := u.Path
	if resource == "" {
		resource = "/"
	}

	return &Collector{
		endpoint:    endpoint,
		resource:    resource,
		workspaceID: workspaceID,
		key:         key,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Ingest delivers one batch of rows under the given destination name.
func (c *Collector) Ingest(ctx context.Context, destination string, rows []map[string]any, timeField string) error {
	if len(rows) == 0 {
		return nil
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode rows for %q: %w", destination, err)
	}

	date := c.now().UTC().Format(http.TimeFormat)
	signature := c.sign(http.MethodPost, len(body), date)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ingest-Date", date)
	req.Header.Set("Log-Type", destination)
	req.Header.Set("Authorization", fmt.Sprintf("SharedKey %s:%s", c.workspaceID, signature))
	if timeField != "" {
		req.Header.Set("Time-Generated-Field", timeField)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %q: %w", destination, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("deliver to %q: collector returned %d: %s",
			destination, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	c.logger.Debug("batch ingested",
		zap.String("destination", destination),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// sign computes the request signature over the canonical string
// method \n content-length \n content-type \n x-ingest-date:date \n resource.
func (c *Collector) sign(method string, contentLength int, date string) string {
	canonical := strings.Join([]string{
		method,
		strconv.Itoa(contentLength),
		"application/json",
		"x-ingest-date:" + date,
		c.resource,
	}, "\n")

	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
