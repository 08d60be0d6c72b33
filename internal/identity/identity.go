// Package identity resolves the agent's monitor instance identity from
// host metadata. The metadata service tags the collector host with a
// ;-separated key:value list; the MonitorId tag is the stable identifier
// every other component keys off.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when the metadata service cannot be reached
// or the tag set does not yield a usable monitor identity.
var ErrUnavailable = errors.New("instance identity unavailable")

// Well-known tag keys.
const (
	TagMonitorID = "MonitorId"
	TagAccessID  = "AccessId" // optional access identity for the primary secret store
)

// Instance is the raw compute-instance record returned by the metadata service.
type Instance struct {
	Tags string `json:"tags"`
}

// MetadataService is the external collaborator that describes the host the
// agent runs on. The operation label identifies the calling flow for
// server-side auditing.
type MetadataService interface {
	ComputeInstance(ctx context.Context, operation string) (*Instance, error)
}

// Identity is the immutable per-run instance identity.
type Identity struct {
	MonitorID string
	Tags      map[string]string
}

// AccessIdentity returns the optional access-identity hint used when
// opening the primary secret store. Empty when the tag is not set.
func (id *Identity) AccessIdentity() string {
	return id.Tags[TagAccessID]
}

// Resolve fetches the compute instance and parses its tags into an
// Identity. Any metadata failure, malformed tag entry, or missing
// MonitorId tag yields ErrUnavailable.
func Resolve(ctx context.Context, svc MetadataService, operation string) (*Identity, error) {
	inst, err := svc.ComputeInstance(ctx, operation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	tags, err := ParseTags(inst.Tags)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	monitorID := tags[TagMonitorID]
	if monitorID == "" {
		return nil, fmt.Errorf("%w: tag %q missing or empty", ErrUnavailable, TagMonitorID)
	}

	return &Identity{MonitorID: monitorID, Tags: tags}, nil
}

// ParseTags parses a raw ;-separated key:value tag string. A pair without
// a colon is a hard error rather than being skipped, so a misconfigured
// host is detected deterministically.
func ParseTags(raw string) (map[string]string, error) {
	tags := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return tags, nil
	}
	for _, pair := range strings.Split(raw, ";") {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("malformed tag entry %q: missing ':'", pair)
		}
		tags[key] = value
	}
	return tags, nil
}
