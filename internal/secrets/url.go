package secrets

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseSecretURL splits a secret reference of the form
// https://<storeHost>/secrets/<secretName> into its store host and secret
// name. Anything else is rejected.
func ParseSecretURL(raw string) (host, name string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse secret URL %q: %w", raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", "", fmt.Errorf("secret URL %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("secret URL %q: missing store host", raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "secrets" || parts[1] == "" {
		return "", "", fmt.Errorf("secret URL %q: path must be /secrets/<name>", raw)
	}

	return u.Host, parts[1], nil
}
