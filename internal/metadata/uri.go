// Package metadata resolves and memoizes the externally hosted metadata
// documents referenced by provider and service records.
package metadata

import (
	"net/url"
	"strings"
)

// IsLocalhostURI reports whether the URI's host is localhost or a loopback
// address.
func IsLocalhostURI(uri string) bool {
	if uri == "" {
		return false
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "localhost" || strings.HasPrefix(host, "127.")
}

// IsExternalURI reports whether a URI is eligible for metadata resolution:
// it must carry both a scheme and a host, and the host must not be
// localhost/loopback unless the override is enabled. The override exists so
// integration setups can serve sentinel metadata locally; it stays off in
// production so untrusted catalog data cannot point the pipeline at local
// services.
func IsExternalURI(uri string, allowLocalhost bool) bool {
	if uri == "" {
		return false
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if parsed.Scheme == "" || host == "" {
		return false
	}
	if host == "localhost" || strings.HasPrefix(host, "127.") {
		return allowLocalhost
	}
	return true
}
