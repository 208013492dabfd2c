package common

// URL utilities shared by the repository validation layer, the scraper
// workers, and the image pipeline.

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSourceURL checks that a source URL is absolute http(s) with a host.
func ValidateSourceURL(sourceURL string) error {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %q (expected http or https)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL host is empty")
	}
	return nil
}

// HostKey returns the lowercased host of a URL for per-domain rate limiting.
// Returns "" if the URL does not parse.
func HostKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// ResolveURL resolves a possibly-relative reference against a base URL.
// Absolute references are returned unchanged (normalized).
func ResolveURL(base, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty URL reference")
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid URL reference %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	if !baseURL.IsAbs() {
		return "", fmt.Errorf("base URL %q is not absolute", base)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// IsTestURL reports whether a URL points at a local test host. Production
// deployments reject these as crawl targets.
func IsTestURL(rawURL string) bool {
	host := HostKey(rawURL)
	return host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" || host == "::1"
}
