// Package util holds small helpers shared by the server packages.
package util

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// WritablePath returns the cleaned WRITABLE_PATH (or writable_path) environment value, or "".
func WritablePath() string {
	for _, key := range []string{"WRITABLE_PATH", "writable_path"} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return filepath.Clean(value)
		}
	}
	return ""
}

// HideSecret obscures a credential for logging, keeping only a few characters at each end.
func HideSecret(secret string) string {
	keep := 0
	switch n := len(secret); {
	case n > 8:
		keep = 4
	case n > 4:
		keep = 2
	case n > 2:
		keep = 1
	default:
		return secret
	}
	return secret[:keep] + "..." + secret[len(secret)-keep:]
}

// MaskSensitiveQuery hides the values of credential-like parameters in a raw query string.
// Parameter order and the encoding of untouched pairs are preserved.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		key, value, _ := strings.Cut(part, "=")
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			decodedKey = key
		}
		if !isSensitiveParam(decodedKey) {
			continue
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			decodedValue = value
		}
		parts[i] = key + "=" + url.QueryEscape(HideSecret(strings.TrimSpace(decodedValue)))
		changed = true
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}

var sensitiveParamFragments = []string{"token", "secret", "password", "api-key", "apikey", "api_key"}

func isSensitiveParam(key string) bool {
	key = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(key)), "[]")
	if key == "" {
		return false
	}
	if key == "key" {
		return true
	}
	for _, fragment := range sensitiveParamFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}
