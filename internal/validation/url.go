// Package validation checks URLs and origins taken from configuration before
// they reach a browser or a CORS header.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// shellMeta are characters that must never appear in a URL handed to the
// platform's browser opener.
var shellMeta = []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", "\\", "\n", "\r", " "}

// ValidateURL accepts absolute http(s) URLs that are safe to pass to the
// browser opener.
func ValidateURL(rawURL string) error {
	for _, char := range shellMeta {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("URL contains dangerous character: %q", char)
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %q (only http/https allowed)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// ValidateOrigin accepts a bare origin, scheme and host with no path, query
// or credentials, as browsers send it in the Origin header.
func ValidateOrigin(origin string) error {
	if err := ValidateURL(origin); err != nil {
		return err
	}

	parsed, _ := url.Parse(origin)
	if parsed.User != nil {
		return fmt.Errorf("origin %q must not carry credentials", origin)
	}
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("origin %q must not have a path, query or fragment", origin)
	}

	return nil
}
