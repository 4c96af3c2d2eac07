package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/conneroisu/brokerage/internal/config"
	"github.com/conneroisu/brokerage/internal/errors"
	"github.com/conneroisu/brokerage/internal/logging"
)

// SecurityConfig holds the response headers and request screening applied
// to every route.
type SecurityConfig struct {
	CSP                 *CSPConfig
	HSTS                *HSTSConfig
	XFrameOptions       string
	XContentTypeNoSniff bool
	ReferrerPolicy      string
	PermissionsPolicy   *PermissionsPolicyConfig
	BlockedUserAgents   []string
	TrustProxy          bool
	Logger              logging.Logger
}

// CSPConfig holds Content Security Policy configuration
type CSPConfig struct {
	DefaultSrc              []string
	ScriptSrc               []string
	StyleSrc                []string
	ImgSrc                  []string
	ConnectSrc              []string
	FontSrc                 []string
	ObjectSrc               []string
	FrameAncestors          []string
	BaseURI                 []string
	FormAction              []string
	UpgradeInsecureRequests bool
}

// HSTSConfig holds HTTP Strict Transport Security configuration
type HSTSConfig struct {
	MaxAge            int
	IncludeSubDomains bool
	Preload           bool
}

// PermissionsPolicyConfig holds Permissions Policy configuration
type PermissionsPolicyConfig struct {
	Geolocation []string
	Camera      []string
	Microphone  []string
	Payment     []string
	USB         []string
}

// DefaultSecurityConfig returns a secure default configuration
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		CSP: &CSPConfig{
			DefaultSrc:     []string{"'self'"},
			ScriptSrc:      []string{"'self'"},
			StyleSrc:       []string{"'self'"},
			ImgSrc:         []string{"'self'", "data:"},
			ConnectSrc:     []string{"'self'"},
			FontSrc:        []string{"'self'"},
			ObjectSrc:      []string{"'none'"},
			FrameAncestors: []string{"'none'"},
			BaseURI:        []string{"'self'"},
			FormAction:     []string{"'self'"},
		},
		HSTS: &HSTSConfig{
			MaxAge:            31536000, // 1 year
			IncludeSubDomains: true,
		},
		XFrameOptions:       "DENY",
		XContentTypeNoSniff: true,
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   &PermissionsPolicyConfig{},
	}
}

// DevelopmentSecurityConfig returns a more permissive config for development
func DevelopmentSecurityConfig() *SecurityConfig {
	config := DefaultSecurityConfig()

	// Live reload connects over ws:.
	config.CSP.ConnectSrc = append(config.CSP.ConnectSrc, "ws:", "wss:")
	config.XFrameOptions = "SAMEORIGIN"
	config.CSP.FrameAncestors = []string{"'self'"}
	config.HSTS = nil

	return config
}

// ProductionSecurityConfig returns a strict config for production
func ProductionSecurityConfig() *SecurityConfig {
	config := DefaultSecurityConfig()

	config.CSP.UpgradeInsecureRequests = true
	config.HSTS.Preload = true

	return config
}

// SecurityConfigFromAppConfig picks the profile for the configured
// environment and applies the security section on top.
func SecurityConfigFromAppConfig(cfg *config.Config, logger logging.Logger) *SecurityConfig {
	var sec *SecurityConfig
	switch cfg.Server.Environment {
	case config.EnvProduction:
		sec = ProductionSecurityConfig()
	case config.EnvDevelopment:
		sec = DevelopmentSecurityConfig()
	default:
		sec = DefaultSecurityConfig()
	}

	sec.BlockedUserAgents = cfg.Security.BlockedUserAgents
	sec.TrustProxy = cfg.Security.TrustProxy
	sec.Logger = logger

	return sec
}

// SecurityMiddleware sets the security headers and rejects blocked clients.
func SecurityMiddleware(secConfig *SecurityConfig) Middleware {
	if secConfig == nil {
		secConfig = DefaultSecurityConfig()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applySecurityHeaders(w, r, secConfig)

			if isBlockedUserAgent(r.UserAgent(), secConfig.BlockedUserAgents) {
				if secConfig.Logger != nil {
					secConfig.Logger.Warn(r.Context(),
						errors.NewSecurityError("BLOCKED_USER_AGENT", "Blocked user agent attempted access"),
						"Security: Blocked user agent",
						"user_agent", logging.SanitizeForLog(r.UserAgent()),
						"ip", clientIP(r, secConfig.TrustProxy))
				}
				writeJSONError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func applySecurityHeaders(w http.ResponseWriter, r *http.Request, config *SecurityConfig) {
	h := w.Header()

	if config.CSP != nil {
		h.Set("Content-Security-Policy", buildCSPHeader(config.CSP))
	}

	if config.HSTS != nil && r.TLS != nil {
		h.Set("Strict-Transport-Security", buildHSTSHeader(config.HSTS))
	}

	if config.XFrameOptions != "" {
		h.Set("X-Frame-Options", config.XFrameOptions)
	}

	if config.XContentTypeNoSniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}

	if config.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", config.ReferrerPolicy)
	}

	if config.PermissionsPolicy != nil {
		h.Set("Permissions-Policy", buildPermissionsPolicyHeader(config.PermissionsPolicy))
	}

	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("Cross-Origin-Resource-Policy", "same-origin")
}

func buildCSPHeader(csp *CSPConfig) string {
	var directives []string

	addDirective := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, fmt.Sprintf("%s %s", name, strings.Join(values, " ")))
		}
	}

	addDirective("default-src", csp.DefaultSrc)
	addDirective("script-src", csp.ScriptSrc)
	addDirective("style-src", csp.StyleSrc)
	addDirective("img-src", csp.ImgSrc)
	addDirective("connect-src", csp.ConnectSrc)
	addDirective("font-src", csp.FontSrc)
	addDirective("object-src", csp.ObjectSrc)
	addDirective("frame-ancestors", csp.FrameAncestors)
	addDirective("base-uri", csp.BaseURI)
	addDirective("form-action", csp.FormAction)

	if csp.UpgradeInsecureRequests {
		directives = append(directives, "upgrade-insecure-requests")
	}

	return strings.Join(directives, "; ")
}

func buildHSTSHeader(hsts *HSTSConfig) string {
	header := fmt.Sprintf("max-age=%d", hsts.MaxAge)

	if hsts.IncludeSubDomains {
		header += "; includeSubDomains"
	}

	if hsts.Preload {
		header += "; preload"
	}

	return header
}

func buildPermissionsPolicyHeader(pp *PermissionsPolicyConfig) string {
	var policies []string

	addPolicy := func(name string, values []string) {
		policies = append(policies, fmt.Sprintf("%s=(%s)", name, strings.Join(values, " ")))
	}

	addPolicy("geolocation", pp.Geolocation)
	addPolicy("camera", pp.Camera)
	addPolicy("microphone", pp.Microphone)
	addPolicy("payment", pp.Payment)
	addPolicy("usb", pp.USB)

	return strings.Join(policies, ", ")
}

func isBlockedUserAgent(userAgent string, blockedAgents []string) bool {
	if userAgent == "" {
		return false
	}

	userAgentLower := strings.ToLower(userAgent)
	for _, blocked := range blockedAgents {
		if blocked != "" && strings.Contains(userAgentLower, strings.ToLower(blocked)) {
			return true
		}
	}

	return false
}
