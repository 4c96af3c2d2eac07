package server

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/brokerage/internal/config"
	"github.com/conneroisu/brokerage/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityMiddleware_Headers(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		tls         bool
		wantFrame   string
		wantHSTS    string
		cspContains []string
		cspExcludes []string
	}{
		{
			name:        "production over TLS",
			environment: config.EnvProduction,
			tls:         true,
			wantFrame:   "DENY",
			wantHSTS:    "max-age=31536000; includeSubDomains; preload",
			cspContains: []string{"default-src 'self'", "frame-ancestors 'none'", "upgrade-insecure-requests"},
			cspExcludes: []string{"ws:"},
		},
		{
			name:        "production over plain HTTP",
			environment: config.EnvProduction,
			wantFrame:   "DENY",
		},
		{
			name:        "development",
			environment: config.EnvDevelopment,
			tls:         true,
			wantFrame:   "SAMEORIGIN",
			cspContains: []string{"connect-src 'self' ws: wss:"},
			cspExcludes: []string{"upgrade-insecure-requests"},
		},
		{
			name:        "test",
			environment: config.EnvTest,
			wantFrame:   "DENY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Server.Environment = tt.environment
			h := SecurityMiddleware(SecurityConfigFromAppConfig(cfg, logging.NewNop()))(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantFrame, rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, tt.wantHSTS, rec.Header().Get("Strict-Transport-Security"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
			assert.Equal(t, "geolocation=(), camera=(), microphone=(), payment=(), usb=()", rec.Header().Get("Permissions-Policy"))

			csp := rec.Header().Get("Content-Security-Policy")
			for _, want := range tt.cspContains {
				assert.Contains(t, csp, want)
			}
			for _, unwanted := range tt.cspExcludes {
				assert.NotContains(t, csp, unwanted)
			}
		})
	}
}

func TestSecurityMiddleware_NilConfigUsesDefaults(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityMiddleware(nil)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestSecurityMiddleware_BlockedUserAgent(t *testing.T) {
	cfg := config.Default()
	cfg.Security.BlockedUserAgents = []string{"BadBot", "scrapy"}
	h := SecurityMiddleware(SecurityConfigFromAppConfig(cfg, logging.NewNop()))(okHandler())

	tests := []struct {
		userAgent  string
		wantStatus int
	}{
		{"Mozilla/5.0 (X11; Linux x86_64)", http.StatusOK},
		{"badbot/2.1", http.StatusForbidden},
		{"Scrapy/2.11 (+https://scrapy.org)", http.StatusForbidden},
		{"", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.userAgent, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("User-Agent", tt.userAgent)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCSRF_Token(t *testing.T) {
	c := NewCSRF("csrf_token", "X-CSRF-Token", true, logging.NewNop())

	rec := httptest.NewRecorder()
	token := c.Token(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(token)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)

	// An existing valid cookie is reused.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	assert.Equal(t, token, c.Token(rec, req))
	assert.Empty(t, rec.Result().Cookies())

	// A forged cookie is replaced.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "not-a-uuid"})
	rec = httptest.NewRecorder()
	assert.NotEqual(t, "not-a-uuid", c.Token(rec, req))
}

func TestCSRF_Middleware(t *testing.T) {
	c := NewCSRF("csrf_token", "X-CSRF-Token", false, logging.NewNop())
	h := c.Middleware(okHandler())
	token := uuid.NewString()

	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
	}{
		{"safe method without token", http.MethodGet, "", "", http.StatusOK},
		{"head without token", http.MethodHead, "", "", http.StatusOK},
		{"post without token", http.MethodPost, "", "", http.StatusForbidden},
		{"post with cookie only", http.MethodPost, token, "", http.StatusForbidden},
		{"post with header only", http.MethodPost, "", token, http.StatusForbidden},
		{"post with mismatch", http.MethodPost, token, uuid.NewString(), http.StatusForbidden},
		{"post with match", http.MethodPost, token, token, http.StatusOK},
		{"delete with match", http.MethodDelete, token, token, http.StatusOK},
		{"put with mismatch", http.MethodPut, token, strings.ToUpper(token), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/contact", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "csrf_token", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusForbidden {
				assert.JSONEq(t, `{"error":"Invalid or missing CSRF token"}`, rec.Body.String())
			}
		})
	}
}

func TestCSRF_ProtectsServerRoutes(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRF_HealthIsExempt(t *testing.T) {
	c := NewCSRF("csrf_token", "X-CSRF-Token", false, logging.NewNop())
	rec := httptest.NewRecorder()
	c.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, healthPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Through the router the wrong method is reported, not a CSRF failure.
	srv := newTestServer(t)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, healthPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessionCookie(t *testing.T) {
	srv := newTestServer(t)

	rec := get(srv.Handler(), "/api/csrf-token")
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == srv.cfg.Security.SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)
	assert.Positive(t, session.MaxAge)
}
