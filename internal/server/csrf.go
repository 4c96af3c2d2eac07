package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/brokerage/internal/errors"
	"github.com/conneroisu/brokerage/internal/formstate"
	"github.com/conneroisu/brokerage/internal/logging"
)

// CSRF implements the double-submit cookie check: a mutating request must
// carry the token from its cookie in a header as well.
type CSRF struct {
	cookie string
	header string
	secure bool
	logger logging.Logger
}

// NewCSRF returns the check for the given cookie and header names.
func NewCSRF(cookie, header string, secure bool, logger logging.Logger) *CSRF {
	return &CSRF{cookie: cookie, header: header, secure: secure, logger: logger}
}

// Token returns the request's token, issuing a new cookie when it has none.
func (c *CSRF) Token(w http.ResponseWriter, r *http.Request) string {
	if existing, err := r.Cookie(c.cookie); err == nil {
		if _, err := uuid.Parse(existing.Value); err == nil {
			return existing.Value
		}
	}

	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})

	return token
}

// Middleware rejects mutating requests whose header token is missing or
// does not match the cookie. The health endpoint is exempt.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == healthPath {
			next.ServeHTTP(w, r)
			return
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(c.cookie)
		header := r.Header.Get(c.header)

		var reject *errors.SiteError
		switch {
		case err != nil || cookie.Value == "" || header == "":
			reject = errors.NewSecurityError(errors.ErrCodeCSRFMissing, "CSRF token missing")
		case subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1:
			reject = errors.NewSecurityError(errors.ErrCodeCSRFMismatch, "CSRF token mismatch")
		}

		if reject != nil {
			logging.LogSecurityEvent(r.Context(), c.logger, "csrf_rejected", map[string]interface{}{
				"code":   reject.Code,
				"path":   r.URL.Path,
				"method": r.Method,
			})
			writeJSONError(w, http.StatusForbidden, "Invalid or missing CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sessionID returns the visitor's form-state session id, setting the
// session cookie on first contact.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	name := s.cfg.Security.SessionCookie
	if c, err := r.Cookie(name); err == nil && formstate.ValidSessionID(c.Value) {
		return c.Value
	}

	id := formstate.NewSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Security.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
	})

	return id
}
