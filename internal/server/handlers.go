package server

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"

	"github.com/conneroisu/brokerage/internal/errors"
	"github.com/conneroisu/brokerage/internal/forms"
	"github.com/conneroisu/brokerage/internal/lazy"
	"github.com/conneroisu/brokerage/internal/leads"
	"github.com/conneroisu/brokerage/internal/pages"
	"github.com/conneroisu/brokerage/internal/prefetch"
	"github.com/conneroisu/brokerage/internal/version"
)

// handlePage renders a catalogue page. The body is the page's lazy chunk:
// the handler waits up to RenderWait for it, then serves either the page or
// the loading placeholder. A chunk that fails to load renders the error
// page instead.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := pages.SlugForPath(r.URL.Path)
	page, ok := s.index.Lookup(slug)
	if !ok || page.Path != r.URL.Path {
		s.renderError(w, r, http.StatusNotFound, pages.NotFound(), nil)
		return
	}

	wrapper := s.chunks.Lazy(slug, pages.Loading())

	waitCtx, cancel := context.WithTimeout(r.Context(), s.cfg.Server.RenderWait)
	state, err := wrapper.Wait(waitCtx)
	cancel()
	if state == lazy.Failed {
		s.renderError(w, r, http.StatusInternalServerError, pages.ServerError(), err)
		return
	}

	var buf bytes.Buffer
	err = pages.Layout(pages.LayoutProps{
		Site:        s.site.Load(),
		Title:       page.Title,
		Description: page.Description,
		Path:        page.Path,
		Chunk:       slug,
		Dev:         s.cfg.IsDevelopment(),
		Body:        wrapper,
	}).Render(r.Context(), &buf)
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, pages.ServerError(), err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if state != lazy.Ready {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = buf.WriteTo(w)
	}

	if s.cfg.Prefetch.Enabled {
		s.batch.Schedule(s.baseCtx, s.chunks.Prefetchers(page.Prefetch), prefetch.Options{
			Timeout: s.cfg.Prefetch.IdleTimeout,
		})
	}
}

// renderError writes an error page inside the site layout.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, body templ.Component, cause error) {
	if cause != nil {
		s.logger.Error(r.Context(), cause, "rendering page failed",
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()))
	}

	var buf bytes.Buffer
	err := pages.Layout(pages.LayoutProps{
		Site:  s.site.Load(),
		Title: http.StatusText(status),
		Path:  r.URL.Path,
		Dev:   s.cfg.IsDevelopment(),
		Body:  body,
	}).Render(r.Context(), &buf)
	if err != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = buf.WriteTo(w)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSONError(w, http.StatusNotFound, "Not found")
		return
	}
	s.renderError(w, r, http.StatusNotFound, pages.NotFound(), nil)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func staticHandler() http.Handler {
	files := http.StripPrefix("/static/", http.FileServerFS(pages.StaticFS()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	out, err := pages.Sitemap(s.cfg.Server.BaseURL, s.index.Pages())
	if err != nil {
		s.logger.Error(r.Context(), err, "building sitemap")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write(out)
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, pages.Robots(s.cfg.Server.BaseURL))
}

type memoryStats struct {
	Alloc     uint64 `json:"alloc"`
	Sys       uint64 `json:"sys"`
	HeapAlloc uint64 `json:"heap_alloc"`
	RSS       uint64 `json:"rss"`
}

type healthResponse struct {
	Status        string      `json:"status"`
	Timestamp     time.Time   `json:"timestamp"`
	Environment   string      `json:"environment"`
	Uptime        string      `json:"uptime"`
	UptimeSeconds float64     `json:"uptime_seconds"`
	Memory        memoryStats `json:"memory"`
	Version       string      `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	uptime := time.Since(s.startedAt)

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Timestamp:     time.Now().UTC(),
		Environment:   s.cfg.Server.Environment,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Memory: memoryStats{
			Alloc:     ms.Alloc,
			Sys:       ms.Sys,
			HeapAlloc: ms.HeapAlloc,
			RSS:       processRSS(),
		},
		Version: version.GetShortVersion(),
	})
}

// processRSS returns the resident set size of this process, or 0 when the
// platform does not report it.
func processRSS() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := s.csrf.Token(w, r)
	s.sessionID(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, forms.ContactFormID)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	line := mux.Vars(r)["line"]
	if !slices.Contains(forms.Lines, line) {
		writeJSONError(w, http.StatusNotFound, "Unknown insurance line")
		return
	}
	s.submit(w, r, forms.QuoteFormID(line))
}

// submit validates a lead form, records the lead and marks the form as
// submitted in the visitor's form state, dropping its draft.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, formID string) {
	schema, ok := s.forms.Lookup(formID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Unknown form")
		return
	}

	input, status, err := decodeInput(r)
	if err != nil {
		writeJSONError(w, status, err.Error())
		return
	}

	submission, err := s.forms.Validate(formID, input)
	if err != nil {
		if errors.IsValidation(err) {
			writeJSONError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		s.logger.Error(r.Context(), err, "validating submission", "form", formID)
		writeJSONError(w, http.StatusInternalServerError, "We could not process your request.")
		return
	}

	lead, err := s.leads.Submit(r.Context(), formID, schema.Title, submission.Fields, leads.Meta{
		ClientIP:  clientIP(r, s.cfg.Security.TrustProxy),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.logger.Error(r.Context(), err, "saving lead", "form", formID)
		writeJSONError(w, http.StatusInternalServerError,
			"We could not submit your request. Please try again or give us a call.")
		return
	}

	store := s.sessions.Get(s.sessionID(w, r))
	store.MarkFormAsSubmitted(formID)
	store.ClearFormData(formID)

	writeJSON(w, http.StatusOK, submitResponse{
		Success: true,
		Message: schema.SuccessMessage,
		ID:      lead.ID,
	})
}

func validationMessage(err error) string {
	var se *errors.SiteError
	if stderrors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "Please check the form and try again."
}

// decodeInput reads a JSON object or a urlencoded form. On failure it also
// returns the status to answer with.
func decodeInput(r *http.Request) (map[string]any, int, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return nil, bodyErrorStatus(err), stderrors.New("Invalid form data")
		}
		input := make(map[string]any, len(r.PostForm))
		for k := range r.PostForm {
			input[k] = r.PostForm.Get(k)
		}
		return input, 0, nil
	}

	var input map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&input); err != nil {
		if err == io.EOF {
			return map[string]any{}, 0, nil
		}
		return nil, bodyErrorStatus(err), stderrors.New("Invalid request body")
	}
	if input == nil {
		input = map[string]any{}
	}

	return input, 0, nil
}

func bodyErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

type draftResponse struct {
	Found bool           `json:"found"`
	Data  map[string]any `json:"data"`
}

// draftForm resolves the form named in the route, answering 404 itself
// when there is none.
func (s *Server) draftForm(w http.ResponseWriter, r *http.Request) (string, bool) {
	formID := mux.Vars(r)["formID"]
	if _, ok := s.forms.Lookup(formID); !ok {
		writeJSONError(w, http.StatusNotFound, "Unknown form")
		return "", false
	}
	return formID, true
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	formID, ok := s.draftForm(w, r)
	if !ok {
		return
	}

	data, found := s.sessions.Get(s.sessionID(w, r)).GetSavedFormData(formID)
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, http.StatusOK, draftResponse{Found: found, Data: data})
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	formID, ok := s.draftForm(w, r)
	if !ok {
		return
	}

	input, status, err := decodeInput(r)
	if err != nil {
		writeJSONError(w, status, err.Error())
		return
	}

	cleaned, err := s.forms.Clean(formID, input)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "Unknown form")
		return
	}

	store := s.sessions.Get(s.sessionID(w, r))
	if err := store.SaveFormData(formID, cleaned); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true, "degraded": store.Degraded()})
}

func (s *Server) handleClearDraft(w http.ResponseWriter, r *http.Request) {
	formID, ok := s.draftForm(w, r)
	if !ok {
		return
	}

	s.sessions.Get(s.sessionID(w, r)).ClearFormData(formID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFormStatus(w http.ResponseWriter, r *http.Request) {
	formID, ok := s.draftForm(w, r)
	if !ok {
		return
	}

	submitted := s.sessions.Get(s.sessionID(w, r)).IsFormSubmitted(formID)
	writeJSON(w, http.StatusOK, map[string]bool{"submitted": submitted})
}

// handleArmPrefetch starts the hover timer for a chunk. Leaving the link
// before HoverDelay cancels it through handleCancelPrefetch.
func (s *Server) handleArmPrefetch(w http.ResponseWriter, r *http.Request) {
	chunk := mux.Vars(r)["chunk"]
	if !s.chunks.Has(chunk) {
		writeJSONError(w, http.StatusNotFound, "Unknown chunk")
		return
	}
	if !s.cfg.Prefetch.Enabled || s.chunks.Warmed(chunk) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	key := hoverKey(s.sessionID(w, r), chunk)
	s.hovers.arm(key, s.chunks.Prefetcher(chunk), s.cfg.Prefetch.HoverDelay)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"armed":    true,
		"delay_ms": s.cfg.Prefetch.HoverDelay.Milliseconds(),
	})
}

func (s *Server) handleCancelPrefetch(w http.ResponseWriter, r *http.Request) {
	chunk := mux.Vars(r)["chunk"]
	cancelled := s.hovers.cancel(hoverKey(s.sessionID(w, r), chunk))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}
