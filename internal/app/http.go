package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pressdeck/api/internal/ai"
	"pressdeck/api/internal/draft"
	"pressdeck/api/internal/feeds"
	"pressdeck/api/internal/kv"
	"pressdeck/api/internal/media"
	"pressdeck/api/internal/metrics"
	"pressdeck/api/internal/preview"
)

const (
	authCookieName = "pd_auth"
	userCookieName = "pd_user"

	loginPath = "/login"
)

const loginPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Pressdeck</title></head>
<body>
<form method="post" action="/api/login" id="login">
<label>Name <input name="name" autocomplete="username"></label>
<label>Password <input name="password" type="password"></label>
<button>Sign in</button>
</form>
</body>
</html>
`

type HTTPServer struct {
	service      *Service
	corsOrigin   string
	loginLimiter *ipLimiter
}

func NewHTTPServer(service *Service) *HTTPServer {
	return &HTTPServer{
		service:      service,
		corsOrigin:   service.cfg.CORSOrigin,
		loginLimiter: newIPLimiter(service.cfg.LoginRPS, service.cfg.LoginBurst),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Public routes: the login page, the login submission and shared
	// preview pages are reachable without a credential.
	if r.Method == http.MethodGet && r.URL.Path == loginPath {
		s.handleLoginPage(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/login" {
		s.handleLogin(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "p" {
		s.handlePreviewPage(w, r, parts[1])
		return
	}

	// Access gate: everything below requires the editor credential.
	if !s.gate(w, r) {
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/logout" {
		s.handleLogout(w, r)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.URL.Path == "/api/draft" {
		switch r.Method {
		case http.MethodGet:
			s.handleDraftGet(w, r)
		case http.MethodPost:
			s.handleDraftWrite(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/preview" {
		s.handlePreviewCreate(w, r)
		return
	}

	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "preview" {
		s.handlePreviewFetch(w, r, parts[2])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/stats/campaigns" {
		s.handleFeed(w, r, feeds.Campaigns)
		return
	}

	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "feeds" {
		s.handleFeed(w, r, parts[2])
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/ai/parse" {
		s.handleAIParse(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/media" {
		s.handleMediaUpload(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	http.NotFound(w, r)
}

// gate verifies the credential cookie before any handler logic runs. API
// requests are rejected with JSON 401, page requests with a redirect to the
// login page. A missing cookie and an unconfigured secret reject alike.
func (s *HTTPServer) gate(w http.ResponseWriter, r *http.Request) bool {
	cookie, err := r.Cookie(authCookieName)
	if err == nil && s.service.VerifyCredential(cookie.Value) {
		return true
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	} else {
		http.Redirect(w, r, loginPath, http.StatusFound)
	}
	return false
}

func (s *HTTPServer) handleLoginPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loginPage))
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.allow(clientIP(r)) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many login attempts", nil)
		return
	}

	var body struct {
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "password is required", nil)
		return
	}

	token, err := s.service.Login(body.Password)
	if err != nil {
		status, code, message := mapError(err)
		log.Printf("login rejected: %s", code)
		writeError(w, status, code, message, nil)
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = "editor"
	}
	s.setAuthCookies(w, token, name)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "userName": name})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"kv": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["kv"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleDraftGet(w http.ResponseWriter, r *http.Request) {
	meta := r.URL.Query().Get("meta")
	if meta == "1" || meta == "true" {
		result, err := s.service.GetDraftMeta(r.Context())
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":   result.Version,
			"userId":    result.Editor.UserID,
			"updatedAt": editorTime(result.Editor.UpdatedAt),
		})
		return
	}

	record, err := s.service.GetDraft(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     record.State,
		"version":   record.Version,
		"userId":    record.Editor.UserID,
		"updatedAt": editorTime(record.Editor.UpdatedAt),
	})
}

func (s *HTTPServer) handleDraftWrite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State  json.RawMessage `json:"state"`
		UserID string          `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if len(body.State) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "state is required", nil)
		return
	}

	result, err := s.service.WriteDraft(r.Context(), body.State, body.UserID)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   result.Version,
		"updatedAt": result.UpdatedAt,
	})
}

func (s *HTTPServer) handlePreviewCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		HTML string `json:"html"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	id, err := s.service.CreatePreview(r.Context(), body.HTML)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *HTTPServer) handlePreviewFetch(w http.ResponseWriter, r *http.Request, id string) {
	html, err := s.service.FetchPreview(r.Context(), id)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"html": html})
}

// handlePreviewPage serves a shared snapshot as a plain HTML page; this is
// the target of the shareable links handed out to non-editors.
func (s *HTTPServer) handlePreviewPage(w http.ResponseWriter, r *http.Request, id string) {
	html, err := s.service.FetchPreview(r.Context(), id)
	if err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if errors.Is(err, preview.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("<!doctype html><html><body><p>Preview not found or expired.</p></body></html>"))
			return
		}
		log.Printf("preview page %s: %v", id, err)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<!doctype html><html><body><p>Something went wrong.</p></body></html>"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

func (s *HTTPServer) handleFeed(w http.ResponseWriter, r *http.Request, name string) {
	body, err := s.service.FetchFeed(r.Context(), name)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *HTTPServer) handleAIParse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
		return
	}

	items, err := s.service.ParseText(r.Context(), body.Text)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	defer file.Close()

	upload, err := s.service.UploadMedia(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func (s *HTTPServer) setAuthCookies(w http.ResponseWriter, token, name string) {
	maxAge := int(s.service.cfg.AuthTTL.Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.service.cfg.IsProduction(),
	})
	// Display-name cookie readable by the dashboard frontend; scoped to
	// the parent domain so subdomains share it.
	http.SetCookie(w, &http.Cookie{
		Name:     userCookieName,
		Value:    name,
		Path:     "/",
		Domain:   s.service.cfg.CookieDomain,
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.service.cfg.IsProduction(),
	})
}

func (s *HTTPServer) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.service.cfg.IsProduction(),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     userCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.service.cfg.CookieDomain,
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.service.cfg.IsProduction(),
	})
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status >= 500 {
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, code, message, nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(writer.status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())
		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			elapsed.Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// editorTime renders the editor timestamp, mapping the zero value (no
// editor record) to null instead of the zero RFC3339 string.
func editorTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func mapError(err error) (status int, code, message string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message
	}
	var upstreamErr *feeds.UpstreamError
	if errors.As(err, &upstreamErr) {
		return http.StatusBadGateway, "UPSTREAM_ERROR", fmt.Sprintf("Upstream returned %d", upstreamErr.Status)
	}
	switch {
	case errors.Is(err, kv.ErrNotConfigured),
		errors.Is(err, feeds.ErrNotConfigured),
		errors.Is(err, ai.ErrNotConfigured),
		errors.Is(err, media.ErrNotConfigured):
		return http.StatusServiceUnavailable, "NOT_CONFIGURED", "Service not configured"
	case errors.Is(err, draft.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "No draft yet"
	case errors.Is(err, preview.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Preview not found or expired"
	case errors.Is(err, feeds.ErrUnknownFeed):
		return http.StatusNotFound, "NOT_FOUND", "Unknown feed"
	case errors.Is(err, draft.ErrInvalidState):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "state must be a JSON object or array"
	case errors.Is(err, preview.ErrEmptyHTML):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "html is required"
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error"
}
