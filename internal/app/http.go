package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"customerqueries/web/internal/identity"
	"customerqueries/web/internal/view"
)

const sessionCookieName = "cq_session"

type HTTPServer struct {
	service *Service
	logger  *slog.Logger
}

func NewHTTPServer(service *Service, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{service: service, logger: logger.With("component", "http")}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBodyBytes))
	r.Use(s.withMiddleware)

	r.Get(view.PathHome, s.handlePage(view.PathHome))
	r.Get(view.PathLogin, s.handlePage(view.PathLogin))
	r.Get(view.PathSignup, s.handlePage(view.PathSignup))
	r.Post(view.PathLogin, s.handleLoginForm)
	r.Post(view.PathSignup, s.handleSignupForm)
	r.Post("/logout", s.handleLogoutForm)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Head("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Head("/ready", s.handleReady)

		r.Get("/session", s.handleSession)
		r.Post("/session/login", s.handleSessionLogin)
		r.Post("/session/logout", s.handleSessionLogout)
		r.Post("/auth/signup", s.handleAuthSignUp)

		r.Get("/route", s.handleRoute)
		r.Get("/messages", s.handleListMessages)
		r.Get("/messages/search", s.handleSearchMessages)
		r.Post("/messages", s.handleCreateMessage)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.writeMappedError(w, errNotFound)
			return
		}
		http.NotFound(w, r)
	})
	return r
}

// navigation records the navigation a controller asked for so the handler
// can turn it into a redirect or a JSON field.
type navigation struct {
	path    string
	replace bool
}

func (n *navigation) Navigate(path string, replace bool) {
	n.path = path
	n.replace = replace
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	page, state := s.service.ResolvePage(r.Context(), requestToken(r), nil)
	var userName any
	if state == view.StateAuthenticated {
		userName = page.Session.UserName()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": state == view.StateAuthenticated,
		"state":         state.String(),
		"userName":      userName,
	})
}

func (s *HTTPServer) handleSessionLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeMappedError(w, err)
		return
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		s.writeMappedError(w, validationError("email and password are required"))
		return
	}

	sess, token, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.logger.Warn("login failed", "error", err)
		s.writeMappedError(w, err)
		return
	}
	s.writeNewSession(w, http.StatusOK, sess, token)
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeMappedError(w, err)
		return
	}

	sess, token, err := s.service.SignUp(r.Context(), body.DisplayName, body.Email, body.Password)
	if err != nil {
		s.logger.Warn("signup failed", "error", err)
		s.writeMappedError(w, err)
		return
	}
	s.writeNewSession(w, http.StatusCreated, sess, token)
}

func (s *HTTPServer) writeNewSession(w http.ResponseWriter, status int, sess identity.Session, token string) {
	setSessionCookie(w, token, sess.ExpiresAt, s.service.CookieSecure())
	writeJSON(w, status, map[string]any{
		"token":     token,
		"userId":    sess.UserID,
		"userName":  sess.UserName,
		"expiresAt": sess.ExpiresAt.Unix(),
		"state":     view.StateAuthenticated.String(),
	})
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	nav := &navigation{}
	page, _ := s.service.ResolvePage(r.Context(), requestToken(r), nav)
	outcome := s.service.Logout(r.Context(), page)

	payload := map[string]any{
		"ok":      outcome == view.LogoutCompleted,
		"outcome": outcome.String(),
		"state":   page.Session.State().String(),
	}
	if outcome == view.LogoutCompleted {
		clearSessionCookie(w)
		payload["navigate"] = nav.path
		payload["replace"] = nav.replace
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleRoute(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = view.PathHome
	}
	_, state := s.service.ResolvePage(r.Context(), requestToken(r), nil)
	decision, err := view.Route(path, state)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":     path,
		"state":    state.String(),
		"view":     decision.View,
		"redirect": decision.Redirect,
		"replace":  decision.Replace,
	})
}

func (s *HTTPServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode, err := view.ParseSortMode(query.Get("sort"))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	page, state := s.service.ResolvePage(r.Context(), requestToken(r), nil)
	if err := requireAuthenticated(state); err != nil {
		s.writeMappedError(w, err)
		return
	}

	page.Messages.SetSearch(query.Get("q"))
	page.Messages.SetSort(mode)
	loading := s.service.LoadMessages(r.Context(), page)

	writeJSON(w, http.StatusOK, map[string]any{
		"loading":  loading,
		"search":   page.Messages.Search(),
		"sort":     page.Messages.Sort(),
		"messages": page.Messages.Displayed(),
	})
}

func (s *HTTPServer) handleSearchMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeMappedError(w, errInvalidLimit)
			return
		}
		limit = n
	}

	_, state := s.service.ResolvePage(r.Context(), requestToken(r), nil)
	if err := requireAuthenticated(state); err != nil {
		s.writeMappedError(w, err)
		return
	}

	q := strings.TrimSpace(query.Get("q"))
	items, err := s.service.SearchMessages(r.Context(), q, limit)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":    q,
		"messages": items,
	})
}

func requireAuthenticated(state view.AuthState) error {
	switch state {
	case view.StateUnknown:
		return errSessionPending
	case view.StateUnauthenticated:
		return errUnauthorized
	}
	return nil
}

func (s *HTTPServer) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Author string `json:"author"`
		Body   string `json:"body"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeMappedError(w, err)
		return
	}
	msg, err := s.service.CreateMessage(r.Context(), body.Author, body.Body)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
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
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
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

// maxBodyBytes caps request bodies (JSON and forms) via middleware.RequestSize.
const maxBodyBytes = 64 << 10

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errBodyTooLarge
		case errors.Is(err, http.ErrBodyReadAfterClose):
			return nil
		}
		return errInvalidBody
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// requestToken prefers the bearer header over the session cookie.
func requestToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func errorRedirect(path, message string) string {
	return path + "?error=" + url.QueryEscape(message)
}
