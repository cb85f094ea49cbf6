package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"qirtaas/internal/app"
	"qirtaas/internal/ratelimit"
	"qirtaas/internal/util"
	"qirtaas/pkg/domain"
)

const sessionCookieName = "session"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	RedisAddr     string
	RedisPassword string

	WebOrigin  string
	Production bool
	SessionTTL time.Duration

	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	TrustedProxies           []string

	MaxManuscriptBytes int64
	MaxCoverBytes      int64
}

// Server exposes the portal HTTP API.
type Server struct {
	app *app.App
	mux *http.ServeMux

	webOrigin  string
	production bool
	sessionTTL time.Duration

	maxManuscriptBytes int64
	maxCoverBytes      int64

	trustedProxies *util.TrustedProxies
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "qirtaas:portal:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", signupLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 5 * 24 * time.Hour
	}
	maxManuscript := cfg.MaxManuscriptBytes
	if maxManuscript <= 0 {
		maxManuscript = 10 << 20
	}
	maxCover := cfg.MaxCoverBytes
	if maxCover <= 0 {
		maxCover = 2 << 20
	}
	s := &Server{
		app:                cfg.App,
		mux:                http.NewServeMux(),
		webOrigin:          strings.TrimSpace(cfg.WebOrigin),
		production:         cfg.Production,
		sessionTTL:         sessionTTL,
		maxManuscriptBytes: maxManuscript,
		maxCoverBytes:      maxCover,
		trustedProxies:     trustedProxies,
		signupLimiter:      signupLimiter,
		loginLimiter:       loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(s.webOrigin, util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/session", s.handleSession)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/me", s.authenticated(s.handleMe))

	// catalog & submissions
	s.mux.HandleFunc("/api/catalog", s.handleCatalog)
	s.mux.Handle("/api/submissions", s.authenticated(s.handleCreateSubmission))
	s.mux.Handle("/api/submissions/mine", s.authenticated(s.handleMySubmissions))
	s.mux.HandleFunc("/api/submissions/", s.handleSubmissionByID)

	// moderation
	s.mux.Handle("/api/admin/submissions", s.adminOnly(s.handleModerationQueue))
	s.mux.Handle("/api/admin/submissions/", s.adminOnly(s.handleReview))
	s.mux.Handle("/api/admin/events", s.adminOnly(s.handleEvents))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type principalHandler func(http.ResponseWriter, *http.Request, domain.Principal)

func (s *Server) authenticated(next principalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.principal(r)
		if !ok {
			s.audit(r, "portal.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, p)
	})
}

func (s *Server) adminOnly(next principalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.principal(r)
		if !ok {
			s.audit(r, "portal.admin.authorize", "fail", "reason", "unauthenticated")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !p.Elevated {
			s.audit(r, "portal.admin.authorize", "fail", "user_id", p.ID, "reason", "forbidden")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		s.audit(r, "portal.admin.authorize", "success", "user_id", p.ID)
		next(w, r, p)
	})
}

// principal resolves the acting principal from a bearer access token or,
// failing that, the session cookie. Any resolution failure is anonymous.
func (s *Server) principal(r *http.Request) (domain.Principal, bool) {
	if token, ok := bearerToken(r); ok {
		if p, ok := s.app.PrincipalFromToken(token); ok {
			return p, true
		}
		return domain.Principal{}, false
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if p, ok := s.app.PrincipalFromSession(cookie.Value); ok {
			return p, true
		}
	}
	return domain.Principal{}, false
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "portal.signup", "rate_limited")
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "portal.signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignUp(req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.audit(r, "portal.signup", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "portal.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "portal.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "portal.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "portal.login", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "portal.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// handleSession trades a bearer access token for the long-lived session
// cookie the web client rides on.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "portal.session", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	session, err := s.app.ExchangeSession(token)
	if err != nil {
		s.audit(r, "portal.session", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.setSessionCookie(w, session)
	s.audit(r, "portal.session", "success")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err := s.app.Logout(cookie.Value); err != nil {
			slog.Warn("session delete failed", "err", err)
		}
	}
	s.clearSessionCookie(w)
	s.audit(r, "portal.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	user, err := s.app.CurrentUser(p)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: user, Admin: p.Elevated})
}

// catalog & submissions
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.Catalog()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	// Manuscript + cover + form fields, with slack for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxManuscriptBytes+s.maxCoverBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.audit(r, "portal.submission.create", "fail", "user_id", p.ID, "reason", "invalid_form")
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	req := app.SubmissionRequest{
		Title:       r.FormValue("title"),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
	}
	manuscript, err := s.formUpload(r, "file", s.maxManuscriptBytes)
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeAppError(w, err)
		return
	}
	req.Manuscript = manuscript
	cover, err := s.formUpload(r, "cover", s.maxCoverBytes)
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeAppError(w, err)
		return
	}
	if err == nil {
		req.Cover = cover
	}
	created, err := s.app.Submit(r.Context(), p, req)
	if err != nil {
		s.audit(r, "portal.submission.create", "fail", "user_id", p.ID, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "portal.submission.create", "success", "user_id", p.ID, "submission_id", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// formUpload reads one multipart file field into memory. A missing field
// surfaces as http.ErrMissingFile so optional fields can be skipped.
func (s *Server) formUpload(r *http.Request, field string, limit int64) (*app.FileUpload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, http.ErrMissingFile
		}
		return nil, fmt.Errorf("%w: %s field unreadable", app.ErrValidation, field)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s", app.ErrValidation, field)
	}
	return &app.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) handleMySubmissions(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.MySubmissions(p)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// /api/submissions/{id}; visibility is decided by the application, and the
// principal here may legitimately be anonymous.
func (s *Server) handleSubmissionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	p, _ := s.principal(r)
	sub, err := s.app.GetSubmission(p, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// moderation
func (s *Server) handleModerationQueue(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.ModerationQueue(p, r.URL.Query().Get("status"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// /api/admin/submissions/{id}/review
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/submissions/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "review" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	verdict, ok := domain.ParseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}
	reviewed, err := s.app.Review(r.Context(), p, parts[0], verdict, req.Notes)
	if err != nil {
		s.audit(r, "portal.submission.review", "fail", "user_id", p.ID, "submission_id", parts[0], "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "portal.submission.review", "success", "user_id", p.ID, "submission_id", reviewed.ID, "status", string(reviewed.Status))
	writeJSON(w, http.StatusOK, reviewed)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := int64(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 || limit > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
	}
	events, err := s.app.RecentEvents(r.Context(), p, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": events,
		"count": len(events),
	})
}

// cookies
func (s *Server) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type meResponse struct {
	User  domain.User `json:"user"`
	Admin bool        `json:"admin"`
}

type reviewRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps application errors onto HTTP statuses. Validation
// detail is surfaced; everything else stays a fixed message.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrValidation), errors.Is(err, app.ErrEmailAndPasswordRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrUnauthenticated), errors.Is(err, app.ErrInvalidToken), errors.Is(err, app.ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrUpload):
		writeError(w, http.StatusBadGateway, "file upload failed")
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
