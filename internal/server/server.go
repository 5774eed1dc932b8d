package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"catalogpanel/internal/app"
	"catalogpanel/internal/stafftoken"
	"catalogpanel/internal/util"
	"catalogpanel/pkg/workbook"
)

const defaultMaxUploadBytes = 50 << 20

// TokenVerifier authenticates staff bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (stafftoken.Staff, error)
}

// RateLimiter bounds upload requests per client.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
	RetryAfter() time.Duration
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier TokenVerifier
	// UploadLimiter is optional; nil leaves uploads unlimited.
	UploadLimiter  RateLimiter
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string
	MaxUploadBytes int64
	// FilesDir, when set, is served under /files/ for the local storage driver.
	FilesDir string
}

// Server exposes the catalog panel HTTP API and the public sheet viewer.
type Server struct {
	app            *app.App
	tokenVerifier  TokenVerifier
	uploadLimiter  RateLimiter
	trusted        *util.TrustedProxies
	corsOrigins    []string
	maxUploadBytes int64
	filesDir       string
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("server requires token verifier")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		uploadLimiter:  cfg.UploadLimiter,
		trusted:        cfg.TrustedProxies,
		corsOrigins:    cfg.CORSOrigins,
		maxUploadBytes: maxUpload,
		filesDir:       strings.TrimSpace(cfg.FilesDir),
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	h := util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))
	return util.WithRequestID(util.WithRequestLog(s.trusted, h))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// products
	s.mux.Handle("/api/products", s.staffOnly(s.handleProducts))
	s.mux.Handle("/api/products/images", s.staffOnly(s.handleProductImages))
	s.mux.Handle("/api/products/", s.staffOnly(s.handleProductByID))

	// sheets
	s.mux.Handle("/api/sheets", s.staffOnly(s.handleSheets))
	s.mux.Handle("/api/sheets/", s.staffOnly(s.handleSheetByName))
	s.mux.Handle("/api/preview", s.staffOnly(s.handlePreviewURL))

	// public read-only viewer
	s.mux.HandleFunc("/dashboard/sheets/view/", s.handleSheetView)

	if s.filesDir != "" {
		s.mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(s.filesDir))))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type staffHandler func(http.ResponseWriter, *http.Request, stafftoken.Staff)

func (s *Server) staffOnly(next staffHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "catalog.authorize", "fail", "reason", "missing_token")
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			return
		}
		staff, err := s.tokenVerifier.Verify(r.Context(), token)
		if errors.Is(err, stafftoken.ErrForbiddenRole) {
			s.audit(r, "catalog.authorize", "fail", "user_id", staff.ID, "reason", "forbidden_role")
			writeError(w, r, http.StatusForbidden, "FORBIDDEN", "forbidden")
			return
		}
		if err != nil {
			s.audit(r, "catalog.authorize", "fail", "reason", "invalid_signature_or_claims")
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("staff_id", staff.ID))
		next(w, r.WithContext(ctx), staff)
	})
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

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate applies the shared upload quota keyed by client IP.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, event string) bool {
	if s.uploadLimiter == nil {
		return true
	}
	key := "upload|" + util.ClientIP(r, s.trusted)
	if s.uploadLimiter.Allow(r.Context(), key) {
		return true
	}
	secs := int(s.uploadLimiter.RetryAfter() / time.Second)
	if secs < 1 {
		secs = 1
	}
	s.audit(r, event, "rate_limited")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many uploads, try again later")
	return false
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, RequestID: util.RequestIDFromRequest(r)})
}

// writeAppError maps application and pipeline errors onto the JSON envelope.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, r, status, code, err.Error())
}

func errorStatus(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, workbook.ErrTransport):
		return http.StatusBadGateway, "SHEET_FETCH_FAILED"
	case errors.Is(err, workbook.ErrFormat):
		return http.StatusUnprocessableEntity, "SHEET_INVALID_FORMAT"
	case errors.Is(err, app.ErrProductNotFound):
		return http.StatusNotFound, "PRODUCT_NOT_FOUND"
	case errors.Is(err, app.ErrSheetNotFound):
		return http.StatusNotFound, "SHEET_NOT_FOUND"
	case errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, app.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE"
	case errors.Is(err, app.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
