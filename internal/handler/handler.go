package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/pavelanni/feedback/internal/feedback"
	"github.com/pavelanni/feedback/internal/metrics"
	"github.com/pavelanni/feedback/internal/model"
	"github.com/pavelanni/feedback/internal/report"
	"github.com/pavelanni/feedback/internal/store"
	"github.com/pavelanni/feedback/internal/validate"
)

// Config holds HTTP-layer settings.
type Config struct {
	BasePath      string
	SecureCookies bool
	// SubmitRate and SubmitBurst limit feedback submissions and logins per client IP.
	SubmitRate  rate.Limit
	SubmitBurst int
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	feedback *feedback.Service
	reports  *report.Service
	config   Config

	submitLimiter *ipLimiter
	loginLimiter  *ipLimiter
}

// New creates a new Handler.
func New(s *store.Store, fb *feedback.Service, rep *report.Service, cfg Config) *Handler {
	if cfg.SubmitRate == 0 {
		cfg.SubmitRate = rate.Limit(1)
	}
	if cfg.SubmitBurst == 0 {
		cfg.SubmitBurst = 5
	}
	return &Handler{
		store:         s,
		feedback:      fb,
		reports:       rep,
		config:        cfg,
		submitLimiter: newIPLimiter(cfg.SubmitRate, cfg.SubmitBurst),
		loginLimiter:  newIPLimiter(cfg.SubmitRate, cfg.SubmitBurst),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Get("/csrf", h.handleCSRF)
		r.With(h.loginLimiter.middleware).Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.visitorMiddleware)
			r.Get("/feedback/{targetID}", h.handleBeginFeedback)
			r.Get("/feedback/teacher/{teacherID}", h.handleBeginTeacherFeedback)
			r.With(h.submitLimiter.middleware).Post("/feedback/{targetID}", h.handleSubmitFeedback)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/me", h.handleMe)

			r.Route("/reports", func(r chi.Router) {
				r.Get("/submissions", h.handleSubmissionsReport)
				r.Get("/questions", h.handleQuestionsReport)
				r.Get("/ratings", h.handleRatingsReport)
				r.Get("/digest/{targetID}", h.handleDigest)
			})

			r.Route("/admin", h.adminRoutes)
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.QuestionCount(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		if fields := validate.Fields(err); fields != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": fields})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// storeError maps store errors to responses; anything unexpected is logged
// and reported as a generic failure.
func storeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, store.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, "refers to a missing record")
	default:
		slog.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func urlID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+strings.TrimSuffix(name, "ID")+" ID")
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive integer query parameter.
func queryID(r *http.Request, name string) (*int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New("invalid " + name)
	}
	return &id, nil
}
