// Package handler exposes the conversion dispatcher, quiz sessions, the
// study assistant and the admin API over HTTP.
package handler

import (
	"context"
	"crypto/rand"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"

	"github.com/tamkeen-edu/tamkeen/internal/convert"
	"github.com/tamkeen-edu/tamkeen/internal/convert/signvideo"
	"github.com/tamkeen-edu/tamkeen/internal/metrics"
	"github.com/tamkeen-edu/tamkeen/internal/model"
	"github.com/tamkeen-edu/tamkeen/internal/quiz"
	"github.com/tamkeen-edu/tamkeen/internal/store"
)

// Assistant answers study questions and analyses student performance.
type Assistant interface {
	ChatAbout(ctx context.Context, subject string, history []model.ChatMessage) (string, error)
	AnalyzePerformance(ctx context.Context, subject, answers string) (*model.PerformanceReport, error)
}

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services a Handler routes to. Store, Assistant, Signs and
// Metrics may be nil.
type Deps struct {
	Dispatcher *convert.Dispatcher
	Quizzes    *quiz.Registry
	Store      *store.Store
	Assistant  Assistant
	Signs      *signvideo.Table
	Metrics    *metrics.Metrics
	Checks     map[string]Pinger
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	dispatcher *convert.Dispatcher
	quizzes    *quiz.Registry
	store      *store.Store
	assistant  Assistant
	signs      *signvideo.Table
	metrics    *metrics.Metrics
	checks     map[string]Pinger

	cookies  *sessions.CookieStore
	validate *validator.Validate
	upgrader websocket.Upgrader
	limiter  *rateLimiter
}

// New creates a new Handler. Call Close when done to stop background work.
func New(cfg model.ServerConfig, deps Deps) *Handler {
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	checks := maps.Clone(deps.Checks)
	if checks == nil {
		checks = make(map[string]Pinger)
	}
	if deps.Store != nil {
		if _, ok := checks["database"]; !ok {
			checks["database"] = deps.Store
		}
	}
	perMin := cfg.LLMRatePerMin
	if perMin <= 0 {
		perMin = 10
	}
	return &Handler{
		dispatcher: deps.Dispatcher,
		quizzes:    deps.Quizzes,
		store:      deps.Store,
		assistant:  deps.Assistant,
		signs:      deps.Signs,
		metrics:    m,
		checks:     checks,
		cookies:    newCookieStore(cfg),
		validate:   newValidator(),
		upgrader:   buildUpgrader(cfg.AllowedOrigins),
		limiter:    newRateLimiter(perMin, time.Minute),
	}
}

// Close stops the rate limiter's cleanup goroutine.
func (h *Handler) Close() {
	h.limiter.Close()
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.surfaceMiddleware)

		r.Post("/convert", h.handleConvert)
		r.Post("/convert/stop", h.handleStop)
		r.Get("/convert/status", h.handleStatus)
		r.Get("/convert/events", h.handleEvents)

		r.Post("/extract", h.handleExtract)

		r.Post("/quiz", h.handleSynthesize)
		r.Get("/quiz", h.handleSnapshot)
		r.Post("/quiz/answers", h.handleAnswer)
		r.Post("/quiz/submit", h.handleSubmit)
		r.Post("/quiz/reset", h.handleReset)

		r.Group(func(r chi.Router) {
			r.Use(h.limiter.Middleware)
			r.Post("/chat", h.handleChat)
			r.Post("/analyze-performance", h.handleAnalyze)
		})
	})

	if h.store != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/sign-assets", h.handleListSignAssets)
			r.Get("/conversions", h.handleListConversions)
			r.Get("/quiz-results", h.handleListQuizResults)
			r.Get("/quiz-results/{resultID}", h.handleGetQuizResult)
			r.Get("/export", h.handleExport)
			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.RoleAdmin))
				r.Put("/sign-assets", h.handleImportSignAssets)
				r.Get("/users", h.handleListUsers)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
			})
		})
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			slog.Warn("health check failed", "check", name, "error", err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": results})
}

func newCookieStore(cfg model.ServerConfig) *sessions.CookieStore {
	key := []byte(cfg.CookieSecret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
		slog.Warn("no cookie secret configured, surfaces will not survive a restart")
	}
	cs := sessions.NewCookieStore(key)
	path := "/"
	if bp := strings.TrimRight(cfg.BasePath, "/"); bp != "" {
		path = bp + "/"
	}
	cs.Options = &sessions.Options{
		Path:     path,
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	return cs
}
