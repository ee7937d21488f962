// Package handler provides the HTTP API of Truly.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/auth"
	"github.com/prn-tf/truly/internal/metrics"
)

// Router handles HTTP routing for the API.
type Router struct {
	authHandler      *AuthHandler
	messageHandler   *MessageHandler
	healthHandler    *HealthHandler
	sessionValidator auth.SessionValidator
	metrics          *metrics.Metrics
	maxBodySize      int64
	logger           zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	AuthHandler      *AuthHandler
	MessageHandler   *MessageHandler
	HealthHandler    *HealthHandler
	SessionValidator auth.SessionValidator
	Metrics          *metrics.Metrics
	MaxBodySize      int64
	Logger           zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	return &Router{
		authHandler:      config.AuthHandler,
		messageHandler:   config.MessageHandler,
		healthHandler:    config.HealthHandler,
		sessionValidator: config.SessionValidator,
		metrics:          config.Metrics,
		maxBodySize:      config.MaxBodySize,
		logger:           config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(rt.logger))
	r.Use(middleware.Recoverer)
	r.Use(rt.metrics.Middleware)
	r.Use(limitBody(rt.maxBodySize))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Response{Success: false, Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Success: false, Message: "method not allowed"})
	})

	// Health check (no auth)
	r.Get("/health", rt.healthHandler.Health)

	r.Route("/api", func(r chi.Router) {
		// Sessions are optional here; owner-scoped operations reject anonymous requests.
		r.Use(auth.Middleware(rt.sessionValidator, rt.logger))

		r.Post("/sign-up", rt.authHandler.SignUp)
		r.Post("/verify-code", rt.authHandler.VerifyCode)
		r.Get("/check-username-unique", rt.authHandler.CheckUsername)
		r.Post("/sign-in", rt.authHandler.SignIn)
		r.Post("/sign-out", rt.authHandler.SignOut)

		r.Post("/send-message", rt.messageHandler.SendMessage)
		r.Get("/get-messages", rt.messageHandler.GetMessages)
		r.Get("/accept-messages", rt.messageHandler.GetAcceptMessages)
		r.Post("/accept-messages", rt.messageHandler.SetAcceptMessages)
	})

	return r
}
