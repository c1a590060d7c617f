package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Router assembles the HTTP API.
type Router struct {
	accountHandler   *AccountHandler
	groupHandler     *GroupHandler
	hostHandler      *HostHandler
	emailHandler     *EmailHandler
	directoryHandler *DirectoryHandler
	metricsware      func(http.Handler) http.Handler
	logger           zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	AccountHandler   *AccountHandler
	GroupHandler     *GroupHandler
	HostHandler      *HostHandler
	EmailHandler     *EmailHandler
	DirectoryHandler *DirectoryHandler

	// MetricsMiddleware instruments requests when metrics are enabled.
	MetricsMiddleware func(http.Handler) http.Handler

	Logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	return &Router{
		accountHandler:   config.AccountHandler,
		groupHandler:     config.GroupHandler,
		hostHandler:      config.HostHandler,
		emailHandler:     config.EmailHandler,
		directoryHandler: config.DirectoryHandler,
		metricsware:      config.MetricsMiddleware,
		logger:           config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(RequestID)
	r.Use(RequestLogger(rt.logger))
	if rt.metricsware != nil {
		r.Use(rt.metricsware)
	}

	r.Get("/health", rt.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		rt.accountHandler.RegisterRoutes(r)
		rt.groupHandler.RegisterRoutes(r)
		rt.hostHandler.RegisterRoutes(r)
		rt.emailHandler.RegisterRoutes(r)
		rt.directoryHandler.RegisterRoutes(r)
	})

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
