// Package api exposes the strip engine over HTTP: read endpoints for strips
// and flights, the telemetry ingest endpoint the radar client posts to, and
// the operator actions (moves, gaps, flags) the strip display issues.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vatefs/efsd/internal/config"
	"github.com/vatefs/efsd/internal/feed"
	"github.com/vatefs/efsd/internal/flight"
	"github.com/vatefs/efsd/internal/websocket"
	"github.com/vatefs/efsd/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(machine *flight.Machine, dispatcher *feed.Dispatcher, wsServer *websocket.Server, config *config.Config, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(machine, dispatcher, wsServer, config, logger),
		middleware: NewMiddleware(logger),
		config:     config,
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Telemetry ingest from the radar client
		router.Post("/telemetry", r.handler.PostTelemetry)

		// Strip routes
		router.Get("/strips", r.handler.GetAllStrips)
		router.Post("/strips/{callsign}/move", r.handler.MoveStrip)
		router.Get("/gaps", r.handler.GetGaps)
		router.Post("/gaps", r.handler.SetGap)

		// Flight routes
		router.Get("/flights", r.handler.GetAllFlights)
		router.Get("/flights/{callsign}", r.handler.GetFlightByCallsign)
		router.Post("/flights/{callsign}/flags", r.handler.SetFlightFlags)

		// Role coverage
		router.Get("/coverage", r.handler.GetCoverage)

		// WebSocket route
		router.Get("/ws", r.handler.HandleWebSocket)

		// Health check
		router.Get("/health", r.handler.GetHealth)

		// Configuration
		router.Get("/config", r.handler.GetConfig)
	})

	return router
}
