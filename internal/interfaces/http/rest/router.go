// Package rest is the HTTP surface of the API.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/infrastructure/observability"
	"github.com/newtheatre/lumina/internal/interfaces/http/rest/handlers"
	"github.com/newtheatre/lumina/internal/interfaces/http/rest/middleware"
	"github.com/newtheatre/lumina/internal/service/health"
	"github.com/newtheatre/lumina/internal/service/member"
	"github.com/newtheatre/lumina/internal/service/submission"
)

// CORSConfig mirrors config.CORS.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// RouterConfig is everything the router needs that is not a service.
type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	WebhookSecret  string
	CORS           CORSConfig
	Tracing        bool
}

type Router struct {
	cfg         RouterConfig
	members     member.Service
	submissions submission.Service
	health      health.Service
	tokens      middleware.TokenValidator
	collector   *observability.Collector
	logger      *zap.Logger
}

// NewRouter builds the router. collector may be nil, which disables
// /metrics and request metrics.
func NewRouter(
	cfg RouterConfig,
	members member.Service,
	submissions submission.Service,
	healthSvc health.Service,
	tokens middleware.TokenValidator,
	collector *observability.Collector,
	logger *zap.Logger,
) *Router {
	return &Router{
		cfg:         cfg,
		members:     members,
		submissions: submissions,
		health:      healthSvc,
		tokens:      tokens,
		collector:   collector,
		logger:      logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger.Named("http")))
	if rt.cfg.Tracing {
		router.Use(observability.TracingMiddleware(rt.cfg.ServiceName))
	}
	if rt.collector != nil {
		router.Use(observability.MetricsMiddleware(rt.collector))
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORS.AllowedOrigins,
		AllowedMethods: rt.cfg.CORS.AllowedMethods,
		AllowedHeaders: rt.cfg.CORS.AllowedHeaders,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         rt.cfg.CORS.MaxAge,
	}))

	router.Get("/health", handlers.NewHealthHandler(rt.health).Check)
	if rt.collector != nil {
		router.Handle("/metrics", rt.collector.Handler())
	}

	// The webhook is verified by signature rather than a token, and GitHub
	// is not bound by the request timeout of browser clients.
	router.Post("/github/webhook", handlers.NewWebhookHandler(rt.submissions, rt.cfg.WebhookSecret, rt.logger).Handle)

	requireToken := middleware.RequireToken(rt.tokens, rt.logger)
	optionalToken := middleware.OptionalToken(rt.tokens, rt.logger)

	router.Group(func(r chi.Router) {
		if rt.cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(rt.cfg.RequestTimeout))
		}

		r.With(requireToken).Get("/auth/check", handlers.AuthCheck)

		r.Route("/member/{id}", func(r chi.Router) {
			h := handlers.NewMemberHandler(rt.members, rt.logger)
			r.Post("/", h.Register)
			r.Get("/check", h.Check)
			r.Post("/login", h.SendLoginLink)
			r.With(requireToken).Get("/", h.Read)
			r.With(requireToken).Put("/", h.Update)
			r.With(requireToken).Delete("/", h.Delete)
		})

		r.Route("/submissions", func(r chi.Router) {
			h := handlers.NewSubmissionHandler(rt.submissions, rt.members, rt.logger)
			r.Get("/member/{id}", h.ListForMember)
			r.Get("/member/{id}/stats", h.Stats)
			r.Get("/target/{type}/*", h.ListForTarget)
			r.With(optionalToken).Post("/message", h.CreateMessage)
		})
	})

	return router
}
