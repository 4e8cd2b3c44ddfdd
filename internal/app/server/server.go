package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linklit/LinkLit/internal/app/service"
	inthttp "github.com/linklit/LinkLit/internal/http/handler"
	"github.com/linklit/LinkLit/internal/http/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs.
type Dependencies struct {
	Logger       *zap.Logger
	Postgres     *pgxpool.Pool
	Redis        *redis.Client
	Links        service.LinkService
	Users        *service.UserService
	Billing      *service.BillingService
	QuotaCeiling int
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New()

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.CORS())

	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.RateLimitConfig{
			MaxRequests: 120,
			Window:      time.Minute,
			KeyPrefix:   "ratelimit",
		}, s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:  s.deps.Logger,
		Links:   s.deps.Links,
		Users:   s.deps.Users,
		Billing: s.deps.Billing,
		Quota:   s.deps.QuotaCeiling,
	})
	apiHandler.Register(s.app)

	webhookHandler := inthttp.NewWebhookHandler(inthttp.WebhookDeps{
		Logger:  s.deps.Logger,
		Billing: s.deps.Billing,
	})
	webhookHandler.Register(s.app)

	var db inthttp.Pinger
	if s.deps.Postgres != nil {
		db = s.deps.Postgres
	}

	// Registered last: the catch-all /:slug route must not shade /api.
	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger: s.deps.Logger,
		Links:  s.deps.Links,
		DB:     db,
		Quota:  s.deps.QuotaCeiling,
	})
	redirectHandler.Register(s.app)
}
