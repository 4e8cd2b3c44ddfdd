package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/linklit/LinkLit/internal/app/service"
	"github.com/linklit/LinkLit/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Pinger reports storage reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedirectDeps groups dependencies required by the redirect handler.
type RedirectDeps struct {
	Logger *zap.Logger
	Links  service.LinkService
	DB     Pinger
	Quota  int
}

// RedirectHandler serves the public short-link routes.
type RedirectHandler struct {
	logger *zap.Logger
	links  service.LinkService
	db     Pinger
	quota  int
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger: logger,
		links:  deps.Links,
		db:     deps.DB,
		quota:  deps.Quota,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:slug", h.Resolve)
}

// Health reports liveness plus storage reachability when a pinger is wired.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	code := fiber.StatusOK
	if h.db != nil {
		if err := h.db.Ping(c.Context()); err != nil {
			h.logger.Error("health check storage ping failed", zap.Error(err))
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"service": "LinkLit",
		"status":  status,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:slug. Plain links redirect straight through; for
// protected links the ciphertext is returned so the client can collect the
// password and decode — never a server-side guess.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return failure(c, fiber.StatusBadRequest, "Slug is required")
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	link, err := h.links.Resolve(ctx, slug)
	if err != nil {
		return failFromErr(c, err, h.quota)
	}

	prometheus.LinksResolved.Inc()

	if link.IsProtected {
		return c.JSON(response{
			Status:  "success",
			Message: "Password required",
			Link: linkPayload{
				Slug:        link.Slug,
				Destination: link.Destination,
				IsProtected: true,
				CreatedAt:   link.CreatedAt,
				ExpiresAt:   link.ExpiresAt,
			},
		})
	}

	h.logger.Debug("redirecting short link",
		zap.String("slug", slug),
		zap.String("target", link.Destination))
	return c.Redirect(link.Destination, fiber.StatusFound)
}
