package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/linklit/LinkLit/internal/app/service"
	"github.com/linklit/LinkLit/internal/infra/prometheus"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger  *zap.Logger
	Links   service.LinkService
	Users   *service.UserService
	Billing *service.BillingService
	Quota   int
}

// APIHandler implements the JSON API endpoints.
type APIHandler struct {
	logger  *zap.Logger
	links   service.LinkService
	users   *service.UserService
	billing *service.BillingService
	quota   int
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:  logger,
		links:   deps.Links,
		users:   deps.Users,
		billing: deps.Billing,
		quota:   deps.Quota,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/:slug", h.GetLink)
			links.Post("/:slug/unlock", h.UnlockLink)
			links.Delete("/:slug", h.DeleteLink)
		}
		users := api.Group("/users")
		{
			users.Post("/", h.CreateUser)
			users.Get("/:id/links", h.ListUserLinks)
		}
		api.Post("/subscriptions/verify", h.VerifySubscription)
	}
}

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	URL      string `json:"url"`
	Password string `json:"password,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Slug     string `json:"slug,omitempty"`
	Expiry   string `json:"expiry,omitempty"`
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.URL == "" {
		return failure(c, fiber.StatusBadRequest, "Missing required fields")
	}

	created, err := h.links.Create(userContext(c), service.CreateLinkInput{
		URL:      req.URL,
		Password: req.Password,
		UserID:   req.UserID,
		Slug:     req.Slug,
		Expiry:   req.Expiry,
	})
	if err != nil {
		if errors.Is(err, service.ErrMaliciousLink) {
			prometheus.LinksBlocked.Inc()
		}
		h.logger.Warn("create link rejected", zap.Error(err))
		return failFromErr(c, err, h.quota)
	}

	prometheus.LinksCreated.Inc()

	return c.Status(fiber.StatusCreated).JSON(response{
		Status:  "success",
		Message: "Link created successfully",
		Link: linkPayload{
			ShortURL:    created.ShortURL,
			Slug:        created.Slug,
			IsProtected: created.IsProtected,
			CreatedAt:   created.CreatedAt,
			ExpiresAt:   created.ExpiresAt,
		},
	})
}

// GetLink handles GET /api/links/:slug. For protected links the destination
// field carries ciphertext; decryption is the caller's business.
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return failure(c, fiber.StatusBadRequest, "Slug is required")
	}

	link, err := h.links.Resolve(userContext(c), slug)
	if err != nil {
		return failFromErr(c, err, h.quota)
	}

	return c.JSON(response{
		Status:  "success",
		Message: "Link found",
		Link: linkPayload{
			Slug:        link.Slug,
			Destination: link.Destination,
			IsProtected: link.IsProtected,
			CreatedAt:   link.CreatedAt,
			ExpiresAt:   link.ExpiresAt,
		},
	})
}

// UnlockLinkRequest carries the password for a protected link.
type UnlockLinkRequest struct {
	Password string `json:"password"`
}

// UnlockLink handles POST /api/links/:slug/unlock
func (h *APIHandler) UnlockLink(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return failure(c, fiber.StatusBadRequest, "Slug is required")
	}

	var req UnlockLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}

	url, err := h.links.Unlock(userContext(c), slug, req.Password)
	if err != nil {
		return failFromErr(c, err, h.quota)
	}

	return c.JSON(response{
		Status:  "success",
		Message: "Link unlocked",
		URL:     url,
	})
}

// DeleteLinkRequest identifies the owner requesting removal.
type DeleteLinkRequest struct {
	UserID string `json:"userId"`
}

// DeleteLink handles DELETE /api/links/:slug
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	slug := c.Params("slug")
	var req DeleteLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if slug == "" || req.UserID == "" {
		return failure(c, fiber.StatusBadRequest, "Missing required fields")
	}

	if err := h.links.Delete(userContext(c), slug, req.UserID); err != nil {
		return failFromErr(c, err, h.quota)
	}
	return success(c, fiber.StatusOK, "Link deleted")
}

// CreateUserRequest bootstraps an account record for a verified identity.
type CreateUserRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// CreateUser handles POST /api/users. Idempotent: repeat calls are no-ops.
func (h *APIHandler) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}

	created, err := h.users.Register(userContext(c), req.UserID, req.Email, req.Name)
	if err != nil {
		h.logger.Error("failed to create user record", zap.Error(err))
		return failFromErr(c, err, h.quota)
	}

	if created {
		return success(c, fiber.StatusCreated, "User created")
	}
	return success(c, fiber.StatusOK, "User already exists")
}

// ListUserLinks handles GET /api/users/:id/links
func (h *APIHandler) ListUserLinks(c *fiber.Ctx) error {
	userID := c.Params("id")
	if userID == "" {
		return failure(c, fiber.StatusBadRequest, "User id is required")
	}

	owned, err := h.links.ListOwned(userContext(c), userID)
	if err != nil {
		h.logger.Error("failed to list user links", zap.Error(err), zap.String("user_id", userID))
		return failFromErr(c, err, h.quota)
	}

	payload := make([]linkPayload, len(owned))
	for i, entry := range owned {
		payload[i] = linkPayload{
			Slug:      entry.Slug,
			CreatedAt: entry.CreatedAt,
			ExpiresAt: entry.ExpiresAt,
		}
	}

	return c.JSON(response{
		Status:  "success",
		Message: "Links found",
		Links:   payload,
	})
}

// VerifySubscriptionRequest triggers a pull-based subscription sync.
type VerifySubscriptionRequest struct {
	SubscriptionID string `json:"subscriptionId"`
	UserID         string `json:"userId"`
}

// VerifySubscription handles POST /api/subscriptions/verify
func (h *APIHandler) VerifySubscription(c *fiber.Ctx) error {
	var req VerifySubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.SubscriptionID == "" || req.UserID == "" {
		return failure(c, fiber.StatusBadRequest, "Missing required parameters")
	}

	if err := h.billing.VerifySubscription(userContext(c), req.SubscriptionID, req.UserID); err != nil {
		h.logger.Error("subscription verification failed",
			zap.Error(err),
			zap.String("subscription_id", req.SubscriptionID))
		return failFromErr(c, err, h.quota)
	}
	return success(c, fiber.StatusOK, "Subscription verified")
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
