package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/linklit/LinkLit/internal/app/service"
	"github.com/linklit/LinkLit/internal/infra/prometheus"
	"go.uber.org/zap"
)

// SignatureHeader carries the provider's HMAC hex digest over the raw body.
const SignatureHeader = "X-Billing-Signature"

// WebhookDeps groups dependencies required by the webhook handler.
type WebhookDeps struct {
	Logger  *zap.Logger
	Billing *service.BillingService
}

// WebhookHandler terminates billing webhooks at the boundary: verification
// failures never reach the state machine.
type WebhookHandler struct {
	logger  *zap.Logger
	billing *service.BillingService
}

// NewWebhookHandler creates a webhook handler with the provided dependencies.
func NewWebhookHandler(deps WebhookDeps) *WebhookHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{logger: logger, billing: deps.Billing}
}

// Register wires webhook routes onto the provided router.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Post("/webhooks/billing", h.HandleBilling)
}

// HandleBilling handles POST /webhooks/billing: 403 on signature mismatch,
// 400 on a verified-but-unreadable payload, 200 otherwise (including no-ops).
func (h *WebhookHandler) HandleBilling(c *fiber.Ctx) error {
	rawBody := c.Body()
	signature := c.Get(SignatureHeader)

	if err := h.billing.VerifyWebhook(rawBody, signature); err != nil {
		prometheus.WebhooksRejected.Inc()
		h.logger.Error("rejected billing webhook signature")
		return c.SendStatus(fiber.StatusForbidden)
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := h.billing.HandleEvent(ctx, rawBody); err != nil {
		if errors.Is(err, service.ErrMalformedEvent) {
			h.logger.Error("malformed billing webhook payload")
			return c.SendStatus(fiber.StatusBadRequest)
		}
		// Store-level failures return 500 so the provider retries later.
		h.logger.Error("failed to process billing webhook", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusOK)
}
