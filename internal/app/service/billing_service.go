package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/linklit/LinkLit/config"
	"github.com/linklit/LinkLit/internal/app/model"
	"github.com/linklit/LinkLit/internal/app/repository"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSignature rejects webhook payloads failing HMAC verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent rejects payloads that verified but cannot be decoded.
	ErrMalformedEvent = errors.New("malformed webhook payload")
	// ErrProviderUnavailable signals the billing API could not be reached.
	ErrProviderUnavailable = errors.New("billing provider unavailable")
)

// WebhookEvent is the provider's event envelope. User resolution tries the
// nested subscription reference first, then the flat fields, mirroring the
// provider's inconsistent payload shapes across event families.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ID                 string            `json:"id"`
		ProductID          string            `json:"product_id"`
		CustomerID         string            `json:"customer_id"`
		ExternalCustomerID string            `json:"external_customer_id"`
		Metadata           map[string]string `json:"metadata"`
		Subscription       *struct {
			ID                 string `json:"id"`
			ProductID          string `json:"product_id"`
			ExternalCustomerID string `json:"external_customer_id"`
		} `json:"subscription"`
	} `json:"data"`
}

// UserID resolves the event to an account reference, empty when none exists.
func (e *WebhookEvent) UserID() string {
	if e.Data.Subscription != nil && e.Data.Subscription.ExternalCustomerID != "" {
		return e.Data.Subscription.ExternalCustomerID
	}
	if e.Data.ExternalCustomerID != "" {
		return e.Data.ExternalCustomerID
	}
	if id := e.Data.Metadata["userId"]; id != "" {
		return id
	}
	return e.Data.CustomerID
}

// SubscriptionID resolves the subscription reference carried by the event.
func (e *WebhookEvent) SubscriptionID() string {
	if e.Data.Subscription != nil && e.Data.Subscription.ID != "" {
		return e.Data.Subscription.ID
	}
	return e.Data.ID
}

// PlanID resolves the plan/product reference carried by the event.
func (e *WebhookEvent) PlanID() string {
	if e.Data.ProductID != "" {
		return e.Data.ProductID
	}
	if e.Data.Subscription != nil {
		return e.Data.Subscription.ProductID
	}
	return ""
}

// subscriptionStatus is the provider's REST shape for one subscription.
type subscriptionStatus struct {
	Status      string `json:"status"`
	PlanID      string `json:"plan_id"`
	StartTime   string `json:"start_time"`
	BillingInfo struct {
		LastPayment struct {
			Time string `json:"time"`
		} `json:"last_payment"`
		NextBillingTime string `json:"next_billing_time"`
	} `json:"billing_info"`
}

// BillingService consumes verified webhook events and drives the per-user
// subscription state machine: NONE → ACTIVE ⇄ INACTIVE. It also offers a
// pull-based verification path against the provider API.
type BillingService struct {
	users  repository.UserRepository
	client *resty.Client
	secret []byte
	events *EventPublisher
	logger *zap.Logger
}

// NewBillingService builds the billing integration from config.
func NewBillingService(cfg config.BillingConfig, users repository.UserRepository, events *EventPublisher, logger *zap.Logger) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(cfg.APIBase).
		SetBasicAuth(cfg.ClientID, cfg.ClientSecret).
		SetTimeout(30 * time.Second)

	return &BillingService{
		users:  users,
		client: client,
		secret: []byte(cfg.WebhookSecret),
		events: events,
		logger: logger,
	}
}

// VerifyWebhook checks the HMAC-SHA256 hex signature over the raw body.
// Payloads never reach the state machine without passing here first.
func (s *BillingService) VerifyWebhook(rawBody []byte, signature string) error {
	if len(s.secret) == 0 || signature == "" {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// HandleEvent applies one verified event. Events without a resolvable user
// are logged and swallowed so the provider does not retry forever; replays of
// the same event are safe.
func (s *BillingService) HandleEvent(ctx context.Context, rawBody []byte) error {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil || event.Type == "" {
		return ErrMalformedEvent
	}

	userID := event.UserID()
	if userID == "" {
		s.logger.Warn("webhook without resolvable user", zap.String("type", event.Type))
		return nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Warn("webhook for unknown user",
				zap.String("user_id", userID),
				zap.String("type", event.Type))
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	now := time.Now()

	switch event.Type {
	case "subscription.created", "subscription.activated", "subscription.renewed":
		sub := model.Subscription{
			SubscriptionID:   event.SubscriptionID(),
			Status:           model.SubscriptionActive,
			PlanID:           event.PlanID(),
			StartPaymentTime: &now,
			LastPaymentTime:  &now,
		}
		if err := s.users.SetSubscription(ctx, userID, sub, true); err != nil {
			return fmt.Errorf("activate subscription: %w", err)
		}
		s.publish(model.EventSubActivated, userID)
		s.logger.Info("subscription activated",
			zap.String("user_id", userID),
			zap.String("subscription_id", sub.SubscriptionID))

	case "subscription.canceled", "subscription.expired", "subscription.revoked":
		var record *model.PaymentRecord
		if user.HasSubscription() {
			record = &model.PaymentRecord{
				UserID:           userID,
				SubscriptionID:   user.Subscription.SubscriptionID,
				Status:           user.Subscription.Status,
				PlanID:           user.Subscription.PlanID,
				StartPaymentTime: user.Subscription.StartPaymentTime,
				LastPaymentTime:  user.Subscription.LastPaymentTime,
				NextPaymentTime:  user.Subscription.NextPaymentTime,
				ArchivedAt:       now,
			}
		}
		if err := s.users.Deactivate(ctx, userID, record); err != nil {
			return fmt.Errorf("deactivate subscription: %w", err)
		}
		s.publish(model.EventSubDeactivated, userID)
		s.logger.Info("subscription deactivated", zap.String("user_id", userID))

	default:
		// Unrelated event families are acknowledged without mutation.
		s.logger.Debug("ignoring webhook event", zap.String("type", event.Type))
	}

	return nil
}

// VerifySubscription pulls the authoritative subscription state from the
// provider and updates the user record. Manual-sync fallback beside webhooks.
func (s *BillingService) VerifySubscription(ctx context.Context, subscriptionID, userID string) error {
	var status subscriptionStatus
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&status).
		Get(fmt.Sprintf("/v1/subscriptions/%s", subscriptionID))
	if err != nil {
		s.logger.Error("billing API request failed", zap.Error(err))
		return ErrProviderUnavailable
	}
	if resp.IsError() {
		s.logger.Error("billing API returned error status",
			zap.Int("status", resp.StatusCode()),
			zap.String("subscription_id", subscriptionID))
		return ErrProviderUnavailable
	}

	sub := model.Subscription{
		SubscriptionID:   subscriptionID,
		Status:           status.Status,
		PlanID:           status.PlanID,
		StartPaymentTime: parseProviderTime(status.StartTime),
		LastPaymentTime:  parseProviderTime(status.BillingInfo.LastPayment.Time),
		NextPaymentTime:  parseProviderTime(status.BillingInfo.NextBillingTime),
	}

	active := status.Status == model.SubscriptionActive
	if err := s.users.SetSubscription(ctx, userID, sub, active); err != nil {
		return fmt.Errorf("store verified subscription: %w", err)
	}

	if active {
		s.publish(model.EventSubActivated, userID)
	}
	return nil
}

func (s *BillingService) publish(eventType, userID string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(eventType, "", userID); err != nil {
		s.logger.Warn("failed to publish billing event",
			zap.String("type", eventType),
			zap.Error(err))
	}
}

func parseProviderTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}
