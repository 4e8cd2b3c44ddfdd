package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/linklit/LinkLit/config"
	"github.com/linklit/LinkLit/internal/app/model"
	"github.com/linklit/LinkLit/internal/app/repository"
	"github.com/linklit/LinkLit/internal/app/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUserRepo struct {
	users map[string]*model.User
	set   int
}

func (s *stubUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (s *stubUserRepo) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	return true, nil
}

func (s *stubUserRepo) SetSubscription(ctx context.Context, userID string, sub model.Subscription, isSubscribed bool) error {
	s.set++
	return nil
}

func (s *stubUserRepo) Deactivate(ctx context.Context, userID string, record *model.PaymentRecord) error {
	return nil
}

func newWebhookTestApp(users *stubUserRepo, secret string) *fiber.App {
	billing := service.NewBillingService(config.BillingConfig{WebhookSecret: secret}, users, nil, nil)
	app := fiber.New()
	NewWebhookHandler(WebhookDeps{Billing: billing}).Register(app)
	return app
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestHandleBilling_BadSignature(t *testing.T) {
	app := newWebhookTestApp(&stubUserRepo{}, "wh-secret")
	body := []byte(`{"type":"subscription.created"}`)

	resp := postWebhook(t, app, body, "deadbeef")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = postWebhook(t, app, body, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestHandleBilling_MalformedPayload(t *testing.T) {
	app := newWebhookTestApp(&stubUserRepo{}, "wh-secret")
	body := []byte(`this is not json`)

	resp := postWebhook(t, app, body, signBody("wh-secret", body))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleBilling_Activation(t *testing.T) {
	users := &stubUserRepo{users: map[string]*model.User{"user-1": {ID: "user-1"}}}
	app := newWebhookTestApp(users, "wh-secret")
	body := []byte(`{"type":"subscription.activated","data":{"id":"sub-1","external_customer_id":"user-1"}}`)

	resp := postWebhook(t, app, body, signBody("wh-secret", body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, users.set)
}

func TestHandleBilling_UnknownUserStillAcked(t *testing.T) {
	app := newWebhookTestApp(&stubUserRepo{}, "wh-secret")
	body := []byte(`{"type":"subscription.activated","data":{"external_customer_id":"ghost"}}`)

	resp := postWebhook(t, app, body, signBody("wh-secret", body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
