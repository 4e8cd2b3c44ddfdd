package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func TestRequestID_Generated(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	var sawLocal bool
	app.Get("/", func(c *fiber.Ctx) error {
		_, sawLocal = c.Locals("request_id").(string)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if !sawLocal {
		t.Fatal("expected request_id in locals")
	}

	rid := resp.Header.Get(RequestIDHeader)
	if _, err := uuid.Parse(rid); err != nil {
		t.Fatalf("expected a UUID request id, got %q", rid)
	}
}

func TestRequestID_CallerSuppliedKept(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}

	if got := resp.Header.Get(RequestIDHeader); got != "upstream-id" {
		t.Fatalf("expected the caller's id to survive, got %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	app := fiber.New()
	app.Use(CORS())
	app.Post("/api/links", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/links", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}

	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected wildcard CORS origin")
	}
}
