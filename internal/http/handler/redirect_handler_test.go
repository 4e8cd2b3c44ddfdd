package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/linklit/LinkLit/internal/app/model"
	"github.com/linklit/LinkLit/internal/app/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedirectTestApp(links *stubLinkService) *fiber.App {
	app := fiber.New()
	NewRedirectHandler(RedirectDeps{Links: links, Quota: 5}).Register(app)
	return app
}

func TestResolve_Redirects(t *testing.T) {
	app := newRedirectTestApp(&stubLinkService{
		resolveFn: func(ctx context.Context, slug string) (*model.Link, error) {
			assert.Equal(t, "abc", slug)
			return &model.Link{Slug: slug, Destination: "https://example.com/landing"}, nil
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.com/landing", resp.Header.Get("Location"))
}

func TestResolve_ProtectedReturnsCiphertext(t *testing.T) {
	app := newRedirectTestApp(&stubLinkService{
		resolveFn: func(ctx context.Context, slug string) (*model.Link, error) {
			return &model.Link{Slug: slug, Destination: "opaque-ciphertext", IsProtected: true}, nil
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeResponse(t, resp)
	assert.Equal(t, "Password required", payload["message"])
	link := payload["link"].(map[string]interface{})
	assert.Equal(t, "opaque-ciphertext", link["destination"])
	assert.Equal(t, true, link["isProtected"])
}

func TestResolve_Missing(t *testing.T) {
	app := newRedirectTestApp(&stubLinkService{
		resolveFn: func(ctx context.Context, slug string) (*model.Link, error) {
			return nil, repository.ErrLinkNotFound
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app := newRedirectTestApp(&stubLinkService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeResponse(t, resp)
	assert.Equal(t, "ok", payload["status"])
}
