package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRequest(t *testing.T, cfg HeadersConfig) http.Header {
	t.Helper()

	app := fiber.New()
	app.Use(HeadersMiddleware(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.Header
}

func TestHeadersDenyEmbeddingAndSniffing(t *testing.T) {
	headers := runRequest(t, HeadersConfig{})

	assert.Equal(t, "DENY", headers.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", headers.Get("Cache-Control"))

	csp := headers.Get("Content-Security-Policy")
	assert.Contains(t, csp, "default-src 'none'")
	assert.Contains(t, csp, "frame-ancestors 'none'")
	assert.Contains(t, csp, "connect-src 'self'")
}

func TestHeadersIncludeAllowedOrigins(t *testing.T) {
	headers := runRequest(t, HeadersConfig{
		AllowedOrigins: []string{"https://tutor.example.com"},
	})

	assert.Contains(t, headers.Get("Content-Security-Policy"),
		"connect-src 'self' https://tutor.example.com")
}

func TestHSTSOnlyOutsideDevelopment(t *testing.T) {
	prod := runRequest(t, HeadersConfig{})
	dev := runRequest(t, HeadersConfig{IsDevelopment: true})

	assert.NotEmpty(t, prod.Get("Strict-Transport-Security"))
	assert.Empty(t, dev.Get("Strict-Transport-Security"))
}
