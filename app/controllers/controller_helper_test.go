package controllers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixsuite/pixsuite/internal/pkg/usage"
)

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "first forwarded entry wins",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"},
			want:    "203.0.113.7",
		},
		{
			name:    "forwarded entry is trimmed",
			headers: map[string]string{"X-Forwarded-For": "  203.0.113.7  "},
			want:    "203.0.113.7",
		},
		{
			name:    "real ip header as fallback",
			headers: map[string]string{"X-Real-IP": "198.51.100.4"},
			want:    "198.51.100.4",
		},
		{
			name:    "forwarded beats real ip",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.4"},
			want:    "203.0.113.7",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := fiber.New()
			var got string
			app.Get("/", func(c *fiber.Ctx) error {
				got = GetClientIP(c)
				return c.SendStatus(fiber.StatusOK)
			})

			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnonCookieAttributes(t *testing.T) {
	app := fiber.New()
	app.Get("/set", func(c *fiber.Ctx) error {
		setAnonCookie(c, "tok-123")
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/clear", func(c *fiber.Ctx) error {
		clearAnonCookie(c)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/set", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	setCookie := resp.Header.Get("Set-Cookie")
	assert.Contains(t, setCookie, AnonCookieName+"=tok-123")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "SameSite=Lax")

	resp2, err := app.Test(httptest.NewRequest("GET", "/clear", nil))
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Contains(t, resp2.Header.Get("Set-Cookie"), AnonCookieName+"=")
}

func TestQuotaExceededResponseShape(t *testing.T) {
	app := fiber.New()
	app.Post("/consume", func(c *fiber.Ctx) error {
		return jsonQuotaExceeded(c, usage.Snapshot{
			UsageCount: 3,
			UsageLimit: 3,
			Plan:       "Free",
		}, "Free usage limit reached")
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/consume", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Free usage limit reached", body["error"])
	assert.Equal(t, float64(3), body["usageCount"])
	assert.Equal(t, float64(3), body["usageLimit"])
	assert.Equal(t, false, body["canUpload"])
	assert.Equal(t, "Free", body["plan"])
}
