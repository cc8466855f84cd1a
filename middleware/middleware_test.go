package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("gw-secret", zap.NewNop(), "/healthz"))
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	user := app.Group("/user", UserContextMiddleware(zap.NewNop()))
	user.Get("/whoami", func(c *fiber.Ctx) error { return c.SendString(UserID(c)) })

	admin := app.Group("/s/admin", UserContextMiddleware(zap.NewNop()), RequireRole(RoleAdmin))
	admin.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	return app
}

func TestGatewayAuth(t *testing.T) {
	app := newApp()
	cases := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"health skips auth", "/healthz", "", fiber.StatusOK},
		{"missing header", "/user/whoami", "", fiber.StatusUnauthorized},
		{"wrong token", "/user/whoami", "Bearer nope", fiber.StatusUnauthorized},
		{"bearer token", "/user/whoami", "Bearer gw-secret", fiber.StatusOK},
		{"raw token", "/user/whoami", "gw-secret", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			req.Header.Set("X-User-ID", "climber-1")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestUserContextAndRoles(t *testing.T) {
	app := newApp()

	req := httptest.NewRequest("GET", "/user/whoami", nil)
	req.Header.Set("Authorization", "Bearer gw-secret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/s/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer gw-secret")
	req.Header.Set("X-User-ID", "climber-1")
	req.Header.Set("X-User-Roles", "user")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req.Header.Set("X-User-Roles", "user, admin")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
