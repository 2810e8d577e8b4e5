package session

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryrouter/dashboard/internal/pkg/config"
	"github.com/memoryrouter/dashboard/internal/pkg/security"
)

func newTestCodec(t *testing.T) *security.TokenCodec {
	t.Helper()
	codec, err := security.NewTokenCodec(config.TokenConfig{
		Secret:     []byte("gateway-test-secret"),
		Issuer:     "dashboard",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return codec
}

func resolveApp(gw *Gateway) *fiber.App {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		st, ok := gw.Resolve(c)
		if !ok {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.SendString(st.UserID)
	})
	return app
}

func TestGatewayResolve(t *testing.T) {
	codec := newTestCodec(t)
	gw := NewGateway(codec)
	app := resolveApp(gw)

	access, err := codec.IssueAccessToken("u1", "u1@example.com", security.ProfileFields{})
	require.NoError(t, err)
	refresh, err := codec.IssueRefreshToken("u1", "u1@example.com")
	require.NoError(t, err)
	other, err := codec.IssueAccessToken("u2", "u2@example.com", security.ProfileFields{})
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		cookie     string
		wantStatus int
		wantUser   string
	}{
		{name: "bearer", header: "Bearer " + access, wantStatus: fiber.StatusOK, wantUser: "u1"},
		{name: "lowercase scheme", header: "bearer " + access, wantStatus: fiber.StatusOK, wantUser: "u1"},
		{name: "cookie", cookie: access, wantStatus: fiber.StatusOK, wantUser: "u1"},
		{name: "bearer wins over cookie", header: "Bearer " + other, cookie: access, wantStatus: fiber.StatusOK, wantUser: "u2"},
		{name: "refresh token rejected", header: "Bearer " + refresh, wantStatus: fiber.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", wantStatus: fiber.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: fiber.StatusUnauthorized},
		{name: "none", wantStatus: fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.Header.Set("Cookie", CookieName+"="+tt.cookie)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantUser != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, tt.wantUser, string(body))
			}
		})
	}
}
