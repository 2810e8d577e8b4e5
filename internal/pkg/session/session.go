package session

import (
	"net"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/memoryrouter/dashboard/internal/pkg/cache"
	"github.com/memoryrouter/dashboard/internal/pkg/env"
	"github.com/memoryrouter/dashboard/internal/pkg/security"
)

// CookieName is the cookie browsers carry the access token in.
const CookieName = "session_token"

// Verifier is the part of security.TokenCodec the gateway needs.
type Verifier interface {
	VerifyKind(token string, kind security.TokenKind) (*security.SessionToken, bool)
}

// Gateway resolves the caller of a request from its session token.
type Gateway struct {
	verifier Verifier
}

func NewGateway(verifier Verifier) *Gateway {
	return &Gateway{verifier: verifier}
}

// Resolve looks for a bearer token first and falls back to the session
// cookie. Only access tokens authenticate; anything else is anonymous.
func (g *Gateway) Resolve(c *fiber.Ctx) (*security.SessionToken, bool) {
	token := BearerToken(c)
	if token == "" {
		token = strings.TrimSpace(c.Cookies(CookieName))
	}
	if token == "" {
		return nil, false
	}
	return g.verifier.VerifyKind(token, security.KindAccess)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// NewRedisStorage creates a fiber storage on the cache server's address using
// a separate database (the cache uses DB 0).
func NewRedisStorage(database int) *redis.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: database,
		Reset:    false,
	})
}
