package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/memoryrouter/dashboard/internal/pkg/config"
)

// TokenKind distinguishes access from refresh tokens. It is part of the signed
// payload and never changes after issue.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// ProfileFields are cached in access tokens so authenticated requests do not
// need a user store lookup. They may be stale for up to the token TTL.
type ProfileFields struct {
	DisplayName         string `json:"name,omitempty"`
	AvatarURL           string `json:"avatar,omitempty"`
	InternalID          string `json:"iid,omitempty"`
	OnboardingCompleted bool   `json:"onboarded,omitempty"`
}

// SessionToken is the verified content of a token.
type SessionToken struct {
	ID        string
	UserID    string
	Email     string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
	Profile   ProfileFields
}

type sessionClaims struct {
	Email string    `json:"email"`
	Kind  TokenKind `json:"kind"`
	ProfileFields
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies session tokens with HS256.
type TokenCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenCodec(cfg config.TokenConfig) (*TokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token signing secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	secret := append([]byte(nil), cfg.Secret...)
	return &TokenCodec{
		secret:     secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock returns a copy of the codec that reads time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

func (c *TokenCodec) IssueAccessToken(userID, email string, profile ProfileFields) (string, error) {
	return c.issue(userID, email, KindAccess, c.accessTTL, profile)
}

func (c *TokenCodec) IssueRefreshToken(userID, email string) (string, error) {
	return c.issue(userID, email, KindRefresh, c.refreshTTL, ProfileFields{})
}

// AccessTTL is exposed so handlers can set cookie lifetimes consistently.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *TokenCodec) issue(userID, email string, kind TokenKind, ttl time.Duration, profile ProfileFields) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	// JWT timestamps have second precision; truncating keeps exp-iat exact.
	issuedAt := c.now().Truncate(time.Second)
	claims := sessionClaims{
		Email:         email,
		Kind:          kind,
		ProfileFields: profile,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature and expiry. Every failure yields (nil, false); the
// caller treats that as unauthenticated.
func (c *TokenCodec) Verify(token string) (*SessionToken, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, options...)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, false
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, false
	}

	return &SessionToken{
		ID:        claims.ID,
		UserID:    claims.Subject,
		Email:     claims.Email,
		Kind:      claims.Kind,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Profile:   claims.ProfileFields,
	}, true
}

// VerifyKind is Verify restricted to a single token kind.
func (c *TokenCodec) VerifyKind(token string, kind TokenKind) (*SessionToken, bool) {
	st, ok := c.Verify(token)
	if !ok || st.Kind != kind {
		return nil, false
	}
	return st, true
}
