// Package auth issues and rotates session token pairs for dashboard users.
// Refresh tokens are stored only as hashes; a refresh token that verifies but
// is no longer stored is treated as stolen and revokes every session of its
// user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/memoryrouter/dashboard/app/models"
	"github.com/memoryrouter/dashboard/app/repository"
	"github.com/memoryrouter/dashboard/internal/pkg/security"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrEmailTaken          = errors.New("email already registered")
	ErrAccountDisabled     = errors.New("account disabled")
)

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type Service struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	codec  *security.TokenCodec
	now    func() time.Time
}

func NewService(users repository.UserRepository, tokens repository.RefreshTokenRepository, codec *security.TokenCodec) *Service {
	return &Service{users: users, tokens: tokens, codec: codec, now: time.Now}
}

// Register creates an active user. The password must be at least 8
// characters; the email must be unused.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	user, err := models.CreateUser(name, email, password)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, user.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	log.Infof("[Auth] registered user %s", user.ID)
	return user, nil
}

// Login checks the credentials and issues a new token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.CheckPassword(password) {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, nil, ErrAccountDisabled
	}

	pair, refreshRow, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	if err := s.tokens.Create(ctx, refreshRow); err != nil {
		return nil, nil, fmt.Errorf("store refresh token: %w", err)
	}
	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		log.Warnf("[Auth] failed to update last login for %s: %v", user.ID, err)
	}
	return pair, user, nil
}

// Refresh exchanges a stored refresh token for a new pair. The presented
// token is consumed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	st, ok := s.codec.VerifyKind(refreshToken, security.KindRefresh)
	if !ok {
		return nil, ErrInvalidRefreshToken
	}

	hash := security.HashForStorage(refreshToken)
	if _, err := s.tokens.FindByHash(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.revokeAll(ctx, st.UserID)
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	user, err := s.users.GetByID(ctx, st.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive() {
		s.revokeAll(ctx, user.ID)
		return nil, ErrAccountDisabled
	}

	pair, next, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	rotated, err := s.tokens.Rotate(ctx, hash, next)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !rotated {
		// Lost a race with another refresh of the same token.
		s.revokeAll(ctx, user.ID)
		return nil, ErrInvalidRefreshToken
	}
	return pair, nil
}

// Logout forgets the refresh token. Unknown or invalid tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	if err := s.tokens.DeleteByHash(ctx, security.HashForStorage(refreshToken)); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// Me returns the stored user behind an authenticated request.
func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) issuePair(user *models.User) (*TokenPair, *models.RefreshToken, error) {
	access, err := s.codec.IssueAccessToken(user.ID, user.Email, profileOf(user))
	if err != nil {
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.IssueRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("issue refresh token: %w", err)
	}
	st, ok := s.codec.VerifyKind(refresh, security.KindRefresh)
	if !ok {
		return nil, nil, errors.New("issued refresh token does not verify")
	}
	accessExp := s.now().Add(s.codec.AccessTTL())

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp},
		&models.RefreshToken{
			UserID:    user.ID,
			TokenHash: security.HashForStorage(refresh),
			ExpiresAt: st.ExpiresAt,
		}, nil
}

func (s *Service) revokeAll(ctx context.Context, userID string) {
	n, err := s.tokens.DeleteByUser(ctx, userID)
	if err != nil {
		log.Errorf("[Auth] failed to revoke refresh tokens of %s: %v", userID, err)
		return
	}
	log.Warnf("[Auth] refresh token reuse for user %s; revoked %d sessions", userID, n)
}

func profileOf(user *models.User) security.ProfileFields {
	return security.ProfileFields{
		DisplayName:         user.Name,
		AvatarURL:           user.AvatarURL,
		InternalID:          user.InternalID,
		OnboardingCompleted: user.OnboardingCompleted,
	}
}
