package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/memoryrouter/dashboard/app/models"
	"github.com/memoryrouter/dashboard/app/repository"
	"github.com/memoryrouter/dashboard/internal/pkg/auth"
	"github.com/memoryrouter/dashboard/internal/pkg/session"
	"github.com/memoryrouter/dashboard/internal/pkg/usercontext"
)

// AuthService is implemented by auth.Service.
type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*auth.TokenPair, *models.User, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID string) (*models.User, error)
}

type AuthController struct {
	svc          AuthService
	secureCookie bool
}

func NewAuthController(svc AuthService, secureCookie bool) *AuthController {
	return &AuthController{svc: svc, secureCookie: secureCookie}
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	AvatarURL           string     `json:"avatarUrl"`
	OnboardingCompleted bool       `json:"onboardingCompleted"`
	LastLoginAt         *time.Time `json:"lastLoginAt"`
	CreatedAt           time.Time  `json:"createdAt"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:                  u.ID,
		Name:                u.Name,
		Email:               u.Email,
		AvatarURL:           u.AvatarURL,
		OnboardingCompleted: u.OnboardingCompleted,
		LastLoginAt:         u.LastLoginAt,
		CreatedAt:           u.CreatedAt,
	}
}

// HandleRegister creates an account. It does not log the user in.
func (ac *AuthController) HandleRegister(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_json", "request body must be a JSON object")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := ac.svc.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		var verrs validator.ValidationErrors
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			return jsonError(c, fiber.StatusConflict, "email_taken", "email already registered")
		case errors.Is(err, models.ErrPasswordTooShort):
			return jsonError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
		case errors.As(err, &verrs):
			return jsonError(c, fiber.StatusBadRequest, "validation_failed", "invalid "+strings.ToLower(verrs[0].Field()))
		}
		log.Errorf("[Auth] register failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "registration failed")
	}
	return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
}

func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_json", "request body must be a JSON object")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	pair, user, err := ac.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "invalid email or password")
		case errors.Is(err, auth.ErrAccountDisabled):
			return jsonError(c, fiber.StatusForbidden, "forbidden", "account disabled")
		}
		log.Errorf("[Auth] login failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "login failed")
	}

	ac.setSessionCookie(c, pair)
	return c.JSON(fiber.Map{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.ExpiresAt,
		"user":         toUserResponse(user),
	})
}

func (ac *AuthController) HandleRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_json", "request body must be a JSON object")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	pair, err := ac.svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) || errors.Is(err, auth.ErrAccountDisabled) {
			ac.clearSessionCookie(c)
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "invalid refresh token")
		}
		log.Errorf("[Auth] refresh failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "refresh failed")
	}

	ac.setSessionCookie(c, pair)
	return c.JSON(pair)
}

// HandleLogout always clears the cookie; the refresh token is optional.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	var req refreshRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_json", "request body must be a JSON object")
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := ac.svc.Logout(ctx, req.RefreshToken); err != nil {
		log.Errorf("[Auth] logout failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "logout failed")
	}
	ac.clearSessionCookie(c)
	return c.JSON(fiber.Map{"ok": true})
}

// HandleMe answers with the stored profile of the session user.
func (ac *AuthController) HandleMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := ac.svc.Me(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
		}
		log.Errorf("[Auth] load user %s failed: %v", userCtx.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "could not load user")
	}
	return c.JSON(toUserResponse(user))
}

func (ac *AuthController) setSessionCookie(c *fiber.Ctx, pair *auth.TokenPair) {
	c.Cookie(&fiber.Cookie{
		Name:     session.CookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.ExpiresAt,
		HTTPOnly: true,
		Secure:   ac.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (ac *AuthController) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   ac.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
