package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated identity of a request. Profile
// fields come from the access token and may lag behind the user store.
type UserContext struct {
	UserID              string `json:"userId"`
	Email               string `json:"email"`
	Name                string `json:"name,omitempty"`
	AvatarURL           string `json:"avatarUrl,omitempty"`
	InternalID          string `json:"internalId,omitempty"`
	OnboardingCompleted bool   `json:"onboardingCompleted"`
	IsLoggedIn          bool   `json:"-"`
}

func SetUserContext(c *fiber.Ctx, ctx UserContext) {
	c.Locals(LocalsKey, ctx)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(LocalsKey).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false}
}

// GetUserID returns the current user's ID, or "" if not logged in
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}
