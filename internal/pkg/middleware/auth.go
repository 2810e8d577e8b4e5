package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/memoryrouter/dashboard/internal/pkg/session"
	"github.com/memoryrouter/dashboard/internal/pkg/usercontext"
)

// RequireSession resolves the caller through gw and stores the identity in
// the request context. Requests without a valid access token get a JSON 401.
func RequireSession(gw *session.Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, ok := gw.Resolve(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "login required",
			})
		}

		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:              st.UserID,
			Email:               st.Email,
			Name:                st.Profile.DisplayName,
			AvatarURL:           st.Profile.AvatarURL,
			InternalID:          st.Profile.InternalID,
			OnboardingCompleted: st.Profile.OnboardingCompleted,
			IsLoggedIn:          true,
		})
		c.Locals(usercontext.KeyTokenID, st.ID)
		return c.Next()
	}
}
