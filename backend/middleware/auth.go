package middleware

import (
	"log/slog"

	"github.com/bidhouse/server/backend/utils"
	"github.com/gofiber/fiber/v2"
)

const userIDHeader = "X-User-ID"

// RequireUser reads the caller's account id from X-User-ID. Session
// handling lives in front of this service.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(userIDHeader)
		if raw == "" {
			return utils.SendUnauthorized(c, "X-User-ID header is required")
		}

		userID, err := utils.ParseUserID(raw)
		if err != nil {
			slog.Debug("Rejected caller identity",
				slog.String("type", "api"),
				slog.String("error", err.Error()))
			return utils.SendUnauthorized(c, "X-User-ID must be a positive integer")
		}

		c.Locals(utils.UserIDKey, userID)
		return c.Next()
	}
}

// RequireSelf lets callers act only on their own :id account.
func RequireSelf(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := utils.CurrentUserID(c)
		if !ok {
			return utils.SendUnauthorized(c, "X-User-ID header is required")
		}
		accountID, err := utils.ParseID(c, param)
		if err != nil {
			return utils.SendBadRequest(c, err.Error(), nil)
		}
		if accountID != userID {
			return utils.SendForbidden(c, "You can only access your own account")
		}
		return c.Next()
	}
}
