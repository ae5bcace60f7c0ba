package middleware

import (
	"slices"
	"strings"

	"community-points/logging"
	"community-points/models"
	"community-points/services"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalUser      = "user"
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"

	RoleAdmin = "admin"
)

// UserContextMiddleware resolves the gateway's identity headers to a local user,
// creating the user on first sight, and stores it in Locals.
func UserContextMiddleware(points *services.PointsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		externalID := strings.TrimSpace(c.Get("X-User-ID"))
		if externalID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through the gateway with auth context",
			})
		}

		user, err := points.EnsureUser(services.Identity{
			ExternalID: externalID,
			Username:   strings.TrimPrefix(strings.TrimSpace(c.Get("X-Username")), "@"),
		})
		if err != nil {
			logging.Error().Err(err).Str("external_id", externalID).Msg("[USER_CTX] failed to resolve user")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to resolve user",
				"cause": "internal error",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(LocalUser, user)
		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalUserRoles, roles)
		return c.Next()
	}
}

// RequireAdmin must run after UserContextMiddleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !HasRole(c, RoleAdmin) {
			logging.Warn().Str("path", c.Path()).Msg("[USER_CTX] admin role required")
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin role required",
			})
		}
		return c.Next()
	}
}

func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(LocalUser).(*models.User)
	return user
}

func HasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals(LocalUserRoles).([]string)
	return slices.Contains(roles, role)
}
