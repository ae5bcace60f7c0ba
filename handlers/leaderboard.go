package handlers

import (
	"community-points/services"

	"github.com/gofiber/fiber/v2"
)

// SetupLeaderboardRoutes registers the read-only ranking routes. They need the
// gateway token but no user context.
func SetupLeaderboardRoutes(app fiber.Router, lb *services.LeaderboardService) {
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		page, err := lb.Leaderboard(queryInt(c, "limit", 50), queryInt(c, "offset", 0))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	})

	app.Get("/leaderboard/top", func(c *fiber.Ctx) error {
		top, err := lb.TopPerformers(queryInt(c, "n", 3))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"top": top})
	})

	app.Get("/leaderboard/users/:id", func(c *fiber.Ctx) error {
		view, err := lb.UserRank(c.Params("id"), queryInt(c, "range", 5))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(view)
	})
}
