package handlers

import (
	"community-points/middleware"
	"community-points/services"

	"github.com/gofiber/fiber/v2"
)

func SetupQuestRoutes(app fiber.Router, userCtx fiber.Handler, quests *services.QuestService) {
	group := app.Group("/quests", userCtx)

	group.Get("/", func(c *fiber.Ctx) error {
		views, err := quests.List(c.Locals(middleware.LocalUserID).(string))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"quests": views})
	})

	group.Post("/:id/claim", func(c *fiber.Ctx) error {
		uq, err := quests.Claim(c.Locals(middleware.LocalUserID).(string), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"message":       "reward claimed",
			"quest_id":      uq.QuestID,
			"reward_points": uq.Quest.RewardPoints,
			"claimed_at":    uq.ClaimedAt,
		})
	})
}
