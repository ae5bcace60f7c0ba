package handlers

import (
	"bufio"
	"errors"

	"community-points/middleware"
	"community-points/models"
	"community-points/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(app fiber.Router, userCtx fiber.Handler, points *services.PointsService, lb *services.LeaderboardService, stream *services.PointsStream) {
	group := app.Group("/user", userCtx)

	group.Get("/stats", func(c *fiber.Ctx) error {
		user := middleware.CurrentUser(c)

		var rows []struct {
			Status string
			Count  int64
		}
		if err := points.DB.Model(&models.Post{}).
			Select("status, COUNT(*) AS count").
			Where("user_id = ?", user.ID).
			Group("status").
			Scan(&rows).Error; err != nil {
			return respondError(c, err)
		}
		byStatus := map[string]int64{}
		var submitted int64
		for _, r := range rows {
			byStatus[r.Status] = r.Count
			submitted += r.Count
		}

		var questsCompleted int64
		if err := points.DB.Model(&models.UserQuest{}).
			Where("user_id = ? AND status IN ?", user.ID, []models.UserQuestStatus{models.UserQuestCompleted, models.UserQuestClaimed}).
			Count(&questsCompleted).Error; err != nil {
			return respondError(c, err)
		}

		resp := fiber.Map{
			"user":             user,
			"total_points":     user.TotalPoints,
			"posts_submitted":  submitted,
			"posts_by_status":  byStatus,
			"quests_completed": questsCompleted,
		}

		// banned users keep their stats but have no rank
		view, err := lb.UserRank(user.ID, queryInt(c, "range", 2))
		switch {
		case err == nil:
			resp["rank"] = view.Rank
			resp["total_users"] = view.Total
			resp["percentile"] = view.Percentile
			resp["nearby"] = view.Nearby
		case errors.Is(err, services.ErrUserBanned):
			resp["rank"] = nil
		default:
			return respondError(c, err)
		}
		return c.JSON(resp)
	})

	group.Get("/points/history", func(c *fiber.Ctx) error {
		page := queryInt(c, "page", 1)
		size := queryInt(c, "size", 20)
		entries, total, err := points.History(c.Locals(middleware.LocalUserID).(string), page, size)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"entries": entries, "total": total, "page": page, "size": size})
	})

	group.Get("/points/stream", func(c *fiber.Ctx) error {
		userID := c.Locals(middleware.LocalUserID).(string)
		reqCtx := c.Context()

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		reqCtx.SetBodyStreamWriter(func(w *bufio.Writer) {
			stream.Run(reqCtx, userID, w)
		})
		return nil
	})
}
