package handlers

import (
	"community-points/middleware"
	"community-points/services"
	"community-points/utils"

	"github.com/gofiber/fiber/v2"
)

type AdminDeps struct {
	Admin     *services.AdminService
	Posts     *services.PostService
	Quests    *services.QuestService
	Snapshots *services.SnapshotService
}

func SetupAdminRoutes(app fiber.Router, userCtx fiber.Handler, d AdminDeps) {
	admin := app.Group("/admin", userCtx, middleware.RequireAdmin())

	admin.Get("/stats", func(c *fiber.Ctx) error {
		stats, err := d.Admin.Stats()
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(stats)
	})

	admin.Get("/users", func(c *fiber.Ctx) error {
		users, err := d.Admin.SearchUsers(c.Query("q"), queryInt(c, "limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"users": users})
	})

	setBanned := func(banned bool) fiber.Handler {
		return func(c *fiber.Ctx) error {
			user, err := d.Admin.SetBanned(c.Params("id"), banned)
			if err != nil {
				return respondError(c, err)
			}
			return c.JSON(user)
		}
	}
	admin.Post("/users/:id/ban", setBanned(true))
	admin.Post("/users/:id/unban", setBanned(false))

	admin.Get("/posts/flagged", func(c *fiber.Ctx) error {
		posts, err := d.Posts.ListFlagged(queryInt(c, "limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"posts": posts})
	})

	moderate := func(approve bool) fiber.Handler {
		return func(c *fiber.Ctx) error {
			post, awarded, err := d.Posts.Moderate(c.Params("id"), approve, c.Locals(middleware.LocalUserID).(string))
			if err != nil {
				return respondError(c, err)
			}
			return c.JSON(fiber.Map{"post": post, "points_awarded": awarded})
		}
	}
	admin.Post("/posts/:id/approve", moderate(true))
	admin.Post("/posts/:id/reject", moderate(false))

	admin.Post("/points/adjust", func(c *fiber.Ctx) error {
		var req services.AdjustPointsRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		if err := utils.ValidateStruct(req); err != nil {
			return respondError(c, err)
		}
		user, applied, err := d.Admin.AdjustPoints(req, c.Locals(middleware.LocalUserID).(string))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"user":         user,
			"requested":    req.Delta,
			"applied":      applied,
			"total_points": user.TotalPoints,
		})
	})

	admin.Get("/points/reconcile", func(c *fiber.Ctx) error {
		drifts, err := d.Admin.Reconcile()
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"drifts": drifts, "count": len(drifts)})
	})

	admin.Post("/quests", func(c *fiber.Ctx) error {
		var req services.CreateQuestRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		if err := utils.ValidateStruct(req); err != nil {
			return respondError(c, err)
		}
		q, err := d.Quests.Create(req)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(q)
	})

	admin.Post("/leaderboard/snapshot", func(c *fiber.Ctx) error {
		res, err := d.Snapshots.Export(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})
}
