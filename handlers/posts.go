package handlers

import (
	"strings"

	"community-points/config"
	"community-points/middleware"
	"community-points/services"
	"community-points/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func SetupPostRoutes(app fiber.Router, userCtx fiber.Handler, posts *services.PostService, rl config.SubmissionConfig) {
	group := app.Group("/posts", userCtx)

	submitLimiter := limiter.New(limiter.Config{
		Max:        max(rl.Max, 1),
		Expiration: rl.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			id, _ := c.Locals(middleware.LocalUserID).(string)
			return "submit:" + id
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many submissions, slow down",
			})
		},
	})

	group.Post("/", submitLimiter, func(c *fiber.Ctx) error {
		var req services.SubmitRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		req.URL = strings.TrimSpace(req.URL)
		if err := utils.ValidateStruct(req); err != nil {
			return respondError(c, err)
		}

		res, err := posts.Submit(c.UserContext(), middleware.CurrentUser(c), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	group.Get("/mine", func(c *fiber.Ctx) error {
		page := queryInt(c, "page", 1)
		size := queryInt(c, "size", 20)
		list, total, err := posts.ListMine(c.Locals(middleware.LocalUserID).(string), page, size)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"posts": list, "total": total, "page": page, "size": size})
	})

	group.Post("/:id/refresh", func(c *fiber.Ctx) error {
		force := c.QueryBool("force", false)
		post, delta, err := posts.Refresh(c.UserContext(), middleware.CurrentUser(c), middleware.HasRole(c, middleware.RoleAdmin), c.Params("id"), force)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"post": post, "points_awarded": delta})
	})
}
