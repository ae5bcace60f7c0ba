package handlers

import (
	"strings"

	"community-points/config"
	"community-points/middleware"
	"community-points/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	Points      *services.PointsService
	Leaderboard *services.LeaderboardService
	Posts       *services.PostService
	Quests      *services.QuestService
	Admin       *services.AdminService
	Snapshots   *services.SnapshotService
	Stream      *services.PointsStream
	Engagement  *services.EngagementService // optional
}

// NewApp builds the fiber app with every route. All routes sit behind the gateway token.
func NewApp(cfg *config.Config, svc Services) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "community-points",
		BodyLimit:             64 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger())

	origins := make([]string, 0)
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(origins, ","),
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-Username, X-User-Roles",
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
		MaxAge:        86400,
	}))

	// every request must come from the gateway
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))

	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{"status": "ok", "manual_only_mode": cfg.ManualOnlyMode}
		sqlDB, err := svc.Points.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		status["database"] = "ok"
		if svc.Engagement != nil {
			status["primary_api_circuit"] = svc.Engagement.BreakerState()
		}
		return c.JSON(status)
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	userCtx := middleware.UserContextMiddleware(svc.Points)

	SetupLeaderboardRoutes(app, svc.Leaderboard)
	SetupPostRoutes(app, userCtx, svc.Posts, cfg.Submission)
	SetupUserRoutes(app, userCtx, svc.Points, svc.Leaderboard, svc.Stream)
	SetupQuestRoutes(app, userCtx, svc.Quests)
	SetupAdminRoutes(app, userCtx, AdminDeps{
		Admin:     svc.Admin,
		Posts:     svc.Posts,
		Quests:    svc.Quests,
		Snapshots: svc.Snapshots,
	})
	return app
}
