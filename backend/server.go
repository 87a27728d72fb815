package backend

import (
	"log/slog"

	"github.com/bidhouse/server/backend/handlers"
	"github.com/bidhouse/server/backend/middleware"
	"github.com/bidhouse/server/bidhouse"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp builds the Fiber application with middleware and routes.
func NewApp(webApp *handlers.WebApp, cfg bidhouse.WebConfig, limiter *middleware.RateLimiter) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "BidHouse API",
		ServerHeader: "BidHouse",
		ErrorHandler: middleware.CustomErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	if cfg.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: "GET,POST,PUT,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept,X-User-ID,X-Request-ID",
		}))
	}
	app.Use(middleware.LoggingMiddleware())

	setupRoutes(app, webApp, cfg, limiter)
	return app
}

// setupRoutes configures all application routes
func setupRoutes(app *fiber.App, webApp *handlers.WebApp, cfg bidhouse.WebConfig, limiter *middleware.RateLimiter) {
	app.Get("/health", handlers.HealthCheck(webApp))

	api := app.Group("/api")
	if limiter != nil {
		api.Use(middleware.RateLimit(limiter))
	}
	if cfg.SweepOnRequest {
		api.Use(middleware.OpportunisticSweep(webApp.Manager, cfg.SweepThrottle.Duration))
	}

	listings := api.Group("/listings")
	listings.Get("/:id/status", handlers.ListingStatus(webApp))
	listings.Get("/:id/bids", handlers.ListingBids(webApp))
	listings.Post("/:id/bids", middleware.RequireUser(), handlers.PlaceBid(webApp))
	listings.Put("/:id/auto-bid", middleware.RequireUser(), handlers.SetAutoBid(webApp))
	listings.Post("/", middleware.RequireUser(), handlers.CreateListing(webApp))

	accounts := api.Group("/accounts")
	accounts.Post("/", handlers.CreateAccount(webApp))
	accounts.Get("/:id", middleware.RequireUser(), middleware.RequireSelf("id"), handlers.GetAccount(webApp))
	accounts.Post("/:id/deposit", middleware.RequireUser(), middleware.RequireSelf("id"), handlers.Deposit(webApp))

	api.Post("/auctions/sweep", handlers.Sweep(webApp))
	api.Get("/activities", handlers.Activities(webApp))

	// No route matched
	app.Use(func(c *fiber.Ctx) error {
		slog.Warn("No route matched for request",
			slog.String("type", "api"),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
		)
		return fiber.ErrNotFound
	})
}
