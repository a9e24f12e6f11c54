package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/orchardscan/internal/pkg/metrics"
)

// legacySunset is when the unversioned /detect_* routes go away.
var legacySunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestLoggerMiddleware(deps.logger()))
	app.Use(AccessLogMiddleware(deps.logger()))

	// Each analysis is a full KDE evaluation, so the budget is tighter than
	// for a plain lookup API.
	app.Use(limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())
	app.Use(DeprecationMiddleware([]DeprecatedRoute{
		{Path: "/detect_missing_trees", SunsetDate: legacySunset, Alternative: "/v1/orchards/{id}/missing-trees"},
		{Path: "/detect_unhealthy_trees", SunsetDate: legacySunset, Alternative: "/v1/orchards/{id}/unhealthy-trees"},
	}))

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	limit := deps.analysisTimeout()
	v1 := app.Group("/v1")
	v1.Get("/orchards/:id/missing-trees", timeout.NewWithContext(MissingTreesHandler(deps), limit))
	v1.Get("/orchards/:id/unhealthy-trees", timeout.NewWithContext(UnhealthyTreesHandler(deps), limit))
	v1.Get("/orchards/:id/summary", timeout.NewWithContext(SummaryHandler(deps), limit))

	// Routes kept for clients of the first release.
	app.Get("/detect_missing_trees", timeout.NewWithContext(LegacyMissingTreesHandler(deps), limit))
	app.Get("/detect_unhealthy_trees", timeout.NewWithContext(LegacyUnhealthyTreesHandler(deps), limit))

	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), limit))

	SetupDocs(app)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if deps.NATS == nil {
			return newError(c, fiber.StatusServiceUnavailable, "unavailable", "event stream not configured")
		}
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
