package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/orchardscan/internal/pkg/logging"
)

// localsOrchardID is where analysis handlers record the orchard they served.
const localsOrchardID = "orchard_id"

// requestID returns the ID assigned by the requestid middleware.
func requestID(c *fiber.Ctx) string {
	rid, _ := c.Locals("requestid").(string)
	return rid
}

// RequestLoggerMiddleware puts a logger tagged with the request ID into the
// user context. Services pick it up through logging.FromContext, so their
// analysis logs share the access line's request_id.
func RequestLoggerMiddleware(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		l := base
		if rid := requestID(c); rid != "" {
			l = base.With("request_id", rid)
		}
		c.SetUserContext(logging.WithLogger(c.UserContext(), l))
		return c.Next()
	}
}
