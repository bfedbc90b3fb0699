package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// PlugStatic serves page on GET / and answers requests under /.well-known/
// without reaching the API routes.
func PlugStatic(page []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()

		if strings.HasPrefix(path, "/.well-known/") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status": "ignored dynamic-static",
			})
		}

		if c.Method() == fiber.MethodGet && (path == "/" || path == "/index.html") {
			c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
			return c.Send(page)
		}

		return c.Next()
	}
}

func RequestLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		slog.Debug("request", "method", c.Method(), "path", c.Path(),
			"status", c.Response().StatusCode(), "took", time.Since(start))
		return err
	}
}
