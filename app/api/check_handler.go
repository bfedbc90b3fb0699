package api

import (
	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct {
	sessions interface{ Len() int }
}

func NewCheckHandler(sessions interface{ Len() int }) *CheckHandler {
	return &CheckHandler{sessions: sessions}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok", "sessions": h.sessions.Len()})
}
