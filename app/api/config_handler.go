package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"ustawy/app/chat"
	"ustawy/types"
)

// ConfigHandler exposes the engine defaults used by the next turn of every session.
type ConfigHandler struct {
	settings *chat.SettingsStore
}

func NewConfigHandler(settings *chat.SettingsStore) *ConfigHandler {
	return &ConfigHandler{
		settings: settings,
	}
}

func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(h.settings.Get())
}

func (h *ConfigHandler) HandleSetConfig(c *fiber.Ctx) error {
	var params types.SettingsParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	if params.Empty() {
		return ErrBadRequest()
	}

	resp := h.settings.Update(params)
	slog.Info("engine settings changed", "top_k", resp.TopK, "mode", resp.Mode,
		"max_sources", resp.MaxSources, "show_sources", resp.ShowSources)

	return c.JSON(resp)
}
