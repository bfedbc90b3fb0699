package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"ustawy/app/agent"
	"ustawy/app/chat"
	"ustawy/types"
)

// RequestHandler answers one-off questions outside of a chat session.
type RequestHandler struct {
	engine   chat.Answerer
	settings *chat.SettingsStore
}

func NewRequestHandler(engine chat.Answerer, settings *chat.SettingsStore) *RequestHandler {
	return &RequestHandler{
		engine:   engine,
		settings: settings,
	}
}

func (h *RequestHandler) HandleRequest(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	cfg := h.settings.Get()
	if params.TopK == 0 {
		params.TopK = cfg.TopK
	}
	if params.Mode == "" {
		params.Mode = cfg.Mode
	}

	answer, err := h.engine.Answer(c.UserContext(), params.Prompt, params.TopK, params.Mode)
	if err != nil {
		if errors.Is(err, types.ErrEmptyQuestion) {
			return NewError(fiber.StatusBadRequest, err.Error())
		}
		return ErrUpstream(err)
	}

	resp := &types.SearchResponse{
		Answer:    answer.Text,
		Formatted: agent.Format(answer, cfg.MaxSources),
		Mode:      answer.Mode,
		Sources:   types.NewSources(answer.Sources),
		Timestamp: time.Now(),
	}
	return c.JSON(resp)
}

func (h *RequestHandler) HandleExamples(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"examples": chat.Examples})
}
