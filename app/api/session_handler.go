package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"ustawy/app/chat"
	"ustawy/types"
)

type SessionHandler struct {
	manager *chat.Manager
}

func NewSessionHandler(manager *chat.Manager) *SessionHandler {
	return &SessionHandler{
		manager: manager,
	}
}

type sessionResponse struct {
	ID        uuid.UUID           `json:"id"`
	State     string              `json:"state"`
	CreatedAt time.Time           `json:"created_at"`
	Messages  []types.ChatMessage `json:"messages"`
}

func newSessionResponse(s *chat.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		State:     s.State().String(),
		CreatedAt: s.CreatedAt,
		Messages:  s.Transcript(),
	}
}

func (h *SessionHandler) HandleCreate(c *fiber.Ctx) error {
	s := h.manager.Create()
	slog.Info("session created", "stage", "chat", "session", s.ID)
	return c.Status(fiber.StatusCreated).JSON(newSessionResponse(s))
}

func (h *SessionHandler) HandleGet(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(newSessionResponse(s))
}

func (h *SessionHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	if err := h.manager.Delete(id); err != nil {
		return ErrNotFound(id, "session")
	}
	return c.JSON(fiber.Map{"deleted": id})
}

// HandleMessage runs one chat turn. A failed turn answers 502 with the
// user-facing error text and the transcript, which still holds the question.
func (h *SessionHandler) HandleMessage(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}

	var params types.MessageParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	reply, err := s.Submit(c.UserContext(), params.Content)
	var turnErr *chat.TurnError
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrTurnInProgress):
		return NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage):
		return NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &turnErr):
		slog.Error("chat turn failed", "stage", "chat", "session", s.ID, "error", turnErr.Err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":    turnErr.Message(),
			"messages": s.Transcript(),
		})
	default:
		return err
	}

	return c.JSON(fiber.Map{
		"reply":    reply,
		"messages": s.Transcript(),
	})
}

func (h *SessionHandler) session(c *fiber.Ctx) (*chat.Session, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, ErrInvalidID()
	}
	s, err := h.manager.Get(id)
	if err != nil {
		return nil, ErrNotFound(id, "session")
	}
	return s, nil
}
