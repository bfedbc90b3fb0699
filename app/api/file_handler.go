package api

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// FileHandler drops uploaded PDFs into the directory watched by the loader.
type FileHandler struct {
	sourceDir string
}

func NewFileHandler(sourceDir string) *FileHandler {
	return &FileHandler{
		sourceDir: sourceDir,
	}
}

func (h *FileHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	name := filepath.Base(fileHeader.Filename)
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return NewError(fiber.StatusBadRequest, "invalid file name")
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return NewError(fiber.StatusUnsupportedMediaType, "only PDF files are accepted")
	}

	path := filepath.Join(h.sourceDir, name)
	if err := c.SaveFile(fileHeader, path); err != nil {
		return err
	}
	slog.Info("file uploaded", "stage", "upload", "path", path, "size", fileHeader.Size)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"file": name})
}
