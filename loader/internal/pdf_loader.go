package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ustawy/config"
	"ustawy/types"
)

// PDFLoader turns a PDF into one Document per page. Pages are split with
// pdfcpu and converted to markdown by a docling-serve instance.
type PDFLoader struct {
	doclingURL string
	cropTop    float64
	cropBottom float64
	client     *http.Client
	logger     *slog.Logger
}

func NewPDFLoader(cfg config.LoaderConfig) *PDFLoader {
	return &PDFLoader{
		doclingURL: cfg.DoclingURL,
		cropTop:    cfg.CropTop,
		cropBottom: cfg.CropBottom,
		client:     &http.Client{Timeout: 10 * time.Minute},
		logger:     slog.Default(),
	}
}

func (l *PDFLoader) Load(ctx context.Context, filePath string) ([]types.Document, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}

	workDir, err := os.MkdirTemp("", "ustawy-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	input := filePath
	if l.cropTop > 0 || l.cropBottom > 0 {
		cropped := filepath.Join(workDir, filepath.Base(filePath))
		if err := RemoveHeaderFooterCrop(filePath, cropped, l.cropTop, l.cropBottom); err != nil {
			return nil, err
		}
		input = cropped
	}

	total, err := PageCount(input)
	if err != nil {
		return nil, err
	}
	pages, err := SplitPages(input, filepath.Join(workDir, "pages"))
	if err != nil {
		return nil, err
	}
	l.logger.Info("pdf split", "stage", "load", "file", filepath.Base(filePath), "pages", total)

	docs := make([]types.Document, 0, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		md, err := l.convertPDFToMD(ctx, page.Path)
		if err != nil {
			return nil, fmt.Errorf("convert page %d of %s: %w", page.Number, filePath, err)
		}
		text := CleanMarkdown(md)
		if text == "" {
			l.logger.Debug("empty page skipped", "stage", "load", "file", filePath, "page", page.Number)
			continue
		}

		docs = append(docs, types.Document{
			Text: text,
			Metadata: types.Metadata{
				types.MetaFileName:  filepath.Base(filePath),
				types.MetaPageLabel: strconv.Itoa(page.Number),
			},
			Source:     "pdf",
			SourcePath: filePath,
			CreatedAt:  fileInfo.ModTime(),
			UpdatedAt:  fileInfo.ModTime(),
		})
	}
	return docs, nil
}

func (l *PDFLoader) convertPDFToMD(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}

	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.doclingURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("docling error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var d types.DoclingResponse
	if err := json.Unmarshal(body, &d); err != nil {
		return "", fmt.Errorf("decode docling response: %w", err)
	}

	return d.Document.MdContent, nil
}
