package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ustawy/types"
)

// ErrUnsupported is returned by ReadFile for extensions the reader cannot parse.
var ErrUnsupported = errors.New("unsupported file type")

// PageLoader produces page documents from a paginated file.
type PageLoader interface {
	Load(ctx context.Context, filePath string) ([]types.Document, error)
}

// DirectoryReader loads every supported file in a directory tree.
// Text and markdown files become one document each; PDFs go through pdf.
type DirectoryReader struct {
	pdf    PageLoader
	logger *slog.Logger
}

func NewDirectoryReader(pdf PageLoader) *DirectoryReader {
	return &DirectoryReader{pdf: pdf, logger: slog.Default()}
}

func (r *DirectoryReader) ReadDir(ctx context.Context, dir string) ([]types.Document, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	var docs []types.Document
	for _, path := range paths {
		fileDocs, err := r.readFile(ctx, path, SourceKey(dir, path))
		if errors.Is(err, ErrUnsupported) {
			r.logger.Warn("file skipped", "stage", "load", "path", path, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}

	r.logger.Info("directory read", "stage", "load", "dir", dir, "files", len(paths), "documents", len(docs))
	return docs, nil
}

// SourceKey identifies a file by its slash-separated path relative to root,
// so same-named files in different subdirectories stay distinct.
func SourceKey(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// ReadFile loads a single file. Its documents are keyed by the file's base
// name, as if path were read from its own directory.
func (r *DirectoryReader) ReadFile(ctx context.Context, path string) ([]types.Document, error) {
	return r.readFile(ctx, path, SourceKey(filepath.Dir(path), path))
}

func (r *DirectoryReader) readFile(ctx context.Context, path, key string) ([]types.Document, error) {
	docs, err := r.load(ctx, path)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].SourcePath = key
	}
	return docs, nil
}

func (r *DirectoryReader) load(ctx context.Context, path string) ([]types.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		if r.pdf == nil {
			return nil, fmt.Errorf("%w: no pdf loader configured for %s", ErrUnsupported, path)
		}
		return r.pdf.Load(ctx, path)
	case ".txt", ".md":
		return readText(path, ext)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
}

func readText(path, ext string) ([]types.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}

	source := "text"
	if ext == ".md" {
		source = "markdown"
		text = CleanMarkdown(text)
	}
	return []types.Document{{
		Text:       text,
		Metadata:   types.Metadata{types.MetaFileName: filepath.Base(path)},
		Source:     source,
		SourcePath: path,
		CreatedAt:  info.ModTime(),
		UpdatedAt:  info.ModTime(),
	}}, nil
}
