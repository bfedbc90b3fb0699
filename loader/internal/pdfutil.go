package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// RemoveHeaderFooterCrop crops the running header and footer off every page.
// top and bottom are in points (1 pt = 1/72 inch).
func RemoveHeaderFooterCrop(inputPath, outputPath string, top, bottom float64) error {
	conf := api.LoadConfiguration()

	pages := []string{"1-"}

	cropStr := fmt.Sprintf(
		"%.2f 0 %.2f 0",
		top,
		bottom,
	)

	box, err := model.ParseBox(cropStr, types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse crop box: %w", err)
	}

	if err := api.CropFile(inputPath, outputPath, pages, box, conf); err != nil {
		return fmt.Errorf("failed to crop PDF: %w", err)
	}

	return nil
}

// PageFile is a single-page PDF produced by SplitPages.
type PageFile struct {
	Number int // 1-based
	Path   string
}

var pageSuffix = regexp.MustCompile(`_(\d+)\.pdf$`)

// SplitPages writes every page of inputPath to outDir as its own file and
// returns them in page order.
func SplitPages(inputPath, outDir string) ([]PageFile, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create split dir: %w", err)
	}
	if err := api.SplitFile(inputPath, outDir, 1, api.LoadConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to split PDF: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("read split dir: %w", err)
	}

	var pages []PageFile
	for _, e := range entries {
		m := pageSuffix.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		pages = append(pages, PageFile{Number: n, Path: filepath.Join(outDir, e.Name())})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })

	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages produced for %s", inputPath)
	}
	return pages, nil
}

func PageCount(inputPath string) (int, error) {
	n, err := api.PageCountFile(inputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}
