package docproc

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// extractPDFPages rasterizes every page image embedded in a PDF, in page
// order. Scanned medical records are PDFs wrapping one image per page,
// so this does not attempt general PDF layout rendering.
func extractPDFPages(data []byte) ([]image.Image, error) {
	tempDir, err := os.MkdirTemp("", "docproc-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	inPath := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing temp pdf: %w", err)
	}

	if err := api.ExtractImagesFile(inPath, tempDir, nil, nil); err != nil {
		return nil, fmt.Errorf("extracting images from pdf: %w", err)
	}

	return collectExtractedPages(tempDir)
}

type extractedImage struct {
	page int
	img  image.Image
}

func collectExtractedPages(dir string) ([]image.Image, error) {
	var found []extractedImage

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading extracted image directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pageNum, err := parsePageFromFilename(entry.Name())
		if err != nil {
			continue
		}
		img, err := loadNormalizedImage(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		found = append(found, extractedImage{page: pageNum, img: img})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].page < found[j].page })

	pages := make([]image.Image, len(found))
	for i, f := range found {
		pages[i] = f.img
	}
	return pages, nil
}

// loadNormalizedImage decodes an extracted image file and clones it into
// a single consistent in-memory representation, so the masker and OCR
// adapter downstream never have to special-case the source codec
// pdfcpu happened to extract (PNG vs. JPEG).
func loadNormalizedImage(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // path comes from our own temp dir listing
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return imaging.Clone(img), nil
}

// parsePageFromFilename extracts the page number from pdfcpu's extracted
// filename convention: page_<num>_image_<idx>.<ext>.
func parsePageFromFilename(filename string) (int, error) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, errors.New("not a page image file")
	}
	parts := strings.Split(filename, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}
	pageNum, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}
