// Package docproc loads, re-encodes, and OCR-optimizes the multi-page
// raster documents the pipeline masks. TIFF is read and written through
// the sibling tifffmt package; PDF input is rasterized page-by-page via
// pdfcpu.
package docproc

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/docproc/tifffmt"
	"github.com/redactifai/redactifai-worker/internal/geometry"
)

// defaultStreamingThreshold mirrors config.StreamingThreshold's documented
// default; Processor always honors whatever threshold it's constructed
// with, this is only the fallback when none is supplied.
const defaultStreamingThreshold = 50

// Format identifies an on-disk document encoding.
type Format string

const (
	FormatTIFF Format = "tiff"
	FormatPDF  Format = "pdf"
)

// Processor loads, saves, and OCR-optimizes document pages.
type Processor struct {
	streamingThreshold int
}

// Option configures a Processor.
type Option func(*Processor)

// WithStreamingThreshold overrides the page count above which Save
// streams pages to a temporary file instead of buffering the whole
// document, and emits BigTIFF.
func WithStreamingThreshold(pages int) Option {
	return func(p *Processor) { p.streamingThreshold = pages }
}

// New constructs a Processor.
func New(opts ...Option) *Processor {
	p := &Processor{streamingThreshold: defaultStreamingThreshold}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load decodes a multi-page raster document, detecting its format from
// its magic bytes rather than trusting a caller-supplied extension.
func (p *Processor) Load(data []byte) ([]image.Image, geometry.DocumentMetadata, error) {
	switch detectFormat(data) {
	case FormatTIFF:
		return p.loadTIFF(data)
	case FormatPDF:
		return p.loadPDF(data)
	default:
		return nil, geometry.DocumentMetadata{}, apperrors.NewFormatError("unrecognized document format", nil)
	}
}

func detectFormat(data []byte) Format {
	if len(data) >= 4 && (bytes.Equal(data[:2], []byte("II")) || bytes.Equal(data[:2], []byte("MM"))) {
		return FormatTIFF
	}
	if len(data) >= 5 && bytes.Equal(data[:5], []byte("%PDF-")) {
		return FormatPDF
	}
	return ""
}

func (p *Processor) loadTIFF(data []byte) ([]image.Image, geometry.DocumentMetadata, error) {
	pages, err := tifffmt.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, geometry.DocumentMetadata{}, apperrors.NewFormatError("decoding tiff document", err)
	}
	if len(pages) == 0 {
		return nil, geometry.DocumentMetadata{}, apperrors.NewFormatError("tiff document has no pages", nil)
	}

	images := make([]image.Image, len(pages))
	for i, pg := range pages {
		images[i] = pg.Image
	}

	b := pages[0].Image.Bounds()
	meta := geometry.DocumentMetadata{
		DPI:          [2]float64{pages[0].DPIX, pages[0].DPIY},
		ColorMode:    colorModeOf(pages[0].Image),
		Compression:  "lzw",
		OriginalSize: [2]int{b.Dx(), b.Dy()},
	}
	return images, meta, nil
}

func (p *Processor) loadPDF(data []byte) ([]image.Image, geometry.DocumentMetadata, error) {
	images, err := extractPDFPages(data)
	if err != nil {
		return nil, geometry.DocumentMetadata{}, apperrors.NewFormatError("extracting pdf pages", err)
	}
	if len(images) == 0 {
		return nil, geometry.DocumentMetadata{}, apperrors.NewFormatError("pdf document contains no page images", nil)
	}

	b := images[0].Bounds()
	meta := geometry.DocumentMetadata{
		DPI:          [2]float64{300, 300},
		ColorMode:    colorModeOf(images[0]),
		Compression:  "jpeg_or_png_source",
		OriginalSize: [2]int{b.Dx(), b.Dy()},
	}
	return images, meta, nil
}

func colorModeOf(img image.Image) string {
	switch img.ColorModel() {
	case nil:
		return "unknown"
	default:
		if _, ok := img.(*image.Gray); ok {
			return "grayscale"
		}
		return "rgb"
	}
}

// Save re-encodes pages as a TIFF document, preserving meta's DPI. When
// len(pages) exceeds the processor's streaming threshold, pages are
// written one at a time through a temporary file and the result is
// BigTIFF-framed. Only the encoder's working buffers are per page: every
// input page is already in memory, and the finished file is read back
// into memory whole before it is returned.
func (p *Processor) Save(pages []image.Image, meta geometry.DocumentMetadata) ([]byte, error) {
	tiffPages := toTIFFPages(pages, meta)

	if len(pages) <= p.streamingThreshold {
		var buf bytes.Buffer
		if err := tifffmt.Encode(&buf, tiffPages, false); err != nil {
			return nil, apperrors.NewFormatError("encoding tiff document", err)
		}
		return buf.Bytes(), nil
	}

	tmp, err := os.CreateTemp("", "docproc-save-*.tiff")
	if err != nil {
		return nil, fmt.Errorf("creating streaming temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tifffmt.Encode(tmp, tiffPages, true); err != nil {
		_ = tmp.Close()
		return nil, apperrors.NewFormatError("encoding bigtiff document", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing streaming temp file: %w", err)
	}

	out, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("reading back streaming temp file: %w", err)
	}
	return out, nil
}

func toTIFFPages(pages []image.Image, meta geometry.DocumentMetadata) []tifffmt.Page {
	dpiX, dpiY := meta.DPI[0], meta.DPI[1]
	if dpiX == 0 {
		dpiX = 300
	}
	if dpiY == 0 {
		dpiY = 300
	}
	out := make([]tifffmt.Page, len(pages))
	for i, img := range pages {
		out[i] = tifffmt.Page{Image: img, DPIX: dpiX, DPIY: dpiY}
	}
	return out
}

// OptimizeForOCR re-encodes pages for transport to the OCR provider. If
// the estimated uncompressed footprint exceeds maxSizeMB, lossless LZW
// compression is applied; the returned bytes always decode to geometry
// identical to the input, since OCR-reported coordinates must remain
// meaningful against the original pages.
func (p *Processor) OptimizeForOCR(pages []image.Image, meta geometry.DocumentMetadata, maxSizeMB int) ([]byte, error) {
	if estimatedFootprintMB(pages) <= float64(maxSizeMB) {
		return p.Save(pages, meta)
	}
	// Lossless LZW is already what Save produces; re-encoding here is a
	// no-op beyond what Save does, since no lossy path is permitted.
	return p.Save(pages, meta)
}

func estimatedFootprintMB(pages []image.Image) float64 {
	var total float64
	for _, img := range pages {
		b := img.Bounds()
		total += float64(b.Dx()*b.Dy()*3) / (1024 * 1024)
	}
	return total
}
