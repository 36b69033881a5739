// Package ocr adapts third-party optical-character-recognition engines
// into the uniform, per-word bounding-box model the entity matcher
// depends on.
package ocr

import (
	"context"

	"github.com/redactifai/redactifai-worker/internal/geometry"
)

// Service extracts text and per-word geometry from a single page image.
// Implementations MUST normalize provider-specific output into the
// uniform model: confidences scaled to [0,1], rotated polygons collapsed
// to axis-aligned boxes, and full_text set to exactly the text that will
// be sent to the PHI detector (the matcher's correctness depends on
// this).
//
// formatHint is a MIME type such as "image/tiff" or "image/png";
// language is an optional BCP-47 hint, empty meaning auto-detect.
type Service interface {
	// Analyze returns the page's recognized text plus its word geometry.
	// The caller is responsible for concatenating per-page text (with a
	// page-separator) into the OCRResult.FullText the matcher consumes,
	// since only the caller knows the separator convention the rest of
	// the pipeline expects.
	Analyze(ctx context.Context, imageData []byte, formatHint, language string) (pageText string, page geometry.OCRPage, err error)
}
