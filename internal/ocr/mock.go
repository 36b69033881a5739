package ocr

import (
	"context"

	"github.com/redactifai/redactifai-worker/internal/geometry"
)

// MockAdapter returns a pre-programmed OCR result for tests and local
// development, grounded on the original pipeline's mock OCR service used
// the same way in its test suite.
type MockAdapter struct {
	Text  string
	Words []geometry.OCRWord
	Err   error
}

// Analyze ignores its inputs and returns the configured fixture.
func (m *MockAdapter) Analyze(_ context.Context, _ []byte, _, _ string) (string, geometry.OCRPage, error) {
	if m.Err != nil {
		return "", geometry.OCRPage{}, m.Err
	}
	return m.Text, geometry.OCRPage{PageNumber: 1, Words: m.Words}, nil
}
