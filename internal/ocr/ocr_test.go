package ocr

import (
	"context"
	"testing"

	"github.com/redactifai/redactifai-worker/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapter_ReturnsFixture(t *testing.T) {
	box, err := geometry.NewBoundingBox(1, 0, 0, 10, 10)
	require.NoError(t, err)
	m := &MockAdapter{
		Text:  "hello",
		Words: []geometry.OCRWord{{Text: "hello", BoundingBox: box, Confidence: 0.95}},
	}

	text, page, err := m.Analyze(context.Background(), nil, "image/tiff", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Len(t, page.Words, 1)
}

func TestMockAdapter_ReturnsConfiguredError(t *testing.T) {
	m := &MockAdapter{Err: assert.AnError}
	_, _, err := m.Analyze(context.Background(), nil, "image/tiff", "")
	assert.ErrorIs(t, err, assert.AnError)
}
