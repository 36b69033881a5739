package pipeline

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/docproc"
	"github.com/redactifai/redactifai-worker/internal/geometry"
	"github.com/redactifai/redactifai-worker/internal/masker"
	"github.com/redactifai/redactifai-worker/internal/matcher"
	"github.com/redactifai/redactifai-worker/internal/ocr"
	"github.com/redactifai/redactifai-worker/internal/phidetect"
)

func grayPage(w, h int) image.Image {
	return image.NewGray(image.Rect(0, 0, w, h))
}

func TestDeidentify_EndToEndMasksDetectedEntity(t *testing.T) {
	pages := []image.Image{grayPage(200, 100)}

	box, err := geometry.NewBoundingBox(1, 10, 10, 40, 20)
	require.NoError(t, err)
	mockOCR := &ocr.MockAdapter{
		Text:  "Patient Jane Doe",
		Words: []geometry.OCRWord{
			{Text: "Patient", BoundingBox: geometry.BoundingBox{Page: 1, X: 10, Y: 40, Width: 60, Height: 20}, Confidence: 0.9},
			{Text: "Jane", BoundingBox: box, Confidence: 0.9},
		},
	}

	mockProvider := &phidetect.MockProvider{
		Entities: []geometry.PHIEntity{
			{Text: "Jane", Category: "PERSON", Offset: 8, Length: 4, Confidence: 0.95},
		},
	}

	mk, err := masker.New(zap.NewNop())
	require.NoError(t, err)

	p := New(
		zap.NewNop(),
		docproc.New(),
		mockOCR,
		phidetect.New(mockProvider, zap.NewNop()),
		matcher.New(zap.NewNop()),
		mk,
	)

	result, err := p.Deidentify(context.Background(), encodeTestDoc(t, pages), geometry.SafeHarbor, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PagesProcessed)
	assert.Equal(t, 1, result.PHIEntitiesMasked)
	assert.NotEmpty(t, result.OutputBytes)
}

func encodeTestDoc(t *testing.T, pages []image.Image) []byte {
	t.Helper()
	data, err := docproc.New().Save(pages, geometry.DocumentMetadata{DPI: [2]float64{300, 300}})
	require.NoError(t, err)
	return data
}
