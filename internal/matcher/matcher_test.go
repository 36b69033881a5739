package matcher

import (
	"testing"

	"github.com/redactifai/redactifai-worker/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func word(text string, page int, x, y, w, h float64) geometry.OCRWord {
	box, err := geometry.NewBoundingBox(page, x, y, w, h)
	if err != nil {
		panic(err)
	}
	return geometry.OCRWord{Text: text, BoundingBox: box, Confidence: 0.99}
}

func TestMatch_SingleWordExactOffset(t *testing.T) {
	ocrResult := geometry.OCRResult{
		FullText: "Patient name is John Smith, admitted today.",
		Pages: []geometry.OCRPage{{
			PageNumber: 1,
			Words: []geometry.OCRWord{
				word("Patient", 1, 0, 0, 60, 20),
				word("name", 1, 65, 0, 40, 20),
				word("is", 1, 110, 0, 20, 20),
				word("John", 1, 100, 200, 50, 20),
				word("Smith,", 1, 155, 200, 60, 20),
				word("admitted", 1, 0, 40, 70, 20),
				word("today.", 1, 75, 40, 50, 20),
			},
		}},
	}

	entity := geometry.PHIEntity{Text: "John", Category: "PERSON", Offset: 16, Length: 4, Confidence: 0.9}

	m := New(zap.NewNop())
	result := m.Match(ocrResult, []geometry.PHIEntity{entity})

	require.Len(t, result.Regions, 1)
	assert.Empty(t, result.Warnings)
	region := result.Regions[0]
	assert.Equal(t, 1, region.Page)
	assert.Equal(t, "PERSON", region.EntityCategory)
	// word box (100,200,50,20) padded by default 5px -> (95,195,60,30)
	assert.Equal(t, 95.0, region.BoundingBox.X)
	assert.Equal(t, 195.0, region.BoundingBox.Y)
	assert.Equal(t, 60.0, region.BoundingBox.Width)
	assert.Equal(t, 30.0, region.BoundingBox.Height)
}

func TestMatch_MultiWordEntitySpansMergedBox(t *testing.T) {
	ocrResult := geometry.OCRResult{
		FullText: "Seen by Dr Jane Doe on visit.",
		Pages: []geometry.OCRPage{{
			PageNumber: 1,
			Words: []geometry.OCRWord{
				word("Seen", 1, 0, 0, 40, 20),
				word("by", 1, 45, 0, 20, 20),
				word("Dr", 1, 70, 0, 20, 20),
				word("Jane", 1, 95, 0, 40, 20),
				word("Doe", 1, 140, 0, 40, 20),
				word("on", 1, 185, 0, 20, 20),
				word("visit.", 1, 210, 0, 50, 20),
			},
		}},
	}

	entity := geometry.PHIEntity{Text: "Jane Doe", Category: "PERSON", Offset: 11, Length: 8, Confidence: 0.9}
	m := New(zap.NewNop(), WithBoxPaddingPx(5))
	result := m.Match(ocrResult, []geometry.PHIEntity{entity})

	require.Len(t, result.Regions, 1)
	box := result.Regions[0].BoundingBox
	assert.InDelta(t, 90.0, box.X, 0.001)  // min(95) - 5
	assert.InDelta(t, 0.0, box.Y, 0.001)   // min(0) - 5 clamped to 0
	assert.InDelta(t, 95.0, box.Width, 0.001)
	assert.InDelta(t, 30.0, box.Height, 0.001)
}

func TestMatch_NoOverlapProducesWarningNotError(t *testing.T) {
	ocrResult := geometry.OCRResult{
		FullText: "Nothing relevant here.",
		Pages: []geometry.OCRPage{{
			PageNumber: 1,
			Words: []geometry.OCRWord{
				word("Nothing", 1, 0, 0, 60, 20),
				word("relevant", 1, 65, 0, 60, 20),
				word("here.", 1, 130, 0, 40, 20),
			},
		}},
	}

	entity := geometry.PHIEntity{Text: "555-123-4567", Category: "PHONE", Offset: 1000, Length: 12, Confidence: 0.9}
	m := New(zap.NewNop())
	result := m.Match(ocrResult, []geometry.PHIEntity{entity})

	assert.Empty(t, result.Regions)
	require.Len(t, result.Warnings, 1)
}

func TestMatch_SingleCharacterFallbackIsRejected(t *testing.T) {
	ocrResult := geometry.OCRResult{
		FullText: "X marks the spot.",
		Pages: []geometry.OCRPage{{
			PageNumber: 1,
			Words: []geometry.OCRWord{
				word("X", 1, 0, 0, 10, 20),
				word("marks", 1, 15, 0, 40, 20),
				word("the", 1, 60, 0, 20, 20),
				word("spot.", 1, 85, 0, 40, 20),
			},
		}},
	}

	// offset out of range forces fallback, which must reject a 1-char entity
	entity := geometry.PHIEntity{Text: "X", Category: "INITIAL", Offset: 500, Length: 1, Confidence: 0.9}
	m := New(zap.NewNop())
	result := m.Match(ocrResult, []geometry.PHIEntity{entity})

	assert.Empty(t, result.Regions)
	require.Len(t, result.Warnings, 1)
}

func TestMatch_ConfidenceGateFiltersLowConfidenceEntities(t *testing.T) {
	ocrResult := geometry.OCRResult{
		FullText: "Call 555-1234 now.",
		Pages: []geometry.OCRPage{{
			PageNumber: 1,
			Words: []geometry.OCRWord{
				word("Call", 1, 0, 0, 40, 20),
				word("555-1234", 1, 45, 0, 70, 20),
				word("now.", 1, 120, 0, 40, 20),
			},
		}},
	}

	entity := geometry.PHIEntity{Text: "555-1234", Category: "PHONE", Offset: 5, Length: 8, Confidence: 0.2}
	m := New(zap.NewNop(), WithConfidenceThreshold(0.5))
	result := m.Match(ocrResult, []geometry.PHIEntity{entity})

	assert.Empty(t, result.Regions)
	assert.Empty(t, result.Warnings)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("same", "same"))
	assert.Equal(t, 1, levenshtein("cat", "car"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}
