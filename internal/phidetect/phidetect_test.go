package phidetect

import (
	"context"
	"testing"

	"github.com/redactifai/redactifai-worker/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDetect_SafeHarborReturnsEverythingSorted(t *testing.T) {
	provider := &MockProvider{Entities: []geometry.PHIEntity{
		{Text: "Smith", Category: "PERSON", Offset: 20, Length: 5, Confidence: 0.9},
		{Text: "John", Category: "PERSON", Offset: 5, Length: 4, Confidence: 0.9},
	}}
	d := New(provider, zap.NewNop())

	entities, err := d.Detect(context.Background(), "some document text here", geometry.SafeHarbor, nil)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, 5, entities[0].Offset)
	assert.Equal(t, 20, entities[1].Offset)
}

func TestDetect_LimitedDatasetSuppressesProviderCategories(t *testing.T) {
	provider := &MockProvider{Entities: []geometry.PHIEntity{
		{Text: "Dr. Lee", Category: "PHYSICIAN", Offset: 0, Length: 7, Confidence: 0.9},
		{Text: "Jane", Category: "PERSON", Offset: 10, Length: 4, Confidence: 0.9},
	}}
	d := New(provider, zap.NewNop())

	entities, err := d.Detect(context.Background(), "Dr. Lee saw Jane today", geometry.LimitedDataset, nil)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "PERSON", entities[0].Category)
}

func TestDetect_CustomWithAllowlistFiltersToAllowedCategories(t *testing.T) {
	provider := &MockProvider{Entities: []geometry.PHIEntity{
		{Text: "Jane", Category: "PERSON", Offset: 0, Length: 4, Confidence: 0.9},
		{Text: "555-1234", Category: "PHONE", Offset: 10, Length: 8, Confidence: 0.9},
	}}
	d := New(provider, zap.NewNop())

	entities, err := d.Detect(context.Background(), "Jane called 555-1234", geometry.Custom, []string{"PHONE"})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "PHONE", entities[0].Category)
}

func TestDetect_CustomWithEmptyAllowlistDegradesToSafeHarbor(t *testing.T) {
	provider := &MockProvider{Entities: []geometry.PHIEntity{
		{Text: "Jane", Category: "PERSON", Offset: 0, Length: 4, Confidence: 0.9},
	}}
	d := New(provider, zap.NewNop())

	entities, err := d.Detect(context.Background(), "Jane was here", geometry.Custom, nil)
	require.NoError(t, err)
	require.Len(t, entities, 1)
}

func TestDetect_StrictCustomWithEmptyAllowlistReturnsError(t *testing.T) {
	provider := &MockProvider{Entities: []geometry.PHIEntity{
		{Text: "Jane", Category: "PERSON", Offset: 0, Length: 4, Confidence: 0.9},
	}}
	d := New(provider, zap.NewNop(), WithStrictCustomLevel(true))

	entities, err := d.Detect(context.Background(), "Jane was here", geometry.Custom, nil)
	require.Error(t, err)
	assert.Empty(t, entities)
}

func TestChunkText_SplitsOnWhitespaceBoundary(t *testing.T) {
	text := "one two three four five"
	chunks := chunkText(text, 10)
	require.True(t, len(chunks) > 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 10)
	}
	assert.Equal(t, text, joinChunks(chunks))
}

func joinChunks(chunks []string) string {
	out := ""
	for _, c := range chunks {
		out += c
	}
	return out
}
