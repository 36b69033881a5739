package phidetect

import (
	"context"

	"github.com/redactifai/redactifai-worker/internal/geometry"
)

// MockProvider returns a pre-programmed entity list, for tests and local
// development without a live Gemini key.
type MockProvider struct {
	Entities []geometry.PHIEntity
	Err      error
	ChunkCap int
}

// DetectChunk implements Provider.
func (m *MockProvider) DetectChunk(_ context.Context, _ string) ([]geometry.PHIEntity, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Entities, nil
}

// MaxChunkChars implements Provider.
func (m *MockProvider) MaxChunkChars() int { return m.ChunkCap }
