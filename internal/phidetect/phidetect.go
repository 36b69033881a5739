// Package phidetect adapts third-party PHI-detection providers into a
// uniform, offset-sorted span list, and applies masking-level filtering
// and per-call chunking so adapters themselves stay provider-shaped.
package phidetect

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/geometry"
)

// providerOrgCategories are the identifiers LIMITED_DATASET suppresses:
// the provider/organisation-affiliated identifiers that a limited
// dataset (as opposed to full de-identification) is still allowed to
// retain under HIPAA.
var providerOrgCategories = map[string]bool{
	"PHYSICIAN":    true,
	"HOSPITAL":     true,
	"ORGANIZATION": true,
	"PROVIDER":     true,
}

// Provider is the contract a PHI-detection backend implements. It
// returns every entity it can find in text, without applying masking
// level filtering itself — Detector applies that uniformly across
// providers.
type Provider interface {
	DetectChunk(ctx context.Context, text string) ([]geometry.PHIEntity, error)
	// MaxChunkChars is the provider's per-call character cap, or 0 if
	// the provider has none.
	MaxChunkChars() int
}

// Detector wraps a Provider with chunking and masking-level filtering.
type Detector struct {
	provider          Provider
	logger            *zap.Logger
	strictCustomLevel bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithStrictCustomLevel makes CUSTOM + an empty allowlist a hard error
// instead of the default degrade-to-SAFE_HARBOR-with-warning behavior.
func WithStrictCustomLevel(strict bool) Option {
	return func(d *Detector) { d.strictCustomLevel = strict }
}

// New constructs a Detector.
func New(provider Provider, logger *zap.Logger, opts ...Option) *Detector {
	d := &Detector{provider: provider, logger: logger.Named("phidetect")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect chunks fullText per the provider's cap, re-bases each chunk's
// offsets onto fullText, applies masking-level filtering, and returns
// entities sorted by offset ascending.
func (d *Detector) Detect(ctx context.Context, fullText string, level geometry.MaskingLevel, customAllowlist []string) ([]geometry.PHIEntity, error) {
	if level == geometry.Custom && len(customAllowlist) == 0 && d.strictCustomLevel {
		return nil, apperrors.NewFormatError("custom masking level requires a non-empty category allowlist", nil)
	}

	chunks := chunkText(fullText, d.provider.MaxChunkChars())

	var entities []geometry.PHIEntity
	offset := 0
	for _, chunk := range chunks {
		found, err := d.provider.DetectChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for _, e := range found {
			e.Offset += offset
			entities = append(entities, e)
		}
		offset += len(chunk)
	}

	filtered, warned := d.filterByLevel(entities, level, customAllowlist)
	if warned {
		d.logger.Warn("custom masking level had empty allowlist, degraded to safe_harbor")
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Offset < filtered[j].Offset })
	return filtered, nil
}

func (d *Detector) filterByLevel(entities []geometry.PHIEntity, level geometry.MaskingLevel, customAllowlist []string) ([]geometry.PHIEntity, bool) {
	switch level {
	case geometry.LimitedDataset:
		out := make([]geometry.PHIEntity, 0, len(entities))
		for _, e := range entities {
			if !providerOrgCategories[e.Category] {
				out = append(out, e)
			}
		}
		return out, false

	case geometry.Custom:
		if len(customAllowlist) == 0 {
			return entities, true
		}
		allowed := make(map[string]bool, len(customAllowlist))
		for _, c := range customAllowlist {
			allowed[c] = true
		}
		out := make([]geometry.PHIEntity, 0, len(entities))
		for _, e := range entities {
			if allowed[e.Category] {
				out = append(out, e)
			}
		}
		return out, false

	default: // SafeHarbor
		return entities, false
	}
}

// chunkText splits text into pieces no longer than maxChars bytes,
// breaking just after the nearest preceding whitespace so a word is not
// split across a chunk boundary (which would otherwise corrupt an
// entity's recognized text). A run without whitespace longer than
// maxChars is cut at maxChars. maxChars<=0 means no chunking is needed.
func chunkText(text string, maxChars int) []string {
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		splitAt := lastWhitespaceBefore(text, end)
		if splitAt <= start {
			splitAt = end
		}
		chunks = append(chunks, text[start:splitAt])
		start = splitAt
	}
	return chunks
}

func lastWhitespaceBefore(text string, idx int) int {
	for i := idx - 1; i > 0; i-- {
		switch text[i] {
		case ' ', '\n', '\t', '\r':
			return i + 1
		}
	}
	return 0
}
