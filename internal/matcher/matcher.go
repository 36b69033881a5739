// Package matcher maps PHI entities, which are expressed as character
// offsets into an OCR result's flattened full text, back onto the pixel
// bounding boxes of the OCR words that produced that text. This is the
// hardest part of the pipeline: OCR full-text reconstruction rarely lines
// up byte-for-byte with the concatenation of individual word boxes, so the
// matcher has to tolerate glyph drift, whitespace drift, and small offset
// drift introduced by the OCR and PHI-detection providers disagreeing
// about exactly where whitespace goes.
package matcher

import (
	"strings"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/geometry"
	"go.uber.org/zap"
)

// wordOffset is one OCR word located within the flattened full_text.
type wordOffset struct {
	word  geometry.OCRWord
	start int
	end   int
}

func (w wordOffset) containsOffset(o int) bool {
	return o >= w.start && o < w.end
}

func (w wordOffset) overlapsRange(start, end int) bool {
	return w.start < end && w.end > start
}

// Matcher converts PHI entities into mask regions. The zero value is not
// usable; construct with New.
type Matcher struct {
	fuzzyThreshold      int
	confidenceThreshold float64
	boxPaddingPx        int
	logger              *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithConfidenceThreshold drops entities whose confidence is strictly
// below threshold before any matching is attempted.
func WithConfidenceThreshold(threshold float64) Option {
	return func(m *Matcher) { m.confidenceThreshold = threshold }
}

// WithBoxPaddingPx sets the uniform padding applied to every merged mask
// rectangle, in pixels.
func WithBoxPaddingPx(px int) Option {
	return func(m *Matcher) { m.boxPaddingPx = px }
}

// WithFuzzyThreshold sets the maximum Levenshtein distance tolerated when
// validating a text match against OCR drift.
func WithFuzzyThreshold(threshold int) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// New constructs a Matcher with the given logger and options, defaulting
// to a fuzzy threshold of 2 and 5px of box padding.
func New(logger *zap.Logger, opts ...Option) *Matcher {
	m := &Matcher{
		fuzzyThreshold:      2,
		confidenceThreshold: 0.0,
		boxPaddingPx:        5,
		logger:              logger.Named("matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MatchResult is the outcome of matching every entity against an OCR
// result: the mask regions to paint, and any entities that could not be
// matched to a box (collected as warnings rather than hard errors).
type MatchResult struct {
	Regions  []geometry.MaskRegion
	Warnings []*apperrors.MatchingWarning
}

// Match builds an offset map from ocrResult and resolves every entity in
// entities to zero or more mask regions (one per page the entity spans).
func (m *Matcher) Match(ocrResult geometry.OCRResult, entities []geometry.PHIEntity) MatchResult {
	offsetMap := m.buildOffsetMap(ocrResult)
	result := MatchResult{}

	for _, entity := range entities {
		if entity.Confidence < m.confidenceThreshold {
			continue
		}

		overlapping := m.findOverlappingWords(entity, offsetMap, ocrResult.FullText)
		if len(overlapping) == 0 {
			result.Warnings = append(result.Warnings, &apperrors.MatchingWarning{
				EntityCategory: entity.Category,
				Offset:         entity.Offset,
				Length:         entity.Length,
				Reason:         "no overlapping OCR words found for entity span",
			})
			m.logger.Warn("unmatched PHI entity",
				zap.String("category", entity.Category),
				zap.Int("offset", entity.Offset),
				zap.Int("length", entity.Length))
			continue
		}

		byPage := groupByPage(overlapping)
		for page, words := range byPage {
			box := m.mergeBoundingBoxes(words, page)
			result.Regions = append(result.Regions, geometry.MaskRegion{
				Page:           page,
				BoundingBox:    box,
				EntityCategory: entity.Category,
				Subcategory:    entity.Subcategory,
				Text:           entity.Text,
				Offset:         entity.Offset,
				Length:         entity.Length,
				Confidence:     entity.Confidence,
			})
		}
	}

	return result
}

// buildOffsetMap flattens every page's words in reading order and walks
// full_text to find where each word actually landed. A word that cannot
// be located (OCR full-text reconstruction dropped or mangled it) is
// simply omitted from the map; the walk's cursor does not advance past it,
// so the next word is still searched for from the same position.
func (m *Matcher) buildOffsetMap(ocrResult geometry.OCRResult) []wordOffset {
	var allWords []geometry.OCRWord
	for _, page := range ocrResult.Pages {
		allWords = append(allWords, page.Words...)
	}

	fullText := ocrResult.FullText
	offsetMap := make([]wordOffset, 0, len(allWords))
	currentOffset := 0
	wordIndex := 0

	runes := []rune(fullText)
	for wordIndex < len(allWords) && currentOffset < len(runes) {
		for currentOffset < len(runes) && isSpace(runes[currentOffset]) {
			currentOffset++
		}
		if currentOffset >= len(runes) {
			break
		}

		word := allWords[wordIndex]
		if start, end, ok := findWordInText(runes, word.Text, currentOffset, m.fuzzyThreshold); ok {
			offsetMap = append(offsetMap, wordOffset{word: word, start: start, end: end})
			currentOffset = end
		}
		wordIndex++
	}

	return offsetMap
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// findWordInText looks for word starting at startOffset in runes, trying an
// exact match first and falling back to a small fuzzy window to absorb a
// handful of glyph substitutions the OCR engine's full-text layer
// introduced that its own word list did not.
func findWordInText(runes []rune, word string, startOffset, fuzzyThreshold int) (start, end int, ok bool) {
	wordRunes := []rune(word)
	wordLen := len(wordRunes)
	if wordLen == 0 {
		return 0, 0, false
	}

	if startOffset+wordLen <= len(runes) && string(runes[startOffset:startOffset+wordLen]) == word {
		return startOffset, startOffset + wordLen, true
	}

	windowLen := wordLen + 5
	if remaining := len(runes) - startOffset; windowLen > remaining {
		windowLen = remaining
	}
	if windowLen <= 0 {
		return 0, 0, false
	}
	window := runes[startOffset : startOffset+windowLen]

	minLen := wordLen - 2
	if minLen < 1 {
		minLen = 1
	}
	maxLen := wordLen + 3
	if maxLen > len(window) {
		maxLen = len(window)
	}

	bestLen := -1
	bestDistance := -1
	for candidateLen := minLen; candidateLen < maxLen; candidateLen++ {
		candidate := string(window[:candidateLen])
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		distance := levenshtein(word, candidate)
		if distance <= fuzzyThreshold && (bestDistance == -1 || distance < bestDistance) {
			bestDistance = distance
			bestLen = candidateLen
		}
	}
	if bestLen == -1 {
		return 0, 0, false
	}
	return startOffset, startOffset + bestLen, true
}

// findOverlappingWords resolves an entity to the OCR words behind it.
// Primary matching overlaps the entity's character span against the
// offset map and validates the result textually; if that validation fails
// or nothing overlaps at all, fall back to a restricted fuzzy text search.
func (m *Matcher) findOverlappingWords(entity geometry.PHIEntity, offsetMap []wordOffset, fullText string) []wordOffset {
	var overlapping []wordOffset
	for _, wo := range offsetMap {
		if wo.overlapsRange(entity.Offset, entity.EndOffset()) {
			overlapping = append(overlapping, wo)
		}
	}

	if len(overlapping) == 0 {
		return m.fallbackFuzzySearch(entity, offsetMap, fullText)
	}

	words := make([]string, len(overlapping))
	for i, wo := range overlapping {
		words[i] = wo.word.Text
	}
	combined := strings.Join(words, " ")

	threshold := len(entity.Text) / 3
	if m.fuzzyThreshold > threshold {
		threshold = m.fuzzyThreshold
	}
	if levenshtein(strings.ToLower(combined), strings.ToLower(entity.Text)) > threshold {
		return m.fallbackFuzzySearch(entity, offsetMap, fullText)
	}

	return overlapping
}

// fallbackFuzzySearch is deliberately conservative relative to a naive
// full-document fuzzy scan: single-character entities are rejected
// outright (too prone to false positives), and only the first contiguous
// run of matching words is returned rather than every word anywhere in
// the document that resembles the entity text. This keeps a single noisy
// short entity from masking unrelated text far away in a large document.
func (m *Matcher) fallbackFuzzySearch(entity geometry.PHIEntity, offsetMap []wordOffset, fullText string) []wordOffset {
	if len([]rune(entity.Text)) <= 1 {
		return nil
	}
	entityLower := strings.ToLower(entity.Text)
	if !strings.Contains(strings.ToLower(fullText), entityLower) {
		return nil
	}

	for i, wo := range offsetMap {
		wordLower := strings.ToLower(wo.word.Text)
		if !wordLooksLikeEntity(wordLower, entityLower, m.fuzzyThreshold) {
			continue
		}

		run := []wordOffset{wo}
		combined := wo.word.Text
		for j := i + 1; j < len(offsetMap) && len([]rune(combined)) < len([]rune(entity.Text)); j++ {
			candidate := combined + " " + offsetMap[j].word.Text
			if levenshtein(strings.ToLower(candidate), entityLower) < levenshtein(strings.ToLower(combined), entityLower) {
				combined = candidate
				run = append(run, offsetMap[j])
			} else {
				break
			}
		}
		return run
	}

	return nil
}

func wordLooksLikeEntity(wordLower, entityLower string, fuzzyThreshold int) bool {
	if wordLower == "" {
		return false
	}
	if strings.Contains(entityLower, wordLower) || strings.Contains(wordLower, entityLower) {
		return true
	}
	return levenshtein(wordLower, entityLower) <= fuzzyThreshold
}

func groupByPage(words []wordOffset) map[int][]wordOffset {
	byPage := make(map[int][]wordOffset)
	for _, wo := range words {
		page := wo.word.BoundingBox.Page
		byPage[page] = append(byPage[page], wo)
	}
	return byPage
}

// mergeBoundingBoxes unions the boxes of every word in words into a single
// padded rectangle, clamping the top-left corner to the page origin.
func (m *Matcher) mergeBoundingBoxes(words []wordOffset, page int) geometry.BoundingBox {
	minX, minY := words[0].word.BoundingBox.X, words[0].word.BoundingBox.Y
	maxX := words[0].word.BoundingBox.X + words[0].word.BoundingBox.Width
	maxY := words[0].word.BoundingBox.Y + words[0].word.BoundingBox.Height

	for _, wo := range words[1:] {
		box := wo.word.BoundingBox
		if box.X < minX {
			minX = box.X
		}
		if box.Y < minY {
			minY = box.Y
		}
		if box.X+box.Width > maxX {
			maxX = box.X + box.Width
		}
		if box.Y+box.Height > maxY {
			maxY = box.Y + box.Height
		}
	}

	pad := float64(m.boxPaddingPx)
	x := minX - pad
	if x < 0 {
		x = 0
	}
	y := minY - pad
	if y < 0 {
		y = 0
	}

	return geometry.BoundingBox{
		Page:   page,
		X:      x,
		Y:      y,
		Width:  (maxX - minX) + 2*pad,
		Height: (maxY - minY) + 2*pad,
	}
}
