// Package pipeline sequences a document through load, OCR, PHI
// detection, entity matching, masking, and reassembly.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/docproc"
	"github.com/redactifai/redactifai-worker/internal/geometry"
	"github.com/redactifai/redactifai-worker/internal/logging"
	"github.com/redactifai/redactifai-worker/internal/masker"
	"github.com/redactifai/redactifai-worker/internal/matcher"
	"github.com/redactifai/redactifai-worker/internal/ocr"
	"github.com/redactifai/redactifai-worker/internal/phidetect"
)

// pageSeparator joins per-page OCR text into one document-level string in
// analyzeInBatches. It is exactly one character wide, so each page's text
// starts one offset past the end of the previous page's text.
const pageSeparator = "\f"

// Result is what a successful (or partially successful, in fail-open
// mode) Deidentify run returns.
type Result struct {
	OutputBytes       []byte
	PagesProcessed    int
	PHIEntitiesMasked int
	Regions           []geometry.MaskRegion
	Warnings          []*apperrors.MatchingWarning
	Metadata          geometry.DocumentMetadata
}

// Pipeline wires the document processor, OCR adapter, PHI detector, and
// masker into the end-to-end de-identification flow.
type Pipeline struct {
	logger    *zap.Logger
	docproc   *docproc.Processor
	ocr       ocr.Service
	detector  *phidetect.Detector
	matcher   *matcher.Matcher
	masker    *masker.Masker
	batchSize int
	failOpen  bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize overrides how many pages are OCR'd per analysis batch
// for large documents.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFailOpen controls whether a batch failure on a large document
// still produces a partially masked output (true) or aborts the whole
// job (false, the default). Fail-open is an explicit operator opt-in:
// it must never be the default, since a partially masked document can
// leak PHI through the unprocessed remainder if callers don't treat the
// job's FAILED status as a hard stop on distribution.
func WithFailOpen(enabled bool) Option {
	return func(p *Pipeline) { p.failOpen = enabled }
}

// New constructs a Pipeline.
func New(logger *zap.Logger, dp *docproc.Processor, ocrSvc ocr.Service, detector *phidetect.Detector, m *matcher.Matcher, mk *masker.Masker, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:    logger.Named("pipeline"),
		docproc:   dp,
		ocr:       ocrSvc,
		detector:  detector,
		matcher:   m,
		masker:    mk,
		batchSize: 10,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Deidentify runs the full load→OCR→detect→match→mask→reassemble
// sequence over an input document.
func (p *Pipeline) Deidentify(ctx context.Context, data []byte, level geometry.MaskingLevel, customAllowlist []string) (Result, error) {
	jobID := logging.JobIDFromContext(ctx)

	pages, meta, err := p.docproc.Load(data)
	if err != nil {
		return Result{}, err
	}

	ocrResult, err := p.analyzeInBatches(ctx, pages, meta)
	if err != nil {
		if !p.failOpen {
			return Result{}, err
		}
		p.logger.Warn("batch ocr failure, continuing with partial result under fail-open policy",
			zap.String("job_id", jobID), zap.Error(err))
	}

	entities, err := p.detector.Detect(ctx, ocrResult.FullText, level, customAllowlist)
	if err != nil {
		return Result{}, err
	}

	matchResult := p.matcher.Match(ocrResult, entities)
	for _, w := range matchResult.Warnings {
		p.logger.Warn("entity match warning",
			zap.String("job_id", jobID), zap.String("category", w.EntityCategory), zap.String("reason", w.Reason))
	}

	masked, err := p.masker.Apply(pages, matchResult.Regions)
	if err != nil {
		return Result{}, err
	}

	out, err := p.docproc.Save(masked, meta)
	if err != nil {
		return Result{}, err
	}

	return Result{
		OutputBytes:       out,
		PagesProcessed:    len(pages),
		PHIEntitiesMasked: len(matchResult.Regions),
		Regions:           matchResult.Regions,
		Warnings:          matchResult.Warnings,
		Metadata:          meta,
	}, nil
}

// analyzeInBatches OCRs the already decoded pages in groups of
// p.batchSize, one provider call per page, and reassembles one OCRResult
// covering the whole document. Every decoded page and every page's OCR
// words stay in memory for the whole run; detection, masking and
// reassembly run once over the whole document afterwards.
func (p *Pipeline) analyzeInBatches(ctx context.Context, pages []image.Image, meta geometry.DocumentMetadata) (geometry.OCRResult, error) {
	var allPages []geometry.OCRPage
	var textParts []string

	for start := 0; start < len(pages); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pages) {
			end = len(pages)
		}

		for i := start; i < end; i++ {
			encoded, err := p.docproc.OptimizeForOCR([]image.Image{pages[i]}, meta, 20)
			if err != nil {
				return geometry.OCRResult{}, err
			}

			text, page, err := p.ocr.Analyze(ctx, encoded, "image/tiff", "")
			if err != nil {
				return geometry.OCRResult{}, fmt.Errorf("ocr analyze page %d: %w", i+1, err)
			}
			page.PageNumber = i + 1
			for w := range page.Words {
				page.Words[w].BoundingBox.Page = i + 1
			}
			allPages = append(allPages, page)
			textParts = append(textParts, text)
		}
	}

	return geometry.OCRResult{
		Pages:    allPages,
		FullText: strings.Join(textParts, pageSeparator),
	}, nil
}
