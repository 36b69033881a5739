package ocr

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/apiv1"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	visionpb "google.golang.org/genproto/googleapis/cloud/vision/v1"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/geometry"
	"github.com/redactifai/redactifai-worker/internal/logging"
)

// GoogleVisionAdapter implements Service using the Google Cloud Vision
// DOCUMENT_TEXT_DETECTION feature, walking its Pages→Blocks→Paragraphs→
// Words→Symbols hierarchy down to individual word bounding boxes.
type GoogleVisionAdapter struct {
	logger *zap.Logger
	client *vision.ImageAnnotatorClient
}

// NewGoogleVisionAdapter dials the Vision API client. apiKey may be
// empty when Application Default Credentials are configured instead.
func NewGoogleVisionAdapter(ctx context.Context, logger *zap.Logger, apiKey string) (*GoogleVisionAdapter, error) {
	var opts []option.ClientOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}
	return &GoogleVisionAdapter{logger: logger.Named("ocr.google_vision"), client: client}, nil
}

const operation = "GoogleVisionAdapter.Analyze"

// Analyze sends a single page image through DOCUMENT_TEXT_DETECTION and
// flattens the result into the uniform word/box model.
func (a *GoogleVisionAdapter) Analyze(ctx context.Context, imageData []byte, formatHint, language string) (string, geometry.OCRPage, error) {
	jobID := logging.JobIDFromContext(ctx)

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: imageData},
		Features: []*visionpb.Feature{{
			Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
		}},
	}
	if language != "" {
		req.ImageContext = &visionpb.ImageContext{LanguageHints: []string{language}}
	}

	batch := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{req}}

	resp, err := a.client.BatchAnnotateImages(ctx, batch)
	if err != nil {
		a.logger.Error("vision api call failed", zap.String("operation", operation), zap.String("job_id", jobID), zap.Error(err))
		return "", geometry.OCRPage{}, apperrors.NewOCRError("google vision api call failed", err, true)
	}
	if len(resp.GetResponses()) == 0 {
		return "", geometry.OCRPage{}, apperrors.NewOCRError("google vision returned no responses", nil, true)
	}

	annotation := resp.Responses[0]
	if apiErr := annotation.GetError(); apiErr != nil {
		retryable := apiErr.GetCode() != 3 // INVALID_ARGUMENT is terminal, other codes assumed transient
		return "", geometry.OCRPage{}, apperrors.NewOCRError(
			fmt.Sprintf("google vision api error: %s", apiErr.GetMessage()), nil, retryable)
	}

	full := annotation.GetFullTextAnnotation()
	if full == nil {
		return "", geometry.OCRPage{PageNumber: 1}, nil
	}

	page, err := wordsFromAnnotation(full)
	if err != nil {
		return "", geometry.OCRPage{}, apperrors.NewOCRError("decoding vision word geometry", err, false)
	}

	a.logger.Debug("vision ocr page decoded",
		zap.String("job_id", jobID), zap.Int("word_count", len(page.Words)), zap.Int("text_length", len(full.GetText())))

	return full.GetText(), page, nil
}

func wordsFromAnnotation(full *visionpb.TextAnnotation) (geometry.OCRPage, error) {
	if len(full.Pages) == 0 {
		return geometry.OCRPage{PageNumber: 1}, nil
	}
	visionPage := full.Pages[0]

	out := geometry.OCRPage{
		PageNumber: 1,
		Width:      float64(visionPage.GetWidth()),
		Height:     float64(visionPage.GetHeight()),
	}

	for _, block := range visionPage.GetBlocks() {
		for _, paragraph := range block.GetParagraphs() {
			for _, word := range paragraph.GetWords() {
				text, confidence := wordText(word)
				if text == "" {
					continue
				}
				box, err := boxFromVertices(word.GetBoundingBox().GetVertices())
				if err != nil {
					continue
				}
				out.Words = append(out.Words, geometry.OCRWord{
					Text:        text,
					BoundingBox: box,
					Confidence:  confidence,
				})
			}
		}
	}
	return out, nil
}

func wordText(word *visionpb.Word) (string, float64) {
	var text string
	var total float64
	symbols := word.GetSymbols()
	for _, symbol := range symbols {
		text += symbol.GetText()
		total += float64(symbol.GetConfidence())
	}
	if len(symbols) == 0 {
		return "", 0
	}
	return text, total / float64(len(symbols))
}

// boxFromVertices collapses a (possibly rotated) four-point polygon into
// an axis-aligned box by taking (min x, min y, max x - min x, max y -
// min y), per the uniform model's normalization rule.
func boxFromVertices(vertices []*visionpb.Vertex) (geometry.BoundingBox, error) {
	if len(vertices) == 0 {
		return geometry.BoundingBox{}, fmt.Errorf("word has no bounding polygon")
	}
	minX, minY := int32(1<<31-1), int32(1<<31-1)
	maxX, maxY := int32(-1<<31), int32(-1<<31)
	for _, v := range vertices {
		if v.GetX() < minX {
			minX = v.GetX()
		}
		if v.GetY() < minY {
			minY = v.GetY()
		}
		if v.GetX() > maxX {
			maxX = v.GetX()
		}
		if v.GetY() > maxY {
			maxY = v.GetY()
		}
	}
	return geometry.NewBoundingBox(1, float64(minX), float64(minY), float64(maxX-minX), float64(maxY-minY))
}
