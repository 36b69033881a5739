package phidetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/geometry"
)

const geminiGenerateContentURL = "https://generativelanguage.googleapis.com/v1beta/models/%s/generateContent?key=%s"

// geminiMaxChunkChars keeps each call comfortably inside Gemini's context
// window while leaving room for the instruction prompt and schema.
const geminiMaxChunkChars = 12000

// GeminiAdapter extracts PHI entities via the Gemini API's structured
// JSON output mode. The teacher's own internal/gemini client was a
// non-functional placeholder (it never issued a real HTTP request), so
// this is a fresh implementation against Gemini's public REST surface
// rather than a port of that code.
type GeminiAdapter struct {
	httpClient *http.Client
	apiKey     string
	model      string
	logger     *zap.Logger
}

// NewGeminiAdapter constructs an adapter. model is a Gemini model name
// such as "gemini-1.5-flash".
func NewGeminiAdapter(apiKey, model string, timeout time.Duration, logger *zap.Logger) *GeminiAdapter {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiAdapter{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		model:      model,
		logger:     logger.Named("phidetect.gemini"),
	}
}

// MaxChunkChars implements Provider.
func (a *GeminiAdapter) MaxChunkChars() int { return geminiMaxChunkChars }

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type detectedEntity struct {
	Text        string  `json:"text"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Offset      int     `json:"offset"`
	Length      int     `json:"length"`
	Confidence  float64 `json:"confidence"`
}

const phiDetectionPrompt = `You are a HIPAA PHI detection engine. Given the document text below,
identify every span containing Protected Health Information (names, dates, ages over 89,
phone/fax numbers, email addresses, SSNs, medical record numbers, account numbers,
device identifiers, geographic subdivisions smaller than a state, vehicle identifiers,
biometric identifiers, full-face photos, URLs, IP addresses, and any other unique
identifying number or code).

Respond with ONLY a JSON array of objects: {"text","category","subcategory","offset","length","confidence"}.
offset and length are character positions into the EXACT text given below (0-indexed, UTF-16 code units).
confidence is a float between 0 and 1. Return an empty array if nothing is found.

TEXT:
`

// DetectChunk implements Provider.
func (a *GeminiAdapter) DetectChunk(ctx context.Context, text string) ([]geometry.PHIEntity, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: phiDetectionPrompt + text}},
		}},
		GenerationConfig: geminiGenerationConfig{ResponseMimeType: "application/json"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling gemini request: %w", err)
	}

	url := fmt.Sprintf(geminiGenerateContentURL, a.model, a.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewPHIDetectError("gemini request failed", err, true)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewPHIDetectError("reading gemini response body", err, true)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apperrors.NewPHIDetectError(fmt.Sprintf("gemini returned status %d", resp.StatusCode), nil, true)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewPHIDetectError(fmt.Sprintf("gemini returned status %d: %s", resp.StatusCode, body), nil, false)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.NewPHIDetectError("decoding gemini envelope", err, false)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, nil
	}

	var detected []detectedEntity
	raw := parsed.Candidates[0].Content.Parts[0].Text
	if err := json.Unmarshal([]byte(raw), &detected); err != nil {
		return nil, apperrors.NewPHIDetectError("decoding gemini entity list", err, false)
	}

	entities := make([]geometry.PHIEntity, 0, len(detected))
	for _, d := range detected {
		if d.Length <= 0 || d.Offset < 0 {
			continue
		}
		confidence := d.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		entities = append(entities, geometry.PHIEntity{
			Text:        d.Text,
			Category:    d.Category,
			Subcategory: d.Subcategory,
			Offset:      d.Offset,
			Length:      d.Length,
			Confidence:  confidence,
		})
	}

	a.logger.Debug("gemini detect chunk", zap.Int("entities_found", len(entities)), zap.Int("chunk_chars", len(text)))
	return entities, nil
}
