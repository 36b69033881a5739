// Package geometry defines the uniform word/box data model every OCR
// adapter normalizes into, and the PHI/masking types built on top of it.
package geometry

import "fmt"

// BoundingBox is an axis-aligned pixel rectangle on a single page of a
// document. Page is 1-indexed.
type BoundingBox struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewBoundingBox validates and constructs a BoundingBox.
func NewBoundingBox(page int, x, y, width, height float64) (BoundingBox, error) {
	if page < 1 {
		return BoundingBox{}, fmt.Errorf("bounding box page must be >= 1, got %d", page)
	}
	if width < 0 || height < 0 {
		return BoundingBox{}, fmt.Errorf("bounding box width/height must be >= 0, got %g/%g", width, height)
	}
	return BoundingBox{Page: page, X: x, Y: y, Width: width, Height: height}, nil
}

// OCRWord is one recognized word with its location on the page and the
// OCR engine's confidence in it.
type OCRWord struct {
	Text        string      `json:"text"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
}

// OCRPage is all the words recognized on a single page, in reading order.
type OCRPage struct {
	PageNumber int       `json:"page_number"`
	Words      []OCRWord `json:"words"`
	Width      float64   `json:"width"`
	Height     float64   `json:"height"`
}

// OCRResult is the uniform output of any OCR adapter: the concatenated
// text of the whole document plus the per-page word geometry it was built
// from. FullText is what PHI detection runs against; offsets reported by a
// PHIDetector are character offsets into FullText.
type OCRResult struct {
	Pages    []OCRPage `json:"pages"`
	FullText string    `json:"full_text"`
}

// MaskingLevel selects which PHI categories a detector should flag.
type MaskingLevel int

const (
	// SafeHarbor masks the full HIPAA Safe Harbor category list.
	SafeHarbor MaskingLevel = iota
	// LimitedDataset masks every detected category except the provider
	// and organisation identifiers (physician, hospital, organization,
	// provider), which it retains.
	LimitedDataset
	// Custom masks only the categories named in an operator-supplied
	// allowlist.
	Custom
)

func (l MaskingLevel) String() string {
	switch l {
	case SafeHarbor:
		return "safe_harbor"
	case LimitedDataset:
		return "limited_dataset"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// ParseMaskingLevel parses the storage/wire representation of a masking
// level back into its enum value.
func ParseMaskingLevel(s string) (MaskingLevel, error) {
	switch s {
	case "safe_harbor":
		return SafeHarbor, nil
	case "limited_dataset":
		return LimitedDataset, nil
	case "custom":
		return Custom, nil
	default:
		return 0, fmt.Errorf("unknown masking level %q", s)
	}
}

// PHIEntity is one span of detected protected health information, as a
// character offset range into an OCRResult's FullText plus a category
// classification and confidence.
type PHIEntity struct {
	Text        string  `json:"text"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Offset      int     `json:"offset"`
	Length      int     `json:"length"`
	Confidence  float64 `json:"confidence"`
}

// EndOffset is the exclusive end of the entity's half-open span
// [Offset, EndOffset) into the source text.
func (e PHIEntity) EndOffset() int { return e.Offset + e.Length }

// Overlaps reports whether e's span overlaps the half-open range
// [start, end).
func (e PHIEntity) Overlaps(start, end int) bool {
	return e.Offset < end && e.EndOffset() > start
}

// MaskRegion is one rectangle to paint opaque over a page, attributed to
// the PHI entity (or entities, if merged) it covers.
type MaskRegion struct {
	Page           int         `json:"page"`
	BoundingBox    BoundingBox `json:"bounding_box"`
	EntityCategory string      `json:"entity_category"`
	Subcategory    string      `json:"subcategory,omitempty"`
	Text           string      `json:"text"`
	Offset         int         `json:"offset"`
	Length         int         `json:"length"`
	Confidence     float64     `json:"confidence"`
}

// DocumentMetadata carries format details that must survive a load/save
// round trip (resolution, color mode, compression) plus engine-specific
// extras the pipeline does not interpret itself.
type DocumentMetadata struct {
	DPI             [2]float64        `json:"dpi"`
	ColorMode       string            `json:"color_mode"`
	Compression     string            `json:"compression"`
	OriginalSize    [2]int            `json:"original_size"`
	Extras          map[string]string `json:"extras,omitempty"`
}

// JobStatus is the lifecycle state of a de-identification job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobFailed     JobStatus = "failed"
)

// Job is a durable record of one document de-identification request.
type Job struct {
	ID                string
	Status            JobStatus
	OCRProvider       string
	PHIProvider       string
	MaskingLevel      MaskingLevel
	InputKey          string
	OutputKey         string
	PagesProcessed    int
	PHIEntitiesMasked int
	ProcessingTimeMs  float64
	ErrorMessage      string
	RetryCount        int
}
