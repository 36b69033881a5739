// Package masker paints opaque rectangles over the pixel regions an entity
// matcher has identified as containing PHI.
package masker

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/redactifai/redactifai-worker/internal/geometry"
	"go.uber.org/zap"
)

// productionEnvironment mirrors internal/config's value for Config.Environment.
const productionEnvironment = "production"

// Masker paints MaskRegions onto document pages. It never mutates its
// input images; every call returns fresh copies.
type Masker struct {
	logger      *zap.Logger
	debugMode   bool
	environment string
	fillColor   color.Color
}

// Option configures a Masker.
type Option func(*Masker)

// WithDebugMode enables semi-transparent, category-colored fills instead
// of solid black rectangles, for visually auditing match quality. It must
// never be enabled in production; New refuses to construct a Masker with
// debug mode on when WithEnvironment reports "production".
func WithDebugMode(enabled bool) Option {
	return func(m *Masker) { m.debugMode = enabled }
}

// WithEnvironment records the deployment environment so New can refuse to
// build a debug-mode Masker in production.
func WithEnvironment(environment string) Option {
	return func(m *Masker) { m.environment = environment }
}

// New constructs a Masker that paints solid black rectangles by default.
// It returns an error if WithDebugMode(true) is combined with
// WithEnvironment("production"): debug fills leak category information
// about masked PHI into the output image and must never run there.
func New(logger *zap.Logger, opts ...Option) (*Masker, error) {
	m := &Masker{
		logger:    logger.Named("masker"),
		fillColor: color.Black,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.debugMode && m.environment == productionEnvironment {
		return nil, fmt.Errorf("masker: debug mode is refused in production")
	}
	return m, nil
}

// Apply returns a new slice of images with every region in regions painted
// opaque on its corresponding page. pages is 1-indexed by MaskRegion.Page;
// pages[0] is page 1.
func (m *Masker) Apply(pages []image.Image, regions []geometry.MaskRegion) ([]image.Image, error) {
	out := make([]image.Image, len(pages))
	for i, p := range pages {
		out[i] = cloneImage(p)
	}

	for _, region := range regions {
		if region.Page < 1 || region.Page > len(out) {
			return nil, fmt.Errorf("mask region references page %d but document has %d pages", region.Page, len(out))
		}
		dst, ok := out[region.Page-1].(draw.Image)
		if !ok {
			return nil, fmt.Errorf("page %d image does not support in-place drawing", region.Page)
		}
		rect := image.Rect(
			int(region.BoundingBox.X),
			int(region.BoundingBox.Y),
			int(region.BoundingBox.X+region.BoundingBox.Width),
			int(region.BoundingBox.Y+region.BoundingBox.Height),
		).Intersect(dst.Bounds())

		if m.debugMode {
			m.paintDebugFill(dst, rect, region.EntityCategory)
		} else {
			draw.Draw(dst, rect, image.NewUniform(m.fillColor), image.Point{}, draw.Src)
		}
	}

	m.logger.Debug("applied mask regions", zap.Int("region_count", len(regions)), zap.Int("page_count", len(pages)))
	return out, nil
}

// paintDebugFill blends a semi-transparent category-colored fill over rect
// using x/image/draw's alpha compositing, so overlapping debug regions
// remain visually distinguishable instead of becoming solid blocks.
func (m *Masker) paintDebugFill(dst draw.Image, rect image.Rectangle, category string) {
	c := debugColorForCategory(category)
	xdraw.DrawMask(dst, rect, image.NewUniform(c), image.Point{}, nil, image.Point{}, xdraw.Over)
}

func debugColorForCategory(category string) color.Color {
	var seed uint32
	for _, r := range category {
		seed = seed*31 + uint32(r)
	}
	return color.NRGBA{
		R: uint8(seed % 200),
		G: uint8((seed / 7) % 200),
		B: uint8((seed / 13) % 200),
		A: 120,
	}
}

func cloneImage(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}
