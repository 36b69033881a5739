package masker

import (
	"image"
	"image/color"
	"testing"

	"github.com/redactifai/redactifai-worker/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func whitePage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func TestApply_PaintsOpaqueRegion(t *testing.T) {
	pages := []image.Image{whitePage(100, 100)}
	box, err := geometry.NewBoundingBox(1, 10, 10, 20, 20)
	require.NoError(t, err)
	regions := []geometry.MaskRegion{{Page: 1, BoundingBox: box, EntityCategory: "PERSON"}}

	m, err := New(zap.NewNop())
	require.NoError(t, err)
	out, err := m.Apply(pages, regions)
	require.NoError(t, err)

	r, g, b, a := out[0].At(15, 15).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0), g)
	assert.Equal(t, uint32(0), b)
	assert.Equal(t, uint32(0xffff), a)

	// outside the region must be untouched
	or, _, _, _ := out[0].At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), or)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	pages := []image.Image{whitePage(50, 50)}
	box, err := geometry.NewBoundingBox(1, 0, 0, 50, 50)
	require.NoError(t, err)
	regions := []geometry.MaskRegion{{Page: 1, BoundingBox: box, EntityCategory: "PERSON"}}

	m, err := New(zap.NewNop())
	require.NoError(t, err)
	_, err = m.Apply(pages, regions)
	require.NoError(t, err)

	r, _, _, _ := pages[0].At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestApply_RejectsOutOfRangePage(t *testing.T) {
	pages := []image.Image{whitePage(10, 10)}
	box, err := geometry.NewBoundingBox(2, 0, 0, 5, 5)
	require.NoError(t, err)
	regions := []geometry.MaskRegion{{Page: 2, BoundingBox: box}}

	m, err := New(zap.NewNop())
	require.NoError(t, err)
	_, err = m.Apply(pages, regions)
	assert.Error(t, err)
}

func TestNew_RefusesDebugModeInProduction(t *testing.T) {
	_, err := New(zap.NewNop(), WithDebugMode(true), WithEnvironment("production"))
	assert.Error(t, err)
}

func TestNew_AllowsDebugModeOutsideProduction(t *testing.T) {
	m, err := New(zap.NewNop(), WithDebugMode(true), WithEnvironment("staging"))
	require.NoError(t, err)
	assert.NotNil(t, m)
}
