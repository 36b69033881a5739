package docproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/redactifai/redactifai-worker/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayPage(w, h int, fill uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	return img
}

func TestSaveLoadRoundTripPreservesGeometry(t *testing.T) {
	pages := []image.Image{grayPage(20, 10, 128), grayPage(20, 10, 64)}
	meta := geometry.DocumentMetadata{DPI: [2]float64{300, 300}}

	p := New()
	data, err := p.Save(pages, meta)
	require.NoError(t, err)

	loaded, loadedMeta, err := p.Load(data)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, pages[0].Bounds(), loaded[0].Bounds())
	assert.InDelta(t, 300, loadedMeta.DPI[0], 0.5)
	assert.InDelta(t, 300, loadedMeta.DPI[1], 0.5)

	r, _, _, _ := loaded[0].At(0, 0).RGBA()
	want, _, _, _ := color.Gray{Y: 128}.RGBA()
	assert.Equal(t, want, r)
}

func TestSaveStreamsAboveThreshold(t *testing.T) {
	pages := make([]image.Image, 3)
	for i := range pages {
		pages[i] = grayPage(4, 4, 200)
	}
	meta := geometry.DocumentMetadata{DPI: [2]float64{150, 150}}

	p := New(WithStreamingThreshold(2))
	data, err := p.Save(pages, meta)
	require.NoError(t, err)

	loaded, _, err := p.Load(data)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestLoadRejectsUnrecognizedFormat(t *testing.T) {
	p := New()
	_, _, err := p.Load([]byte("not a document"))
	assert.Error(t, err)
}
