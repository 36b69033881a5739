// Package tifffmt implements just enough of the TIFF 6.0 and BigTIFF
// container formats to read and write the multi-page, 8-bit grayscale or
// RGB, LZW-compressed documents this pipeline produces and consumes. It
// does not attempt to be a general-purpose TIFF library: unsupported
// photometric interpretations, bit depths, or compression schemes in an
// input file are reported as errors rather than guessed at.
//
// No pack dependency exposes a multi-page/BigTIFF writer, so the IFD
// chain itself is framed by hand with encoding/binary; the LZW codec
// used for strip data comes from golang.org/x/image/tiff/lzw, the same
// package the standard single-image x/image/tiff decoder uses.
package tifffmt

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/tiff/lzw"
)

// Page is one decoded or to-be-encoded TIFF image plus its resolution.
type Page struct {
	Image image.Image
	DPIX  float64
	DPIY  float64
}

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagXResolution     = 282
	tagYResolution     = 283
	tagResolutionUnit  = 296
)

const (
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeLong8    = 16 // BigTIFF only
)

const (
	compressionNone = 1
	compressionLZW  = 5
)

const (
	photometricGray = 1
	photometricRGB  = 2
)

const (
	classicVersion = 42
	bigVersion     = 43
)

// Encode writes pages as a single multi-page TIFF. When big is true the
// file is framed as BigTIFF (8-byte offsets), which the caller should
// request once pages exceed the streaming threshold so very large
// documents never require a 32-bit offset to reach past 4GiB.
func Encode(w io.Writer, pages []Page, big bool) error {
	bw := bufio.NewWriter(w)
	if big {
		if err := encodeBig(bw, pages); err != nil {
			return err
		}
	} else {
		if err := encodeClassic(bw, pages); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// planeOf converts page img into either 8-bit grayscale or 8-bit RGB raw
// row-major bytes, picking grayscale only when the source color model is
// itself gray to avoid silently discarding color information.
func planeOf(img image.Image) (raw []byte, samplesPerPixel int, photometric int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if _, isGray := img.(*image.Gray); isGray || isGrayModel(img.ColorModel()) {
		raw = make([]byte, w*h)
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
				raw[i] = g.Y
				i++
			}
		}
		return raw, 1, photometricGray
	}

	raw = make([]byte, w*h*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			raw[i] = uint8(r >> 8)
			raw[i+1] = uint8(g >> 8)
			raw[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
	return raw, 3, photometricRGB
}

func isGrayModel(m color.Model) bool {
	return m == color.GrayModel || m == color.Gray16Model
}

func lzwCompress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lzw.NewWriter(&buf, lzw.MSB, 8)
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("lzw compressing strip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing lzw writer: %w", err)
	}
	return buf.Bytes(), nil
}

func lzwDecompress(data []byte, n int) ([]byte, error) {
	zr := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	defer zr.Close()
	out := make([]byte, n)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("lzw decompressing strip: %w", err)
	}
	return out, nil
}

func dpiRational(dpi float64) (uint32, uint32) {
	if dpi <= 0 {
		dpi = 300
	}
	return uint32(dpi * 1000), 1000
}
