package tifffmt

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
)

// Decode reads every page of a classic or BigTIFF file produced by Encode
// (or by a sufficiently close-to-baseline scanner/OCR pipeline: 8-bit
// grayscale or RGB, uncompressed or LZW-compressed, single strip per
// page). Anything outside that is reported as an error rather than
// guessed at.
func Decode(r io.Reader) ([]Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading tiff stream: %w", err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("tiff stream too short")
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a tiff stream: bad byte order marker")
	}

	version := order.Uint16(data[2:4])
	switch version {
	case classicVersion:
		return decodeClassic(data, order)
	case bigVersion:
		return decodeBig(data, order)
	default:
		return nil, fmt.Errorf("unsupported tiff version %d", version)
	}
}

func decodeClassic(data []byte, order binary.ByteOrder) ([]Page, error) {
	ifdOffset := order.Uint32(data[4:8])
	var pages []Page

	for ifdOffset != 0 {
		if int(ifdOffset)+2 > len(data) {
			return nil, fmt.Errorf("ifd offset out of range")
		}
		numEntries := int(order.Uint16(data[ifdOffset : ifdOffset+2]))
		tags := make(map[uint16]classicEntry, numEntries)

		base := int(ifdOffset) + 2
		for i := 0; i < numEntries; i++ {
			off := base + i*12
			if off+12 > len(data) {
				return nil, fmt.Errorf("ifd entry out of range")
			}
			e := classicEntry{
				tag:   order.Uint16(data[off : off+2]),
				typ:   order.Uint16(data[off+2 : off+4]),
				count: order.Uint32(data[off+4 : off+8]),
				value: order.Uint32(data[off+8 : off+12]),
			}
			tags[e.tag] = e
		}

		page, err := decodeClassicPage(data, order, tags)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)

		nextOff := base + numEntries*12
		if nextOff+4 > len(data) {
			return nil, fmt.Errorf("ifd chain pointer out of range")
		}
		ifdOffset = order.Uint32(data[nextOff : nextOff+4])
	}

	return pages, nil
}

func decodeClassicPage(data []byte, order binary.ByteOrder, tags map[uint16]classicEntry) (Page, error) {
	width := int(tags[tagImageWidth].value)
	height := int(tags[tagImageLength].value)
	compression := tags[tagCompression].value
	photometric := tags[tagPhotometric].value
	samples := tags[tagSamplesPerPixel].value
	if samples == 0 {
		samples = 1
	}
	stripOffset := tags[tagStripOffsets].value
	stripByteCount := tags[tagStripByteCounts].value

	if int(stripOffset)+int(stripByteCount) > len(data) {
		return Page{}, fmt.Errorf("strip data out of range")
	}
	stripData := data[stripOffset : stripOffset+stripByteCount]

	raw, err := decompressStrip(stripData, compression, width*height*int(samples))
	if err != nil {
		return Page{}, err
	}

	img, err := planeToImage(raw, width, height, int(samples), int(photometric))
	if err != nil {
		return Page{}, err
	}

	dpiX := rationalToFloat(order, data, tags[tagXResolution])
	dpiY := rationalToFloat(order, data, tags[tagYResolution])

	return Page{Image: img, DPIX: dpiX, DPIY: dpiY}, nil
}

func decodeBig(data []byte, order binary.ByteOrder) ([]Page, error) {
	ifdOffset := order.Uint64(data[8:16])
	var pages []Page

	for ifdOffset != 0 {
		if int(ifdOffset)+8 > len(data) {
			return nil, fmt.Errorf("ifd offset out of range")
		}
		numEntries := int(order.Uint64(data[ifdOffset : ifdOffset+8]))
		tags := make(map[uint16]bigEntry, numEntries)

		base := int(ifdOffset) + 8
		for i := 0; i < numEntries; i++ {
			off := base + i*20
			if off+20 > len(data) {
				return nil, fmt.Errorf("ifd entry out of range")
			}
			e := bigEntry{
				tag:   order.Uint16(data[off : off+2]),
				typ:   order.Uint16(data[off+2 : off+4]),
				count: order.Uint64(data[off+4 : off+12]),
				value: order.Uint64(data[off+12 : off+20]),
			}
			tags[e.tag] = e
		}

		page, err := decodeBigPage(data, order, tags)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)

		nextOff := base + numEntries*20
		if nextOff+8 > len(data) {
			return nil, fmt.Errorf("ifd chain pointer out of range")
		}
		ifdOffset = order.Uint64(data[nextOff : nextOff+8])
	}

	return pages, nil
}

func decodeBigPage(data []byte, order binary.ByteOrder, tags map[uint16]bigEntry) (Page, error) {
	width := int(tags[tagImageWidth].value)
	height := int(tags[tagImageLength].value)
	compression := tags[tagCompression].value
	photometric := tags[tagPhotometric].value
	samples := tags[tagSamplesPerPixel].value
	if samples == 0 {
		samples = 1
	}
	stripOffset := tags[tagStripOffsets].value
	stripByteCount := tags[tagStripByteCounts].value

	if int(stripOffset)+int(stripByteCount) > len(data) {
		return Page{}, fmt.Errorf("strip data out of range")
	}
	stripData := data[stripOffset : stripOffset+stripByteCount]

	raw, err := decompressStrip(stripData, uint32(compression), width*height*int(samples))
	if err != nil {
		return Page{}, err
	}

	img, err := planeToImage(raw, width, height, int(samples), int(photometric))
	if err != nil {
		return Page{}, err
	}

	dpiX := rationalToFloatBig(order, data, tags[tagXResolution])
	dpiY := rationalToFloatBig(order, data, tags[tagYResolution])

	return Page{Image: img, DPIX: dpiX, DPIY: dpiY}, nil
}

func decompressStrip(stripData []byte, compression uint32, expectedLen int) ([]byte, error) {
	switch compression {
	case compressionNone:
		if len(stripData) != expectedLen {
			return nil, fmt.Errorf("uncompressed strip has unexpected length")
		}
		return stripData, nil
	case compressionLZW:
		return lzwDecompress(stripData, expectedLen)
	default:
		return nil, fmt.Errorf("unsupported tiff compression scheme %d", compression)
	}
}

func planeToImage(raw []byte, width, height, samples, photometric int) (image.Image, error) {
	switch {
	case samples == 1 && photometric == photometricGray:
		img := image.NewGray(image.Rect(0, 0, width, height))
		copy(img.Pix, raw)
		return img, nil
	case samples == 3 && photometric == photometricRGB:
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		for i := 0; i < width*height; i++ {
			img.Pix[i*4] = raw[i*3]
			img.Pix[i*4+1] = raw[i*3+1]
			img.Pix[i*4+2] = raw[i*3+2]
			img.Pix[i*4+3] = 0xff
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported sample/photometric combination: %d samples, photometric %d", samples, photometric)
	}
}

func rationalToFloat(order binary.ByteOrder, data []byte, e classicEntry) float64 {
	if e.typ != typeRational || e.count == 0 {
		return 300
	}
	off := e.value
	if int(off)+8 > len(data) {
		return 300
	}
	num := order.Uint32(data[off : off+4])
	den := order.Uint32(data[off+4 : off+8])
	if den == 0 {
		return 300
	}
	return float64(num) / float64(den)
}

func rationalToFloatBig(order binary.ByteOrder, data []byte, e bigEntry) float64 {
	if e.typ != typeRational || e.count == 0 {
		return 300
	}
	off := e.value
	if int(off)+8 > len(data) {
		return 300
	}
	num := order.Uint32(data[off : off+4])
	den := order.Uint32(data[off+4 : off+8])
	if den == 0 {
		return 300
	}
	return float64(num) / float64(den)
}
