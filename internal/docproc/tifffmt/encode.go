package tifffmt

import (
	"encoding/binary"
	"io"
)

// classicEntry is a resolved 12-byte IFD entry for classic TIFF.
type classicEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value uint32 // valid when the value fits in 4 bytes; offset otherwise
}

func encodeClassic(w io.Writer, pages []Page) error {
	order := binary.LittleEndian

	// Header: byte order, version, offset of first IFD.
	if err := writeUint16(w, order, 0x4949); err != nil { // "II"
		return err
	}
	if err := writeUint16(w, order, classicVersion); err != nil {
		return err
	}

	// First IFD starts right after the 8-byte header.
	var pos uint32 = 8
	if err := writeUint32(w, order, pos); err != nil {
		return err
	}

	for i, p := range pages {
		raw, samples, photometric := planeOf(p.Image)
		compressed, err := lzwCompress(raw)
		if err != nil {
			return err
		}
		b := p.Image.Bounds()
		width, height := uint32(b.Dx()), uint32(b.Dy())
		xNum, xDen := dpiRational(p.DPIX)
		yNum, yDen := dpiRational(p.DPIY)

		bitsPerSampleVal := uint32(8)

		entries := []classicEntry{
			{tagImageWidth, typeLong, 1, width},
			{tagImageLength, typeLong, 1, height},
			{tagBitsPerSample, typeShort, 1, bitsPerSampleVal},
			{tagCompression, typeShort, 1, compressionLZW},
			{tagPhotometric, typeShort, 1, uint32(photometric)},
			{tagSamplesPerPixel, typeShort, 1, uint32(samples)},
			{tagRowsPerStrip, typeLong, 1, height},
			{tagStripByteCounts, typeLong, 1, uint32(len(compressed))},
			{tagResolutionUnit, typeShort, 1, 2}, // inches
		}

		// Strip data, the two rational tags' payloads, and this IFD's own
		// bytes all live after the fixed-size entry table; compute their
		// offsets up front so the entries can reference them.
		numEntries := len(entries) + 3 // + StripOffsets + XRes + YRes
		ifdSize := uint32(2 + numEntries*12 + 4)
		ifdStart := pos
		xResOffset := ifdStart + ifdSize
		yResOffset := xResOffset + 8
		stripOffset := yResOffset + 8

		entries = append(entries,
			classicEntry{tagStripOffsets, typeLong, 1, stripOffset},
			classicEntry{tagXResolution, typeRational, 1, xResOffset},
			classicEntry{tagYResolution, typeRational, 1, yResOffset},
		)
		sortClassicEntries(entries)

		nextIFD := stripOffset + uint32(len(compressed))
		if isLast := i == len(pages)-1; isLast {
			nextIFD = 0
		}

		if err := writeUint16(w, order, uint16(len(entries))); err != nil {
			return err
		}
		for _, e := range entries {
			if err := writeClassicEntry(w, order, e); err != nil {
				return err
			}
		}
		if err := writeUint32(w, order, nextIFD); err != nil {
			return err
		}

		if err := writeUint32(w, order, xNum); err != nil {
			return err
		}
		if err := writeUint32(w, order, xDen); err != nil {
			return err
		}
		if err := writeUint32(w, order, yNum); err != nil {
			return err
		}
		if err := writeUint32(w, order, yDen); err != nil {
			return err
		}

		if _, err := w.Write(compressed); err != nil {
			return err
		}

		pos = nextIFD
	}

	return nil
}

func sortClassicEntries(entries []classicEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].tag > entries[j].tag; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func writeClassicEntry(w io.Writer, order binary.ByteOrder, e classicEntry) error {
	if err := writeUint16(w, order, e.tag); err != nil {
		return err
	}
	if err := writeUint16(w, order, e.typ); err != nil {
		return err
	}
	if err := writeUint32(w, order, e.count); err != nil {
		return err
	}
	return writeUint32(w, order, e.value)
}

// bigEntry is a resolved 20-byte IFD entry for BigTIFF.
type bigEntry struct {
	tag   uint16
	typ   uint16
	count uint64
	value uint64
}

func encodeBig(w io.Writer, pages []Page) error {
	order := binary.LittleEndian

	if err := writeUint16(w, order, 0x4949); err != nil {
		return err
	}
	if err := writeUint16(w, order, bigVersion); err != nil {
		return err
	}
	if err := writeUint16(w, order, 8); err != nil { // offset byte size
		return err
	}
	if err := writeUint16(w, order, 0); err != nil { // constant, always 0
		return err
	}

	var pos uint64 = 16
	if err := writeUint64(w, order, pos); err != nil {
		return err
	}

	for i, p := range pages {
		raw, samples, photometric := planeOf(p.Image)
		compressed, err := lzwCompress(raw)
		if err != nil {
			return err
		}
		b := p.Image.Bounds()
		width, height := uint64(b.Dx()), uint64(b.Dy())
		xNum, xDen := dpiRational(p.DPIX)
		yNum, yDen := dpiRational(p.DPIY)

		entries := []bigEntry{
			{tagImageWidth, typeLong, 1, width},
			{tagImageLength, typeLong, 1, height},
			{tagBitsPerSample, typeShort, 1, 8},
			{tagCompression, typeShort, 1, compressionLZW},
			{tagPhotometric, typeShort, 1, uint64(photometric)},
			{tagSamplesPerPixel, typeShort, 1, uint64(samples)},
			{tagRowsPerStrip, typeLong, 1, height},
			{tagStripByteCounts, typeLong8, 1, uint64(len(compressed))},
			{tagResolutionUnit, typeShort, 1, 2},
		}

		numEntries := len(entries) + 3
		ifdSize := uint64(8 + numEntries*20 + 8)
		ifdStart := pos
		xResOffset := ifdStart + ifdSize
		yResOffset := xResOffset + 8
		stripOffset := yResOffset + 8

		entries = append(entries,
			bigEntry{tagStripOffsets, typeLong8, 1, stripOffset},
			bigEntry{tagXResolution, typeRational, 1, xResOffset},
			bigEntry{tagYResolution, typeRational, 1, yResOffset},
		)
		sortBigEntries(entries)

		nextIFD := stripOffset + uint64(len(compressed))
		if i == len(pages)-1 {
			nextIFD = 0
		}

		if err := writeUint64(w, order, uint64(len(entries))); err != nil {
			return err
		}
		for _, e := range entries {
			if err := writeBigEntry(w, order, e); err != nil {
				return err
			}
		}
		if err := writeUint64(w, order, nextIFD); err != nil {
			return err
		}

		if err := writeUint32(w, order, xNum); err != nil {
			return err
		}
		if err := writeUint32(w, order, xDen); err != nil {
			return err
		}
		if err := writeUint32(w, order, yNum); err != nil {
			return err
		}
		if err := writeUint32(w, order, yDen); err != nil {
			return err
		}

		if _, err := w.Write(compressed); err != nil {
			return err
		}

		pos = nextIFD
	}

	return nil
}

func sortBigEntries(entries []bigEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].tag > entries[j].tag; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func writeBigEntry(w io.Writer, order binary.ByteOrder, e bigEntry) error {
	if err := writeUint16(w, order, e.tag); err != nil {
		return err
	}
	if err := writeUint16(w, order, e.typ); err != nil {
		return err
	}
	if err := writeUint64(w, order, e.count); err != nil {
		return err
	}
	return writeUint64(w, order, e.value)
}

func writeUint16(w io.Writer, order binary.ByteOrder, v uint16) error {
	var b [2]byte
	order.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint32(w io.Writer, order binary.ByteOrder, v uint32) error {
	var b [4]byte
	order.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, order binary.ByteOrder, v uint64) error {
	var b [8]byte
	order.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}
