// Package tiff decodes the baseline, uncompressed, strip-based TIFF images
// produced by the capture tools' raw screenshot output.
package tiff

import (
	"encoding/binary"
	"fmt"

	"github.com/HandleConsolidated/xtool/internal/xerrors"
)

// TIFF tags this decoder understands. Anything else in an IFD entry is
// skipped.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagStripByteCounts = 279
)

// TIFF field types, per the baseline spec. Only the ones the capture tools
// actually emit are handled.
const (
	typeByte  = 1
	typeASCII = 2
	typeShort = 3
	typeLong  = 4
)

const (
	defaultSamplesPerPixel = 3
	defaultCompression     = 1
	ifdEntrySize           = 12
)

// RawImage is the decoded pixel buffer plus the geometry needed to
// interpret it.
type RawImage struct {
	Width          int
	Height         int
	BytesPerPixel  int
	Pixels         []byte
}

// Decode parses a baseline little- or big-endian uncompressed TIFF and
// returns its pixel data.
func Decode(data []byte) (*RawImage, error) {
	order, err := byteOrder(data)
	if err != nil {
		return nil, err
	}

	if len(data) < 8 {
		return nil, xerrors.New(xerrors.InvalidInput, "truncated TIFF header")
	}

	ifdOffset := order.Uint32(data[4:8])
	entries, err := readIFD(data, order, ifdOffset)
	if err != nil {
		return nil, err
	}

	var (
		width, height, samplesPerPixel, compression int
		haveWidth, haveHeight                        bool
		stripOffsets, stripByteCounts                []uint32
		haveStripOffsets, haveStripByteCounts         bool
	)
	samplesPerPixel = defaultSamplesPerPixel
	compression = defaultCompression

	for _, e := range entries {
		switch e.tag {
		case tagImageWidth:
			width = int(e.singleValue)
			haveWidth = true
		case tagImageLength:
			height = int(e.singleValue)
			haveHeight = true
		case tagCompression:
			compression = int(e.singleValue)
		case tagSamplesPerPixel:
			samplesPerPixel = int(e.singleValue)
		case tagStripOffsets:
			vals, err := readArray(data, order, e)
			if err != nil {
				return nil, err
			}
			stripOffsets = vals
			haveStripOffsets = true
		case tagStripByteCounts:
			vals, err := readArray(data, order, e)
			if err != nil {
				return nil, err
			}
			stripByteCounts = vals
			haveStripByteCounts = true
		}
	}

	if !haveWidth {
		return nil, xerrors.New(xerrors.InvalidInput, "missing-required-tag(256)")
	}
	if !haveHeight {
		return nil, xerrors.New(xerrors.InvalidInput, "missing-required-tag(257)")
	}
	if !haveStripOffsets {
		return nil, xerrors.New(xerrors.InvalidInput, "missing-required-tag(273)")
	}
	if compression != defaultCompression {
		return nil, xerrors.New(xerrors.UnsupportedFormat,
			fmt.Sprintf("compressed TIFF (compression=%d)", compression))
	}

	pixels, err := assembleStrips(data, stripOffsets, stripByteCounts, haveStripByteCounts)
	if err != nil {
		return nil, err
	}

	return &RawImage{
		Width:         width,
		Height:        height,
		BytesPerPixel: samplesPerPixel,
		Pixels:        pixels,
	}, nil
}

// byteOrder reads the 2-byte order marker and verifies the TIFF magic 42.
func byteOrder(data []byte) (binary.ByteOrder, error) {
	if len(data) < 4 {
		return nil, xerrors.New(xerrors.InvalidInput, "invalid-header")
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, xerrors.New(xerrors.InvalidInput, "invalid-header")
	}

	if order.Uint16(data[2:4]) != 42 {
		return nil, xerrors.New(xerrors.InvalidInput, "invalid-header")
	}

	return order, nil
}

type ifdEntry struct {
	tag         uint16
	fieldType   uint16
	count       uint32
	valueOffset uint32 // raw 4-byte value/offset slot
	singleValue uint32 // interpreted value when count == 1
}

func readIFD(data []byte, order binary.ByteOrder, offset uint32) ([]ifdEntry, error) {
	if int(offset)+2 > len(data) {
		return nil, xerrors.New(xerrors.InvalidInput, "data-out-of-bounds")
	}

	count := order.Uint16(data[offset : offset+2])
	start := int(offset) + 2
	end := start + int(count)*ifdEntrySize
	if end > len(data) {
		return nil, xerrors.New(xerrors.InvalidInput, "data-out-of-bounds")
	}

	entries := make([]ifdEntry, 0, count)
	for i := 0; i < int(count); i++ {
		off := start + i*ifdEntrySize
		tag := order.Uint16(data[off : off+2])
		fieldType := order.Uint16(data[off+2 : off+4])
		cnt := order.Uint32(data[off+4 : off+8])
		rawValue := data[off+8 : off+12]

		entry := ifdEntry{tag: tag, fieldType: fieldType, count: cnt, valueOffset: order.Uint32(rawValue)}

		if cnt == 1 && fieldType == typeShort {
			// The SHORT value occupies the low 2 bytes of the 4-byte slot,
			// regardless of byte order.
			entry.singleValue = uint32(order.Uint16(rawValue[0:2]))
		} else if cnt == 1 && fieldType == typeLong {
			entry.singleValue = entry.valueOffset
		} else {
			entry.singleValue = entry.valueOffset
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// readArray resolves a tag's value as an array of offsets/counts. Count==1
// values are returned as a single-element slice read directly from the
// entry; larger counts are read from the external array the entry points
// to. SHORT arrays are 2-byte items, everything else is treated as LONG.
func readArray(data []byte, order binary.ByteOrder, e ifdEntry) ([]uint32, error) {
	if e.count == 1 {
		return []uint32{e.singleValue}, nil
	}

	itemSize := 4
	if e.fieldType == typeShort {
		itemSize = 2
	}

	start := int(e.valueOffset)
	end := start + int(e.count)*itemSize
	if start < 0 || end > len(data) {
		return nil, xerrors.New(xerrors.InvalidInput, "data-out-of-bounds")
	}

	out := make([]uint32, e.count)
	for i := 0; i < int(e.count); i++ {
		off := start + i*itemSize
		if itemSize == 2 {
			out[i] = uint32(order.Uint16(data[off : off+2]))
		} else {
			out[i] = order.Uint32(data[off : off+4])
		}
	}
	return out, nil
}

// assembleStrips concatenates strip pixel data in order. If a strip's byte
// count is missing, the final strip is assumed to extend to the end of the
// buffer.
func assembleStrips(data []byte, offsets, byteCounts []uint32, haveByteCounts bool) ([]byte, error) {
	out := make([]byte, 0, len(data))

	for i, off := range offsets {
		start := int(off)
		if start < 0 || start > len(data) {
			return nil, xerrors.New(xerrors.InvalidInput, "data-out-of-bounds")
		}

		var end int
		if haveByteCounts && i < len(byteCounts) {
			end = start + int(byteCounts[i])
		} else {
			end = len(data)
		}
		if end > len(data) || end < start {
			return nil, xerrors.New(xerrors.InvalidInput, "data-out-of-bounds")
		}

		out = append(out, data[start:end]...)
	}

	return out, nil
}
