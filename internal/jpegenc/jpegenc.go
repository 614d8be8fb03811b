// Package jpegenc is the JPEG encoder facade: it accepts an opaque raw
// capture blob and produces a CompressedFrame, using a platform-native
// codec when one is registered and otherwise decoding TIFF itself and
// encoding with libjpeg-turbo bindings.
package jpegenc

import (
	"bytes"
	"image"

	"github.com/pixiv/go-libjpeg/jpeg"

	"github.com/HandleConsolidated/xtool/internal/tiff"
)

// MIME types a CompressedFrame can carry.
const (
	MIMEJPEG    = "image/jpeg"
	MIMEPNG     = "image/png"
	MIMETIFF    = "image/tiff"
	MIMEOctet   = "application/octet-stream"
)

// CompressedFrame is the encoder's output: bytes plus the MIME type they
// should be served with.
type CompressedFrame struct {
	Bytes []byte
	MIME  string
}

// PlatformCodec is the seam for a native image codec (e.g. a CGImage-backed
// encoder on Darwin). No implementation ships in this module;
// cmd/xtool-previewd passes nil.
type PlatformCodec interface {
	// Compress re-encodes raw into a JPEG at the given quality, or reports
	// that it can't handle this input.
	Compress(raw []byte, quality int) (*CompressedFrame, bool)
}

// Encoder compresses raw capture blobs to JPEG, falling back through TIFF
// decode + libjpeg-turbo, then passthrough, on any failure. There is no
// error surface: compression is always best-effort.
type Encoder struct {
	platform PlatformCodec
}

// New creates an Encoder. platform may be nil, in which case only the pure
// Go TIFF path and passthrough are used.
func New(platform PlatformCodec) *Encoder {
	return &Encoder{platform: platform}
}

// Compress transcodes raw into a CompressedFrame at the requested JPEG
// quality (clamped to [1,100]).
func (e *Encoder) Compress(raw []byte, quality int) *CompressedFrame {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	if e.platform != nil {
		if frame, ok := e.platform.Compress(raw, quality); ok {
			return frame
		}
	}

	mime := SniffContentType(raw)

	switch mime {
	case MIMEJPEG:
		return &CompressedFrame{Bytes: raw, MIME: MIMEJPEG}
	case MIMETIFF:
		if frame, ok := encodeTIFF(raw, quality); ok {
			return frame
		}
		return &CompressedFrame{Bytes: raw, MIME: mime}
	default:
		return &CompressedFrame{Bytes: raw, MIME: mime}
	}
}

// SniffContentType is a total function on non-empty input: it inspects the
// first two bytes and returns the MIME type they indicate, defaulting to
// image/png for anything unrecognized.
func SniffContentType(data []byte) string {
	if len(data) < 2 {
		return MIMEOctet
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8:
		return MIMEJPEG
	case data[0] == 0x89 && data[1] == 0x50:
		return MIMEPNG
	case data[0] == 'I' && data[1] == 'I':
		return MIMETIFF
	case data[0] == 'M' && data[1] == 'M':
		return MIMETIFF
	default:
		return MIMEPNG
	}
}

// encodeTIFF decodes raw as TIFF and re-encodes it as 4:2:0 JPEG via
// libjpeg-turbo with a fast DCT hint. It reports ok=false on any failure so
// the caller can fall through to passthrough.
func encodeTIFF(raw []byte, quality int) (*CompressedFrame, bool) {
	img, err := tiff.Decode(raw)
	if err != nil {
		return nil, false
	}
	if img.BytesPerPixel != 3 && img.BytesPerPixel != 4 {
		return nil, false
	}
	if len(img.Pixels) < img.Width*img.Height*img.BytesPerPixel {
		return nil, false
	}

	ycbcr := toYCbCr420(img)

	var buf bytes.Buffer
	opts := &jpeg.EncoderOptions{
		Quality:   quality,
		DCTMethod: jpeg.DCTFastest,
	}
	if err := jpeg.Encode(&buf, ycbcr, opts); err != nil {
		return nil, false
	}

	return &CompressedFrame{Bytes: buf.Bytes(), MIME: MIMEJPEG}, true
}

// toYCbCr420 converts a tiff.RawImage (RGB or RGBA, row-major) into a 4:2:0
// subsampled YCbCr image, which is what drives go-libjpeg's chroma
// subsampling choice at encode time.
func toYCbCr420(img *tiff.RawImage) *image.YCbCr {
	rect := image.Rect(0, 0, img.Width, img.Height)
	dst := image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)

	bpp := img.BytesPerPixel
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			off := (y*img.Width + x) * bpp
			r, g, b := img.Pixels[off], img.Pixels[off+1], img.Pixels[off+2]
			yy, cb, cr := rgbToYCbCr(r, g, b)

			yi := dst.YOffset(x, y)
			dst.Y[yi] = yy

			ci := dst.COffset(x, y)
			dst.Cb[ci] = cb
			dst.Cr[ci] = cr
		}
	}

	return dst
}

// rgbToYCbCr applies the ITU-R BT.601 full-range conversion used by JFIF
// JPEG, matching the coefficients image/color.YCbCr documents.
func rgbToYCbCr(r, g, b byte) (y, cb, cr byte) {
	ri, gi, bi := int32(r), int32(g), int32(b)

	yy := (19595*ri + 38470*gi + 7471*bi + 1<<15) >> 16
	cbv := (-11056*ri - 21712*gi + 32768*bi + 257<<15) >> 16
	crv := (32768*ri - 27440*gi - 5328*bi + 257<<15) >> 16

	return clampByte(yy), clampByte(cbv), clampByte(crv)
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
