package tiffx

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/printmill/proofpress/internal/imaging"
)

var (
	ErrNotTIFF     = errors.New("not a tiff file")
	ErrUnsupported = errors.New("unsupported tiff feature")
)

type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
	order binary.ByteOrder
}

// Decode reads back the layouts Encode produces, plus plain 8-bit
// contiguous RGB/RGBA/CMYK TIFFs (deflate or uncompressed). This is
// what lets the runner load pre-separated CMYK+alpha layout files that
// standard decoders reject. Returns the pixel buffer and the embedded
// ICC profile, if any.
func Decode(data []byte) (*imaging.Buffer, []byte, error) {
	entries, _, err := parseIFD(data)
	if err != nil {
		return nil, nil, err
	}

	width := int(firstValue(entries[tagImageWidth]))
	height := int(firstValue(entries[tagImageLength]))
	if width <= 0 || height <= 0 {
		return nil, nil, fmt.Errorf("%w: image size %dx%d", ErrUnsupported, width, height)
	}

	for _, bits := range intValues(entries[tagBitsPerSample]) {
		if bits != 8 {
			return nil, nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupported, bits)
		}
	}
	if planar := firstValueDefault(entries[tagPlanarConfig], 1); planar != 1 {
		return nil, nil, fmt.Errorf("%w: planar configuration %d", ErrUnsupported, planar)
	}

	samples := int(firstValueDefault(entries[tagSamplesPerPixel], 1))
	photometric := firstValue(entries[tagPhotometric])
	compression := firstValueDefault(entries[tagCompression], compressionNone)

	offsets := intValues(entries[tagStripOffsets])
	counts := intValues(entries[tagStripByteCounts])
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, nil, fmt.Errorf("%w: inconsistent strip tables", ErrUnsupported)
	}

	raw := make([]byte, 0, width*height*samples)
	for i := range offsets {
		off, cnt := int(offsets[i]), int(counts[i])
		if off < 0 || off+cnt > len(data) {
			return nil, nil, fmt.Errorf("strip %d out of range", i)
		}
		strip := data[off : off+cnt]
		switch compression {
		case compressionNone:
			raw = append(raw, strip...)
		case compressionDeflate:
			zr, err := zlib.NewReader(bytes.NewReader(strip))
			if err != nil {
				return nil, nil, fmt.Errorf("open strip %d: %w", i, err)
			}
			expanded, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("inflate strip %d: %w", i, err)
			}
			raw = append(raw, expanded...)
		default:
			return nil, nil, fmt.Errorf("%w: compression %d", ErrUnsupported, compression)
		}
	}
	if len(raw) < width*height*samples {
		return nil, nil, fmt.Errorf("truncated pixel data: have %d, need %d", len(raw), width*height*samples)
	}
	raw = raw[:width*height*samples]

	var buf *imaging.Buffer
	switch {
	case photometric == photometricSeparated && samples == 5:
		buf = &imaging.Buffer{Width: width, Height: height, Mode: imaging.ModeCMYKA, Pix: raw}
	case photometric == photometricSeparated && samples == 4:
		buf = withFullAlpha(raw, width, height, 4, imaging.ModeCMYKA)
	case photometric == photometricRGB && samples == 4:
		buf = &imaging.Buffer{Width: width, Height: height, Mode: imaging.ModeRGBA, Pix: raw}
	case photometric == photometricRGB && samples == 3:
		buf = withFullAlpha(raw, width, height, 3, imaging.ModeRGBA)
	default:
		return nil, nil, fmt.Errorf("%w: photometric %d with %d samples", ErrUnsupported, photometric, samples)
	}

	var profile []byte
	if e, ok := entries[tagICCProfile]; ok {
		profile = append([]byte(nil), e.raw...)
	}
	return buf, profile, nil
}

// withFullAlpha widens bare color samples with a synthetic
// fully-opaque coverage channel.
func withFullAlpha(raw []byte, width, height, samples int, mode imaging.Mode) *imaging.Buffer {
	out := imaging.New(width, height, mode)
	n := out.Channels()
	for i, j := 0, 0; i < len(raw); i, j = i+samples, j+n {
		copy(out.Pix[j:j+samples], raw[i:i+samples])
		out.Pix[j+n-1] = 255
	}
	return out
}

// ReadICC returns the embedded profile without decoding pixel data.
func ReadICC(data []byte) ([]byte, error) {
	entries, _, err := parseIFD(data)
	if err != nil {
		return nil, err
	}
	e, ok := entries[tagICCProfile]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), e.raw...), nil
}

// IsTIFF reports whether data starts with a TIFF header.
func IsTIFF(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return (data[0] == 'I' && data[1] == 'I' && data[2] == 42 && data[3] == 0) ||
		(data[0] == 'M' && data[1] == 'M' && data[2] == 0 && data[3] == 42)
}

func parseIFD(data []byte) (map[uint16]ifdEntry, binary.ByteOrder, error) {
	if len(data) < 8 {
		return nil, nil, ErrNotTIFF
	}
	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, nil, ErrNotTIFF
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, nil, ErrNotTIFF
	}

	ifdOffset := int(order.Uint32(data[4:8]))
	if ifdOffset+2 > len(data) {
		return nil, nil, fmt.Errorf("ifd offset out of range")
	}
	n := int(order.Uint16(data[ifdOffset : ifdOffset+2]))
	entries := make(map[uint16]ifdEntry, n)

	for i := 0; i < n; i++ {
		base := ifdOffset + 2 + i*12
		if base+12 > len(data) {
			return nil, nil, fmt.Errorf("ifd entry %d out of range", i)
		}
		tag := order.Uint16(data[base : base+2])
		typ := order.Uint16(data[base+2 : base+4])
		count := order.Uint32(data[base+4 : base+8])

		size := typeSize(typ) * int(count)
		var raw []byte
		if size <= 4 {
			raw = data[base+8 : base+8+max(size, 0)]
		} else {
			off := int(order.Uint32(data[base+8 : base+12]))
			if off < 0 || off+size > len(data) {
				return nil, nil, fmt.Errorf("tag %d value out of range", tag)
			}
			raw = data[off : off+size]
		}
		entries[tag] = ifdEntry{typ: typ, count: count, raw: raw, order: order}
	}
	return entries, order, nil
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, typeUndefined: // BYTE, ASCII, UNDEFINED
		return 1
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeRational:
		return 8
	default:
		return 0
	}
}

func intValues(e ifdEntry) []uint32 {
	vals := make([]uint32, 0, e.count)
	switch e.typ {
	case typeShort:
		for i := 0; i+2 <= len(e.raw); i += 2 {
			vals = append(vals, uint32(e.order.Uint16(e.raw[i:i+2])))
		}
	case typeLong:
		for i := 0; i+4 <= len(e.raw); i += 4 {
			vals = append(vals, e.order.Uint32(e.raw[i:i+4]))
		}
	}
	return vals
}

func firstValue(e ifdEntry) uint32 {
	return firstValueDefault(e, 0)
}

func firstValueDefault(e ifdEntry, def uint32) uint32 {
	vals := intValues(e)
	if len(vals) == 0 {
		return def
	}
	return vals[0]
}
