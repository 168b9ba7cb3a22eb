// Package icc extracts embedded ICC color profiles from raster files
// without decoding or converting any pixel data. The profile is
// treated as an opaque byte blob: read once from the source and
// reattached verbatim to every output.
package icc

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

const jpegMarkerTag = "ICC_PROFILE\x00"

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// FromFile sniffs the container format and returns the embedded
// profile, or nil when none is present. TIFF containers are handled by
// the tiffx package.
func FromFile(data []byte) ([]byte, error) {
	switch {
	case len(data) >= 2 && data[0] == 0xff && data[1] == 0xd8:
		return FromJPEG(data)
	case bytes.HasPrefix(data, pngSignature):
		return FromPNG(data)
	default:
		return nil, nil
	}
}

// FromJPEG reassembles the profile from APP2 ICC_PROFILE marker
// segments. Profiles larger than one segment are split across numbered
// chunks which may appear out of order.
func FromJPEG(data []byte) ([]byte, error) {
	type chunk struct {
		seq  int
		data []byte
	}
	var chunks []chunk
	expected := 0

	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xff {
			i++
			continue
		}
		marker := data[i+1]
		switch {
		case marker == 0xd8 || (marker >= 0xd0 && marker <= 0xd9):
			i += 2
			continue
		case marker == 0xda:
			// Start of scan: no more metadata segments follow.
			i = len(data)
			continue
		}
		segLen := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if segLen < 2 || i+2+segLen > len(data) {
			break
		}
		if marker == 0xe2 {
			payload := data[i+4 : i+2+segLen]
			if len(payload) >= 14 && string(payload[:12]) == jpegMarkerTag {
				seq := int(payload[12])
				count := int(payload[13])
				if seq == 0 || seq > count {
					return nil, fmt.Errorf("invalid ICC chunk sequence %d/%d", seq, count)
				}
				if expected == 0 {
					expected = count
				} else if count != expected {
					return nil, fmt.Errorf("inconsistent ICC chunk count: %d vs %d", count, expected)
				}
				chunks = append(chunks, chunk{seq: seq, data: payload[14:]})
			}
		}
		i += 2 + segLen
	}

	if len(chunks) == 0 {
		return nil, nil
	}
	if len(chunks) != expected {
		return nil, fmt.Errorf("expected %d ICC chunks, found %d", expected, len(chunks))
	}

	sort.Slice(chunks, func(a, b int) bool { return chunks[a].seq < chunks[b].seq })
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c.data)
	}
	return buf.Bytes(), nil
}

// FromPNG reads the profile out of the iCCP chunk, which stores it
// zlib-compressed after a NUL-terminated profile name.
func FromPNG(data []byte) ([]byte, error) {
	i := len(pngSignature)
	for i+8 <= len(data) {
		chunkLen := int(binary.BigEndian.Uint32(data[i : i+4]))
		chunkType := string(data[i+4 : i+8])
		if i+8+chunkLen > len(data) {
			break
		}
		body := data[i+8 : i+8+chunkLen]

		switch chunkType {
		case "iCCP":
			nameEnd := bytes.IndexByte(body, 0)
			if nameEnd < 0 || nameEnd+2 > len(body) {
				return nil, fmt.Errorf("malformed iCCP chunk")
			}
			if method := body[nameEnd+1]; method != 0 {
				return nil, fmt.Errorf("unsupported iCCP compression method %d", method)
			}
			zr, err := zlib.NewReader(bytes.NewReader(body[nameEnd+2:]))
			if err != nil {
				return nil, fmt.Errorf("open iCCP stream: %w", err)
			}
			defer zr.Close()
			profile, err := io.ReadAll(zr)
			if err != nil {
				return nil, fmt.Errorf("inflate iCCP profile: %w", err)
			}
			return profile, nil
		case "IDAT", "IEND":
			// iCCP must precede the image data.
			return nil, nil
		}
		i += 8 + chunkLen + 4 // chunk length + type + body + CRC
	}
	return nil, nil
}
