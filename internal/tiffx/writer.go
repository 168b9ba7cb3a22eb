// Package tiffx encodes and decodes the print-ready TIFF layout used
// for finished canvases: 8-bit contiguous samples, deflate-compressed,
// with the coverage channel tagged as an extra sample and the source
// ICC profile embedded as a raw tag. CMYK+alpha needs five samples per
// pixel, which no stock Go TIFF encoder can express, so the IFD is
// written by hand. The encoding commitments are fixed for
// interoperability: photometric "separated" with ExtraSamples = 2
// (associated) for CMYK+alpha, ExtraSamples = 1 (unassociated) for
// RGBA, ICC in tag 34675.
package tiffx

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/printmill/proofpress/internal/imaging"
)

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
	tagPlanarConfig    = 284
	tagResolutionUnit  = 296
	tagExtraSamples    = 338
	tagICCProfile      = 34675

	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeUndefined = 7

	compressionNone    = 1
	compressionDeflate = 8

	photometricRGB       = 2
	photometricSeparated = 5

	extraSampleUnassocAlpha = 1
	extraSampleAssocAlpha   = 2

	resolutionPPI = 100
)

// Options control the save tiers and metadata of an encode.
type Options struct {
	// Profile is the ICC blob to embed verbatim, if any.
	Profile []byte
	// Preview selects the fast compression tier over the archival one.
	// Both tiers are lossless.
	Preview bool
	// DropAlpha omits the coverage channel, writing plain CMYK or RGB.
	// Used by the degraded fallback path.
	DropAlpha bool
}

// Encode writes the buffer as a single-strip TIFF. The caller is
// responsible for zeroing erased pixels first (Buffer.ZeroErased).
func Encode(w io.Writer, b *imaging.Buffer, opts Options) error {
	samples := b.Channels()
	if opts.DropAlpha {
		samples--
	}

	photometric := photometricRGB
	if b.Mode == imaging.ModeCMYKA {
		photometric = photometricSeparated
	}

	strip, err := compressStrip(b, samples, opts.Preview)
	if err != nil {
		return err
	}

	// Layout: header, strip data, out-of-line values, IFD.
	stripOffset := uint32(8)
	valuesOffset := stripOffset + uint32(len(strip))
	if valuesOffset%2 == 1 {
		strip = append(strip, 0)
		valuesOffset++
	}

	values := &bytes.Buffer{}
	valueAt := func() uint32 { return valuesOffset + uint32(values.Len()) }

	type entry struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}
	var entries []entry

	addShorts := func(tag uint16, vals ...uint16) {
		e := entry{tag: tag, typ: typeShort, count: uint32(len(vals))}
		if len(vals) <= 2 {
			var v uint32
			for i, s := range vals {
				v |= uint32(s) << (16 * i)
			}
			e.value = v
		} else {
			e.value = valueAt()
			for _, s := range vals {
				binary.Write(values, binary.LittleEndian, s)
			}
		}
		entries = append(entries, e)
	}
	addLong := func(tag uint16, v uint32) {
		entries = append(entries, entry{tag: tag, typ: typeLong, count: 1, value: v})
	}
	addRational := func(tag uint16, num, den uint32) {
		e := entry{tag: tag, typ: typeRational, count: 1, value: valueAt()}
		binary.Write(values, binary.LittleEndian, num)
		binary.Write(values, binary.LittleEndian, den)
		entries = append(entries, e)
	}
	addBytes := func(tag uint16, data []byte) {
		e := entry{tag: tag, typ: typeUndefined, count: uint32(len(data)), value: valueAt()}
		values.Write(data)
		if len(data)%2 == 1 {
			values.WriteByte(0)
		}
		entries = append(entries, e)
	}

	bits := make([]uint16, samples)
	for i := range bits {
		bits[i] = 8
	}

	addLong(tagImageWidth, uint32(b.Width))
	addLong(tagImageLength, uint32(b.Height))
	addShorts(tagBitsPerSample, bits...)
	addShorts(tagCompression, compressionDeflate)
	addShorts(tagPhotometric, uint16(photometric))
	addLong(tagStripOffsets, stripOffset)
	addShorts(tagSamplesPerPixel, uint16(samples))
	addLong(tagRowsPerStrip, uint32(b.Height))
	addLong(tagStripByteCounts, uint32(len(strip)))
	addRational(tagXResolution, resolutionPPI, 1)
	addRational(tagYResolution, resolutionPPI, 1)
	addShorts(tagPlanarConfig, 1)
	addShorts(tagResolutionUnit, 2)
	if !opts.DropAlpha {
		// The five-sample CMYK layout commits to associated alpha;
		// RGBA stores straight alpha and is tagged unassociated so
		// readers do not un-premultiply.
		extra := uint16(extraSampleUnassocAlpha)
		if b.Mode == imaging.ModeCMYKA {
			extra = extraSampleAssocAlpha
		}
		addShorts(tagExtraSamples, extra)
	}
	if len(opts.Profile) > 0 {
		addBytes(tagICCProfile, opts.Profile)
	}

	ifdOffset := valuesOffset + uint32(values.Len())

	out := &bytes.Buffer{}
	out.WriteString("II")
	binary.Write(out, binary.LittleEndian, uint16(42))
	binary.Write(out, binary.LittleEndian, ifdOffset)
	out.Write(strip)
	out.Write(values.Bytes())
	binary.Write(out, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(out, binary.LittleEndian, e.tag)
		binary.Write(out, binary.LittleEndian, e.typ)
		binary.Write(out, binary.LittleEndian, e.count)
		binary.Write(out, binary.LittleEndian, e.value)
	}
	binary.Write(out, binary.LittleEndian, uint32(0)) // no next IFD

	if _, err := w.Write(out.Bytes()); err != nil {
		return fmt.Errorf("write tiff: %w", err)
	}
	return nil
}

// EncodeAlphaPlane writes the buffer's coverage channel alone as a
// grayscale TIFF. Paired with Encode(DropAlpha) it forms the degraded
// fallback when the five-sample layout cannot be written.
func EncodeAlphaPlane(w io.Writer, b *imaging.Buffer, preview bool) error {
	cov := imaging.CoverageFromBuffer(b)
	gray := &imaging.Buffer{
		Width:  b.Width,
		Height: b.Height,
		Mode:   imaging.ModeRGBA,
		Pix:    make([]uint8, b.Width*b.Height*4),
	}
	for i, a := range cov.Pix {
		gray.Pix[i*4] = a
		gray.Pix[i*4+1] = a
		gray.Pix[i*4+2] = a
		gray.Pix[i*4+3] = 255
	}
	return Encode(w, gray, Options{Preview: preview})
}

func compressStrip(b *imaging.Buffer, samples int, preview bool) ([]byte, error) {
	raw := b.Pix
	if samples != b.Channels() {
		n := b.Channels()
		raw = make([]uint8, b.Width*b.Height*samples)
		for i, j := 0, 0; i < len(b.Pix); i, j = i+n, j+samples {
			copy(raw[j:j+samples], b.Pix[i:i+samples])
		}
	}

	level := zlib.BestCompression
	if preview {
		level = zlib.BestSpeed
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("open deflate stream: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress strip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("flush strip: %w", err)
	}
	return buf.Bytes(), nil
}
