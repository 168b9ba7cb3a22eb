// Package imaging holds the in-memory pixel buffer model and the raw
// per-channel math behind the compositing steps. Pixels are stored as
// interleaved 8-bit samples in row-major order, four samples per pixel
// for RGBA and five for CMYK plus alpha. The last sample of a pixel is
// always the coverage channel: 0 means fully erased, 255 fully opaque.
package imaging

import (
	"errors"
	"fmt"
)

type Mode string

const (
	ModeRGBA  Mode = "RGBA"
	ModeCMYKA Mode = "CMYKA"
)

var ErrUnsupportedMode = errors.New("unsupported image mode")

// Channels reports the number of interleaved samples per pixel,
// including the trailing coverage channel.
func (m Mode) Channels() int {
	if m == ModeCMYKA {
		return 5
	}
	return 4
}

// ColorChannels reports the number of samples carrying color data.
func (m Mode) ColorChannels() int {
	return m.Channels() - 1
}

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRGBA:
		return ModeRGBA, nil
	case ModeCMYKA:
		return ModeCMYKA, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}

// Buffer is a dense interleaved pixel grid. Width or height may be
// zero; a zero-area buffer is legal and carries no pixel data.
type Buffer struct {
	Width  int
	Height int
	Mode   Mode
	Pix    []uint8 // len = Width * Height * Mode.Channels()
}

// New returns a zero-filled (fully transparent) buffer.
func New(width, height int, mode Mode) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Mode:   mode,
		Pix:    make([]uint8, width*height*mode.Channels()),
	}
}

// Clone returns an independent deep copy. Mutating the clone never
// affects the receiver.
func (b *Buffer) Clone() *Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{
		Width:  b.Width,
		Height: b.Height,
		Mode:   b.Mode,
		Pix:    pix,
	}
}

func (b *Buffer) Channels() int { return b.Mode.Channels() }

// Empty reports whether the buffer has no pixels.
func (b *Buffer) Empty() bool { return b.Width == 0 || b.Height == 0 }

// offset returns the index of the first sample of pixel (x, y).
func (b *Buffer) offset(x, y int) int {
	return (y*b.Width + x) * b.Channels()
}

// Alpha returns the coverage value of pixel (x, y).
func (b *Buffer) Alpha(x, y int) uint8 {
	return b.Pix[b.offset(x, y)+b.Channels()-1]
}

// SetAlpha overwrites the coverage value of pixel (x, y).
func (b *Buffer) SetAlpha(x, y int, a uint8) {
	b.Pix[b.offset(x, y)+b.Channels()-1] = a
}

// Pixel returns the samples of pixel (x, y). The slice aliases the
// buffer's storage.
func (b *Buffer) Pixel(x, y int) []uint8 {
	off := b.offset(x, y)
	return b.Pix[off : off+b.Channels()]
}

// Fill sets every pixel to the given samples. The sample count must
// match the buffer's channel count.
func (b *Buffer) Fill(samples ...uint8) {
	n := b.Channels()
	if len(samples) != n {
		panic(fmt.Sprintf("imaging: Fill with %d samples on %d-channel buffer", len(samples), n))
	}
	for i := 0; i < len(b.Pix); i += n {
		copy(b.Pix[i:i+n], samples)
	}
}

// ZeroErased forces all color channels of fully-erased pixels to zero.
// The codec applies this before encoding so no ghost ink survives in
// regions the pipeline cut out.
func (b *Buffer) ZeroErased() {
	n := b.Channels()
	for i := 0; i < len(b.Pix); i += n {
		if b.Pix[i+n-1] == 0 {
			for c := 0; c < n-1; c++ {
				b.Pix[i+c] = 0
			}
		}
	}
}
