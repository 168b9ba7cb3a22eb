package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/printmill/proofpress/internal/codec"
	"github.com/printmill/proofpress/internal/imaging"
)

// BufferProcessor executes steps as raw numeric math over an
// interleaved pixel buffer. It is the reference backend and the one
// built without cgo.
type BufferProcessor struct {
	buf     *imaging.Buffer
	profile []byte
	opts    Options
}

// NewBufferProcessor wraps an existing buffer. The profile is shared,
// never copied: it is read-only by contract.
func NewBufferProcessor(buf *imaging.Buffer, profile []byte, opts Options) *BufferProcessor {
	return &BufferProcessor{buf: buf, profile: profile, opts: opts}
}

// LoadBufferProcessor reads the source image at path. Unsupported
// color modes and missing files are fatal here, before any piece work.
func LoadBufferProcessor(path string, opts Options) (*BufferProcessor, error) {
	buf, profile, err := codec.Load(path)
	if err != nil {
		return nil, err
	}
	return &BufferProcessor{buf: buf, profile: profile, opts: opts}, nil
}

// Buffer exposes the underlying pixels for inspection.
func (p *BufferProcessor) Buffer() *imaging.Buffer { return p.buf }

// Profile returns the ICC blob captured at load time.
func (p *BufferProcessor) Profile() []byte { return p.profile }

func (p *BufferProcessor) Width() int  { return p.buf.Width }
func (p *BufferProcessor) Height() int { return p.buf.Height }

func (p *BufferProcessor) Clone() Processor {
	return &BufferProcessor{buf: p.buf.Clone(), profile: p.profile, opts: p.opts}
}

func (p *BufferProcessor) EraseByMask(maskPath string) error {
	if _, err := os.Stat(maskPath); errors.Is(err, os.ErrNotExist) {
		p.opts.logger().Printf("mask not found path=%s, passing piece through unchanged", maskPath)
		return nil
	}

	cov, err := codec.LoadCoverage(maskPath)
	if err != nil {
		p.opts.logger().Printf("mask unreadable path=%s err=%v, passing piece through unchanged", maskPath, err)
		return nil
	}

	imaging.EraseByMask(p.buf, cov, p.opts.polarity())
	return nil
}

func (p *BufferProcessor) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resize requires positive size, got %dx%d", width, height)
	}
	imaging.Resize(p.buf, width, height)
	return nil
}

func (p *BufferProcessor) Rotate(angle float64) error {
	imaging.Rotate(p.buf, angle)
	return nil
}

func (p *BufferProcessor) Crop(left, top, width, height int, auto bool) error {
	if auto {
		imaging.CropAuto(p.buf)
		return nil
	}
	imaging.Crop(p.buf, left, top, width, height)
	return nil
}

func (p *BufferProcessor) Composite(other Processor, x, y int) error {
	src, ok := other.(*BufferProcessor)
	if !ok {
		return fmt.Errorf("%w: %T onto %T", ErrBackendMismatch, other, p)
	}
	if src.buf.Mode != p.buf.Mode {
		return fmt.Errorf("cannot composite %s piece onto %s canvas", src.buf.Mode, p.buf.Mode)
	}
	if !imaging.Composite(p.buf, src.buf, x, y) && !src.buf.Empty() {
		p.opts.logger().Printf("piece placed outside canvas at (%d,%d) size=%dx%d, skipping", x, y, src.buf.Width, src.buf.Height)
	}
	return nil
}

func (p *BufferProcessor) Save(path string, preview bool) error {
	return codec.Save(p.opts.logger(), path, p.buf, p.profile, preview)
}

func (p *BufferProcessor) Export(preview bool) ([]byte, error) {
	return codec.Encode(p.buf, p.profile, preview)
}

// LoadLayout reads the layout image and returns a transparent canvas
// of the same size plus the layout content itself. The layout is
// converted to the source's channel mode so pieces, canvas and
// decoration all share one color model.
func (p *BufferProcessor) LoadLayout(path string) (Processor, Processor, error) {
	layout, _, err := codec.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load layout: %w", err)
	}

	if layout.Mode != p.buf.Mode {
		layout = imaging.ConvertMode(layout, p.buf.Mode)
	}

	canvas := imaging.New(layout.Width, layout.Height, p.buf.Mode)
	return NewBufferProcessor(canvas, p.profile, p.opts),
		NewBufferProcessor(layout, p.profile, p.opts),
		nil
}
