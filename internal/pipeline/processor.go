// Package pipeline executes partial pipelines against a source image
// and composites the finished pieces onto a layout canvas. The pixel
// substrate is hidden behind the Processor interface: the default
// backend does raw buffer math in-process, and a libvips-backed
// backend is selected by the govips build tag. Both must produce
// equivalent visual results for the same step list.
package pipeline

import (
	"errors"
	"io"
	"log"

	"github.com/printmill/proofpress/internal/imaging"
)

const SourceTypeLocalFile = "local_file"

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	// ErrBackendMismatch is returned when two processors with
	// different pixel substrates are composited together.
	ErrBackendMismatch = errors.New("cannot composite across processor backends")
)

// Processor is the capability set the runner needs from a pixel
// substrate. Mutating operations apply in place so steps can be
// chained; Clone gives value semantics for per-piece isolation.
type Processor interface {
	// Clone returns an independent copy; mutating the clone never
	// affects the original.
	Clone() Processor
	// EraseByMask subtracts the mask image's coverage from the
	// piece's coverage. A missing or unreadable mask is non-fatal:
	// the piece passes through unchanged with a warning.
	EraseByMask(maskPath string) error
	Resize(width, height int) error
	Rotate(angle float64) error
	Crop(left, top, width, height int, auto bool) error
	// Composite draws other onto this processor at (x, y), clipped to
	// this processor's extent. A placement entirely outside is a
	// warned no-op.
	Composite(other Processor, x, y int) error
	// Save writes through the color-preserving codec; preview selects
	// the faster compression tier.
	Save(path string, preview bool) error
	// Export renders the same bytes Save would write.
	Export(preview bool) ([]byte, error)
	// LoadLayout returns a zero-initialized canvas sized to the
	// layout image plus the layout's own content, both carrying this
	// processor's color profile and channel mode.
	LoadLayout(path string) (canvas, layout Processor, err error)
	Width() int
	Height() int
}

// Options configure processor construction explicitly; there is no
// package-level render state.
type Options struct {
	Logger       *log.Logger
	MaskPolarity imaging.MaskPolarity
	// DebugDir, when set, receives a snapshot after every step.
	DebugDir string
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.New(io.Discard, "", 0)
}

func (o Options) polarity() imaging.MaskPolarity {
	if o.MaskPolarity == "" {
		return imaging.MaskErases
	}
	return o.MaskPolarity
}
