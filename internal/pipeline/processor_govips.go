//go:build govips && cgo

package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/printmill/proofpress/internal/codec"
	"github.com/printmill/proofpress/internal/icc"
	"github.com/printmill/proofpress/internal/imaging"
	"github.com/printmill/proofpress/internal/tiffx"
)

// VipsProcessor executes steps by delegating to a libvips image
// handle. Output encoding still goes through the color-preserving
// codec so both backends commit to the same container layout.
type VipsProcessor struct {
	img     *vips.ImageRef
	profile []byte
	opts    Options
	// cloneErr records a failed Clone; the first operation on the
	// broken clone returns it instead of touching another handle.
	cloneErr error
	// empty marks a zero-area piece. Steps pass through and
	// compositing it is a no-op, never an error.
	empty bool
}

// LoadVipsProcessor reads the source image at path into a vips handle
// and captures its embedded ICC profile from the raw bytes.
func LoadVipsProcessor(path string, opts Options) (*VipsProcessor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}

	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	switch img.Interpretation() {
	case vips.InterpretationSRGB, vips.InterpretationRGB, vips.InterpretationCMYK:
	default:
		img.Close()
		return nil, fmt.Errorf("%w: vips interpretation %d", imaging.ErrUnsupportedMode, img.Interpretation())
	}

	if !img.HasAlpha() {
		if err := img.AddAlpha(); err != nil {
			img.Close()
			return nil, fmt.Errorf("add alpha channel: %w", err)
		}
	}

	profile, err := icc.FromFile(data)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("extract icc profile: %w", err)
	}
	if profile == nil && tiffx.IsTIFF(data) {
		if profile, err = tiffx.ReadICC(data); err != nil {
			img.Close()
			return nil, fmt.Errorf("extract icc profile: %w", err)
		}
	}

	return &VipsProcessor{img: img, profile: profile, opts: opts}, nil
}

func (p *VipsProcessor) Width() int {
	if p.img == nil {
		return 0
	}
	return p.img.Width()
}

func (p *VipsProcessor) Height() int {
	if p.img == nil {
		return 0
	}
	return p.img.Height()
}

func (p *VipsProcessor) Close() {
	if p.img != nil {
		p.img.Close()
	}
}

// markEmpty releases the handle; a zero-area piece has no pixels to
// hold on to.
func (p *VipsProcessor) markEmpty() {
	if p.img != nil {
		p.img.Close()
		p.img = nil
	}
	p.empty = true
}

func (p *VipsProcessor) Clone() Processor {
	if p.cloneErr != nil || p.empty {
		return &VipsProcessor{profile: p.profile, opts: p.opts, cloneErr: p.cloneErr, empty: p.empty}
	}
	copied, err := p.img.Copy()
	if err != nil {
		// Never alias the source handle: steps on an aliased clone
		// would mutate every later piece's source. Carry the failure
		// so the clone's first operation reports it.
		return &VipsProcessor{profile: p.profile, opts: p.opts, cloneErr: fmt.Errorf("clone image: %w", err)}
	}
	return &VipsProcessor{img: copied, profile: p.profile, opts: p.opts}
}

// EraseByMask composites the mask with dest-out blending, so the
// piece's coverage is scaled down wherever the mask is opaque. This is
// the multiplicative variant of the erase; the buffer backend uses the
// subtractive one. Both cut out the area the mask covers.
func (p *VipsProcessor) EraseByMask(maskPath string) error {
	if p.cloneErr != nil {
		return p.cloneErr
	}
	if p.empty {
		return nil
	}
	if _, err := os.Stat(maskPath); errors.Is(err, os.ErrNotExist) {
		p.opts.logger().Printf("mask not found path=%s, passing piece through unchanged", maskPath)
		return nil
	}

	mask, err := vips.NewImageFromFile(maskPath)
	if err != nil {
		p.opts.logger().Printf("mask unreadable path=%s err=%v, passing piece through unchanged", maskPath, err)
		return nil
	}
	defer mask.Close()

	if !mask.HasAlpha() {
		if err := mask.AddAlpha(); err != nil {
			return fmt.Errorf("add mask alpha: %w", err)
		}
	}
	if mask.Width() != p.img.Width() || mask.Height() != p.img.Height() {
		if err := mask.ResizeWithVScale(
			float64(p.img.Width())/float64(mask.Width()),
			float64(p.img.Height())/float64(mask.Height()),
			vips.KernelNearest,
		); err != nil {
			return fmt.Errorf("resample mask: %w", err)
		}
	}

	maskCoverage := mask
	if p.opts.polarity() == imaging.MaskKeeps {
		if err := maskCoverage.Invert(); err != nil {
			return fmt.Errorf("invert mask: %w", err)
		}
	}

	if err := p.img.Composite(maskCoverage, vips.BlendModeDestOut, 0, 0); err != nil {
		return fmt.Errorf("apply mask: %w", err)
	}
	return nil
}

func (p *VipsProcessor) Resize(width, height int) error {
	if p.cloneErr != nil {
		return p.cloneErr
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resize requires positive size, got %dx%d", width, height)
	}
	if p.empty {
		return nil
	}
	hScale := float64(width) / float64(p.img.Width())
	vScale := float64(height) / float64(p.img.Height())
	if err := p.img.ResizeWithVScale(hScale, vScale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func (p *VipsProcessor) Rotate(angle float64) error {
	if p.cloneErr != nil {
		return p.cloneErr
	}
	if angle == 0 || p.empty {
		return nil
	}
	if err := p.img.Similarity(1.0, angle, &vips.ColorRGBA{}, 0, 0, 0, 0); err != nil {
		return fmt.Errorf("rotate image: %w", err)
	}
	return nil
}

func (p *VipsProcessor) Crop(left, top, width, height int, auto bool) error {
	if p.cloneErr != nil {
		return p.cloneErr
	}
	if p.empty {
		return nil
	}
	if auto {
		return p.cropAuto()
	}

	// Clamp the way the buffer backend does: negative offsets shrink
	// the extent, and a zero-area request is a legal empty result.
	if left < 0 {
		width += left
		left = 0
	}
	if top < 0 {
		height += top
		top = 0
	}
	left = min(left, p.img.Width())
	top = min(top, p.img.Height())
	width = min(width, p.img.Width()-left)
	height = min(height, p.img.Height()-top)
	if width <= 0 || height <= 0 {
		p.markEmpty()
		return nil
	}
	if err := p.img.ExtractArea(left, top, width, height); err != nil {
		return fmt.Errorf("crop image: %w", err)
	}
	return nil
}

// cropAuto trims to the bounding box of nonzero coverage. The trim
// runs on the extracted alpha band so ink color never influences the
// box; trimming the full image against a background color would drop
// black content sitting on a transparent background.
func (p *VipsProcessor) cropAuto() error {
	alpha, err := p.img.Copy()
	if err != nil {
		return fmt.Errorf("copy for trim: %w", err)
	}
	defer alpha.Close()
	if err := alpha.ExtractBand(alpha.Bands()-1, 1); err != nil {
		return fmt.Errorf("extract coverage band: %w", err)
	}

	l, t, w, h, err := alpha.FindTrim(0, &vips.Color{})
	if err != nil {
		return fmt.Errorf("find coverage bounds: %w", err)
	}
	if w <= 0 || h <= 0 {
		p.markEmpty()
		return nil
	}
	if err := p.img.ExtractArea(l, t, w, h); err != nil {
		return fmt.Errorf("auto crop: %w", err)
	}
	return nil
}

func (p *VipsProcessor) Composite(other Processor, x, y int) error {
	if p.cloneErr != nil {
		return p.cloneErr
	}
	src, ok := other.(*VipsProcessor)
	if !ok {
		return fmt.Errorf("%w: %T onto %T", ErrBackendMismatch, other, p)
	}
	if src.cloneErr != nil {
		return src.cloneErr
	}
	if src.empty {
		p.opts.logger().Printf("empty piece at (%d,%d), skipping", x, y)
		return nil
	}
	if p.empty {
		p.opts.logger().Printf("canvas is empty, skipping piece at (%d,%d)", x, y)
		return nil
	}
	if x >= p.img.Width() || y >= p.img.Height() || x+src.img.Width() <= 0 || y+src.img.Height() <= 0 {
		p.opts.logger().Printf("piece placed outside canvas at (%d,%d) size=%dx%d, skipping", x, y, src.img.Width(), src.img.Height())
		return nil
	}
	if err := p.img.Composite(src.img, vips.BlendModeOver, x, y); err != nil {
		return fmt.Errorf("composite piece: %w", err)
	}
	return nil
}

func (p *VipsProcessor) Save(path string, preview bool) error {
	buf, err := p.toBuffer()
	if err != nil {
		return err
	}
	return codec.Save(p.opts.logger(), path, buf, p.profile, preview)
}

func (p *VipsProcessor) Export(preview bool) ([]byte, error) {
	buf, err := p.toBuffer()
	if err != nil {
		return nil, err
	}
	return codec.Encode(buf, p.profile, preview)
}

func (p *VipsProcessor) LoadLayout(path string) (Processor, Processor, error) {
	if p.cloneErr != nil {
		return nil, nil, p.cloneErr
	}
	if p.empty {
		return nil, nil, errors.New("cannot load layout against an empty source")
	}
	layout, err := vips.NewImageFromFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load layout: %w", err)
	}

	if layout.Interpretation() != p.img.Interpretation() {
		if err := layout.ToColorSpace(p.img.Interpretation()); err != nil {
			layout.Close()
			return nil, nil, fmt.Errorf("convert layout colorspace: %w", err)
		}
	}
	if !layout.HasAlpha() {
		if err := layout.AddAlpha(); err != nil {
			layout.Close()
			return nil, nil, fmt.Errorf("add layout alpha: %w", err)
		}
	}

	canvas, err := vips.Black(layout.Width(), layout.Height())
	if err != nil {
		layout.Close()
		return nil, nil, fmt.Errorf("create canvas: %w", err)
	}
	if bands := layout.Bands() - canvas.Bands(); bands > 0 {
		if err := canvas.BandJoinConst(make([]float64, bands)); err != nil {
			layout.Close()
			canvas.Close()
			return nil, nil, fmt.Errorf("widen canvas bands: %w", err)
		}
	}
	if err := canvas.ToColorSpace(p.img.Interpretation()); err != nil {
		layout.Close()
		canvas.Close()
		return nil, nil, fmt.Errorf("convert canvas colorspace: %w", err)
	}

	return &VipsProcessor{img: canvas, profile: p.profile, opts: p.opts},
		&VipsProcessor{img: layout, profile: p.profile, opts: p.opts},
		nil
}

// toBuffer pulls the raw band-interleaved pixels out of the vips
// handle so the shared codec controls the on-disk layout.
func (p *VipsProcessor) toBuffer() (*imaging.Buffer, error) {
	if p.cloneErr != nil {
		return nil, p.cloneErr
	}
	if p.empty {
		return imaging.New(0, 0, imaging.ModeRGBA), nil
	}
	raw, err := p.img.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("export raw pixels: %w", err)
	}

	mode := imaging.ModeRGBA
	if p.img.Interpretation() == vips.InterpretationCMYK {
		mode = imaging.ModeCMYKA
	}

	want := p.img.Width() * p.img.Height() * mode.Channels()
	if len(raw) != want {
		return nil, fmt.Errorf("unexpected raw pixel size: have %d, want %d", len(raw), want)
	}
	return &imaging.Buffer{
		Width:  p.img.Width(),
		Height: p.img.Height(),
		Mode:   mode,
		Pix:    raw,
	}, nil
}
