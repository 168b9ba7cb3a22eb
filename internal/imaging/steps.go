package imaging

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// MaskPolarity selects how a mask's coverage is interpreted.
// The two historical pipelines disagreed on this, so it is an explicit
// parameter rather than a guess.
type MaskPolarity string

const (
	// MaskErases is the canonical polarity: an opaque mask pixel cuts
	// coverage out of the image (newAlpha = oldAlpha - maskAlpha).
	MaskErases MaskPolarity = "mask-erases"
	// MaskKeeps inverts the mask before subtracting, so opaque mask
	// pixels mark the area that survives.
	MaskKeeps MaskPolarity = "mask-keeps"
)

// EraseByMask subtracts the mask's coverage from the buffer's coverage
// channel in place. Coverage only ever decreases. The mask is resampled
// with nearest-neighbor if its size differs from the buffer.
func EraseByMask(b *Buffer, mask *Coverage, polarity MaskPolarity) {
	if b.Empty() {
		return
	}
	cov := mask.Resampled(b.Width, b.Height)
	n := b.Channels()
	for i, j := n-1, 0; i < len(b.Pix); i, j = i+n, j+1 {
		m := int(cov[j])
		if polarity == MaskKeeps {
			m = 255 - m
		}
		a := int(b.Pix[i]) - m
		if a < 0 {
			a = 0
		}
		b.Pix[i] = uint8(a)
	}
}

// Coverage is a single-channel keep/erase weight extracted from a mask
// image: its alpha channel when present, otherwise its luminance.
type Coverage struct {
	Width  int
	Height int
	Pix    []uint8
}

// CoverageFromBuffer extracts the coverage channel of a decoded mask.
func CoverageFromBuffer(b *Buffer) *Coverage {
	cov := &Coverage{Width: b.Width, Height: b.Height, Pix: make([]uint8, b.Width*b.Height)}
	n := b.Channels()
	for i, j := n-1, 0; i < len(b.Pix); i, j = i+n, j+1 {
		cov.Pix[j] = b.Pix[i]
	}
	return cov
}

// Resampled returns the coverage values scaled to width x height.
// Nearest-neighbor keeps mask edges hard.
func (c *Coverage) Resampled(width, height int) []uint8 {
	if width == c.Width && height == c.Height {
		return c.Pix
	}
	src := &image.Gray{Pix: c.Pix, Stride: c.Width, Rect: image.Rect(0, 0, c.Width, c.Height)}
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
	return dst.Pix
}

// Crop replaces the buffer's pixels with the rectangle at (left, top)
// of the requested size, clamped to the buffer's bounds. A zero-area
// request yields an empty buffer.
func Crop(b *Buffer, left, top, width, height int) {
	if left < 0 {
		width += left
		left = 0
	}
	if top < 0 {
		height += top
		top = 0
	}
	if left > b.Width {
		left = b.Width
	}
	if top > b.Height {
		top = b.Height
	}
	if width > b.Width-left {
		width = b.Width - left
	}
	if height > b.Height-top {
		height = b.Height - top
	}
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}

	n := b.Channels()
	pix := make([]uint8, width*height*n)
	for row := 0; row < height; row++ {
		srcOff := b.offset(left, top+row)
		copy(pix[row*width*n:(row+1)*width*n], b.Pix[srcOff:srcOff+width*n])
	}
	b.Width = width
	b.Height = height
	b.Pix = pix
}

// CropAuto crops the buffer to the tight bounding box of all pixels
// with nonzero coverage. A fully transparent buffer becomes empty.
func CropAuto(b *Buffer) {
	minX, minY := b.Width, b.Height
	maxX, maxY := -1, -1
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.Alpha(x, y) > 0 {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if maxX < 0 {
		Crop(b, 0, 0, 0, 0)
		return
	}
	Crop(b, minX, minY, maxX-minX+1, maxY-minY+1)
}

// Resize rescales the buffer to width x height in place. Color
// channels use a Catmull-Rom kernel; the coverage channel uses
// nearest-neighbor so hard edges do not fringe. Channels are scaled as
// separate planes and never bleed into each other.
func Resize(b *Buffer, width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	if width == b.Width && height == b.Height {
		return
	}

	n := b.Channels()
	planes := splitPlanes(b)
	out := make([]uint8, width*height*n)
	dstRect := image.Rect(0, 0, width, height)
	for c := 0; c < n; c++ {
		dst := image.NewGray(dstRect)
		kernel := draw.Interpolator(draw.CatmullRom)
		if c == n-1 {
			kernel = draw.NearestNeighbor
		}
		kernel.Scale(dst, dstRect, planes[c], planes[c].Rect, draw.Src, nil)
		mergePlane(out, dst.Pix, c, n)
	}
	b.Width = width
	b.Height = height
	b.Pix = out
}

// Rotate rotates the buffer about its center by angle degrees
// (positive is clockwise) and expands the canvas so no corner is
// clipped. Newly exposed area is fully transparent. Every channel,
// coverage included, goes through the same bilinear transform so the
// planes stay spatially aligned.
func Rotate(b *Buffer, angle float64) {
	angle = math.Mod(angle, 360)
	if angle == 0 || b.Empty() {
		return
	}

	rad := angle * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	w, h := float64(b.Width), float64(b.Height)
	newW := int(math.Ceil(h*math.Abs(sin) + w*math.Abs(cos)))
	newH := int(math.Ceil(h*math.Abs(cos) + w*math.Abs(sin)))

	// Source-to-destination affine: rotate about the source center,
	// then recenter on the expanded canvas.
	tx := float64(newW)/2 - (cos*(w/2) - sin*(h/2))
	ty := float64(newH)/2 - (sin*(w/2) + cos*(h/2))
	s2d := f64.Aff3{
		cos, -sin, tx,
		sin, cos, ty,
	}

	n := b.Channels()
	planes := splitPlanes(b)
	out := make([]uint8, newW*newH*n)
	dstRect := image.Rect(0, 0, newW, newH)
	for c := 0; c < n; c++ {
		dst := image.NewGray(dstRect)
		draw.BiLinear.Transform(dst, s2d, planes[c], planes[c].Rect, draw.Over, nil)
		mergePlane(out, dst.Pix, c, n)
	}
	b.Width = newW
	b.Height = newH
	b.Pix = out
}

// Composite pastes src onto dst at (x, y) with hard source-over
// semantics: wherever src has nonzero coverage the destination pixel
// is replaced outright, elsewhere it is untouched. The overlap is
// clipped to dst's extent. Returns false when the placement misses the
// destination entirely.
func Composite(dst, src *Buffer, x, y int) bool {
	return compositeWith(dst, src, x, y, func(d, s []uint8, n int) {
		if s[n-1] > 0 {
			copy(d, s)
		}
	})
}

// BlendOver composites src onto dst at (x, y) with a genuine linear
// alpha blend: color = dst*(1-a) + src*a, coverage = max(dst, src).
func BlendOver(dst, src *Buffer, x, y int) bool {
	return compositeWith(dst, src, x, y, func(d, s []uint8, n int) {
		a := int(s[n-1])
		for c := 0; c < n-1; c++ {
			d[c] = uint8((int(d[c])*(255-a) + int(s[c])*a + 127) / 255)
		}
		if s[n-1] > d[n-1] {
			d[n-1] = s[n-1]
		}
	})
}

func compositeWith(dst, src *Buffer, x, y int, combine func(d, s []uint8, n int)) bool {
	if dst.Mode != src.Mode {
		return false
	}
	x0, y0 := max(x, 0), max(y, 0)
	x1 := min(x+src.Width, dst.Width)
	y1 := min(y+src.Height, dst.Height)
	if x0 >= x1 || y0 >= y1 {
		return false
	}

	n := dst.Channels()
	for dy := y0; dy < y1; dy++ {
		for dx := x0; dx < x1; dx++ {
			combine(dst.Pixel(dx, dy), src.Pixel(dx-x, dy-y), n)
		}
	}
	return true
}

// splitPlanes copies each channel into its own grayscale image.
func splitPlanes(b *Buffer) []*image.Gray {
	n := b.Channels()
	rect := image.Rect(0, 0, b.Width, b.Height)
	planes := make([]*image.Gray, n)
	for c := 0; c < n; c++ {
		planes[c] = image.NewGray(rect)
	}
	for i, j := 0, 0; i < len(b.Pix); i, j = i+n, j+1 {
		for c := 0; c < n; c++ {
			planes[c].Pix[j] = b.Pix[i+c]
		}
	}
	return planes
}

// mergePlane writes a grayscale plane back into channel c of an
// interleaved sample slice.
func mergePlane(out []uint8, plane []uint8, c, n int) {
	for i, j := c, 0; i < len(out); i, j = i+n, j+1 {
		out[i] = plane[j]
	}
}
