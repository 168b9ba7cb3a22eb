// Package codec loads and saves images while keeping the embedded ICC
// profile and the channel semantics intact. Loading never converts
// color spaces: CMYK stays CMYK, and sources without an alpha channel
// get a synthetic fully-opaque coverage channel bolted on. Saving goes
// through the tiffx encoder so five-channel CMYK+alpha data survives
// losslessly.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"

	"github.com/printmill/proofpress/internal/icc"
	"github.com/printmill/proofpress/internal/imaging"
	"github.com/printmill/proofpress/internal/tiffx"
)

// Load reads the file at path into the canonical buffer shape and
// extracts its ICC profile. A missing file or an image mode outside
// the allow-list (RGB, RGBA, palette, CMYK) is fatal.
func Load(path string) (*imaging.Buffer, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read image %s: %w", path, err)
	}
	buf, profile, err := Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return buf, profile, nil
}

// Decode materializes raw file bytes into a pixel buffer plus profile.
func Decode(data []byte) (*imaging.Buffer, []byte, error) {
	if tiffx.IsTIFF(data) {
		// Try the separated CMYK(+alpha) layout first; standard RGB
		// TIFFs fall through to the stock decoder below.
		if buf, profile, err := tiffx.Decode(data); err == nil {
			return buf, profile, nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}

	buf, err := fromImage(img)
	if err != nil {
		return nil, nil, err
	}

	profile, err := icc.FromFile(data)
	if err != nil {
		return nil, nil, fmt.Errorf("extract icc profile: %w", err)
	}
	if profile == nil && tiffx.IsTIFF(data) {
		if profile, err = tiffx.ReadICC(data); err != nil {
			return nil, nil, fmt.Errorf("extract icc profile: %w", err)
		}
	}
	return buf, profile, nil
}

// fromImage normalizes a decoded image into the canonical buffer
// shape. Palette images become RGBA; bare RGB and CMYK gain a full
// opacity channel.
func fromImage(img image.Image) (*imaging.Buffer, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch src := img.(type) {
	case *image.CMYK:
		buf := imaging.New(w, h, imaging.ModeCMYKA)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := src.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				px := buf.Pixel(x, y)
				copy(px[:4], src.Pix[i:i+4])
				px[4] = 255
			}
		}
		return buf, nil
	case *image.NRGBA, *image.RGBA, *image.Paletted, *image.YCbCr:
		buf := imaging.New(w, h, imaging.ModeRGBA)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				px := buf.Pixel(x, y)
				px[0], px[1], px[2], px[3] = c.R, c.G, c.B, c.A
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: %T", imaging.ErrUnsupportedMode, img)
	}
}

// LoadCoverage reads a mask image and extracts its per-pixel coverage:
// the alpha channel when the mask has one, otherwise its luminance.
func LoadCoverage(path string) (*imaging.Coverage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mask %s: %w", path, err)
	}

	if tiffx.IsTIFF(data) {
		if buf, _, err := tiffx.Decode(data); err == nil {
			return imaging.CoverageFromBuffer(buf), nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mask %s: %w", path, err)
	}
	return coverageFromImage(img), nil
}

// coverageFromImage reads the alpha channel whenever the decoded type
// carries one, even if every sample is 255: a fully opaque mask still
// means full coverage. Only alpha-less types fall back to luminance.
func coverageFromImage(img image.Image) *imaging.Coverage {
	bounds := img.Bounds()
	cov := &imaging.Coverage{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pix:    make([]uint8, bounds.Dx()*bounds.Dy()),
	}

	alpha := hasAlphaChannel(img)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if alpha {
				cov.Pix[i] = color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA).A
			} else {
				cov.Pix[i] = color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			}
			i++
		}
	}
	return cov
}

// hasAlphaChannel reports whether the decoded representation stores an
// alpha channel. Decoders use the alpha-less types (RGBA for opaque
// truecolor PNG, YCbCr, Gray, CMYK) when the container had none, so
// the type is the reliable signal; sample values are not.
func hasAlphaChannel(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.Alpha, *image.Alpha16:
		return true
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// Save writes the buffer as a TIFF with the profile reattached.
// Erased pixels are color-zeroed first. If the write is rejected with
// the profile embedded, it retries once without it; if the five-sample
// layout itself cannot be written, it degrades to a plain CMYK file
// plus a separate grayscale alpha file. Only a failure after all
// fallbacks is returned.
func Save(logger *log.Logger, path string, b *imaging.Buffer, profile []byte, preview bool) error {
	b.ZeroErased()

	err := writeTIFF(path, b, tiffx.Options{Profile: profile, Preview: preview})
	if err == nil {
		return nil
	}

	if len(profile) > 0 {
		logger.Printf("encode with icc profile failed path=%s err=%v, retrying without profile", path, err)
		if err = writeTIFF(path, b, tiffx.Options{Preview: preview}); err == nil {
			return nil
		}
	}

	if b.Mode == imaging.ModeCMYKA {
		logger.Printf("five-channel encode failed path=%s err=%v, degrading to split planes", path, err)
		if splitErr := writeSplit(path, b, preview); splitErr == nil {
			return nil
		}
	}

	return fmt.Errorf("save %s: %w", path, err)
}

func writeTIFF(path string, b *imaging.Buffer, opts tiffx.Options) error {
	var buf bytes.Buffer
	if err := tiffx.Encode(&buf, b, opts); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// writeSplit is the degraded fallback: color channels as a standard
// CMYK image, coverage as a sibling grayscale image.
func writeSplit(path string, b *imaging.Buffer, preview bool) error {
	var colorBuf bytes.Buffer
	if err := tiffx.Encode(&colorBuf, b, tiffx.Options{Preview: preview, DropAlpha: true}); err != nil {
		return err
	}
	if err := os.WriteFile(path, colorBuf.Bytes(), 0o644); err != nil {
		return err
	}

	var alphaBuf bytes.Buffer
	if err := tiffx.EncodeAlphaPlane(&alphaBuf, b, preview); err != nil {
		return err
	}
	return os.WriteFile(alphaPlanePath(path), alphaBuf.Bytes(), 0o644)
}

func alphaPlanePath(path string) string {
	ext := ".tif"
	base := path
	if i := lastDot(path); i >= 0 {
		base, ext = path[:i], path[i:]
	}
	return base + "_alpha" + ext
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.':
			return i
		case '/', '\\':
			return -1
		}
	}
	return -1
}

// Encode renders the buffer to TIFF bytes without touching disk.
func Encode(b *imaging.Buffer, profile []byte, preview bool) ([]byte, error) {
	b.ZeroErased()
	var buf bytes.Buffer
	if err := tiffx.Encode(&buf, b, tiffx.Options{Profile: profile, Preview: preview}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CopyPreserveICC re-encodes src at dst through the codec, keeping the
// profile and channel data intact.
func CopyPreserveICC(logger *log.Logger, src, dst string) error {
	buf, profile, err := Load(src)
	if err != nil {
		return err
	}
	return Save(logger, dst, buf, profile, false)
}
