package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/printmill/proofpress/internal/imaging"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func fakeProfile() []byte {
	p := make([]byte, 128)
	for i := range p {
		p[i] = uint8(i * 3)
	}
	return p
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func TestSaveLoadRoundTripKeepsProfileAndPixels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canvas.tif")

	src := imaging.New(6, 4, imaging.ModeCMYKA)
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			copy(src.Pixel(x, y), []uint8{uint8(x * 40), uint8(y * 60), 128, 17, 255})
		}
	}
	profile := fakeProfile()

	if err := Save(discardLogger(), path, src, profile, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, gotProfile, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Mode != imaging.ModeCMYKA {
		t.Fatalf("mode = %s, want CMYKA", got.Mode)
	}
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Fatal("pixels did not survive save/load")
	}
	if !bytes.Equal(gotProfile, profile) {
		t.Fatal("ICC profile must survive save/load byte for byte")
	}
}

func TestSaveZeroesErasedPixels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "erased.tif")

	src := imaging.New(2, 1, imaging.ModeCMYKA)
	copy(src.Pixel(0, 0), []uint8{200, 150, 100, 50, 255})
	copy(src.Pixel(1, 0), []uint8{200, 150, 100, 50, 0})

	if err := Save(discardLogger(), path, src, nil, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	erased := got.Pixel(1, 0)
	for c := 0; c < 4; c++ {
		if erased[c] != 0 {
			t.Fatalf("erased pixel channel %d = %d, want 0", c, erased[c])
		}
	}
	kept := got.Pixel(0, 0)
	if kept[0] != 200 || kept[4] != 255 {
		t.Fatalf("covered pixel must keep its ink: %v", kept)
	}
}

func TestLoadPNGGainsCoverageChannel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.png")

	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	img.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 40})
	writePNG(t, path, img)

	got, profile, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Mode != imaging.ModeRGBA {
		t.Fatalf("mode = %s, want RGBA", got.Mode)
	}
	px := got.Pixel(1, 1)
	if px[0] != 10 || px[1] != 20 || px[2] != 30 || px[3] != 40 {
		t.Fatalf("png pixel did not load faithfully: %v", px)
	}
	if profile != nil {
		t.Fatalf("plain png should carry no profile, got %d bytes", len(profile))
	}
}

func TestLoadOpaquePNGIsFullyCovered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opaque.png")

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 5, G: 6, B: 7, A: 255})
		}
	}
	writePNG(t, path, img)

	got, _, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got.Alpha(x, y) != 255 {
				t.Fatalf("opaque source should get full coverage, alpha at (%d,%d)=%d", x, y, got.Alpha(x, y))
			}
		}
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadUnsupportedModeFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gray.png")

	img := image.NewGray(image.Rect(0, 0, 2, 2))
	writePNG(t, path, img)

	if _, _, err := Load(path); err == nil {
		t.Fatal("expected error for grayscale source")
	}
}

func TestLoadCoverageUsesAlphaWhenPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mask.png")

	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 200})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 0})
	writePNG(t, path, img)

	cov, err := LoadCoverage(path)
	if err != nil {
		t.Fatalf("load coverage: %v", err)
	}
	if cov.Pix[0] != 200 || cov.Pix[1] != 0 {
		t.Fatalf("coverage should follow alpha: %v", cov.Pix)
	}
}

func TestLoadCoverageFallsBackToLuminance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lum.png")

	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	writePNG(t, path, img)

	cov, err := LoadCoverage(path)
	if err != nil {
		t.Fatalf("load coverage: %v", err)
	}
	if cov.Pix[0] != 255 || cov.Pix[1] != 0 {
		t.Fatalf("opaque mask coverage should follow luminance: %v", cov.Pix)
	}
}

func TestCoverageFollowsAlphaChannelEvenWhenOpaque(t *testing.T) {
	// An opaque black mask with an alpha channel covers everything; it
	// must not be mistaken for a luminance mask that covers nothing.
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{A: 255})

	cov := coverageFromImage(img)
	if cov.Pix[0] != 255 || cov.Pix[1] != 255 {
		t.Fatalf("opaque alpha mask coverage = %v, want full", cov.Pix)
	}

	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	if cov := coverageFromImage(gray); cov.Pix[0] != 0 || cov.Pix[1] != 0 {
		t.Fatalf("black luminance mask coverage = %v, want none", cov.Pix)
	}
}

func TestCopyPreserveICC(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.tif")
	dst := filepath.Join(dir, "out.tif")

	buf := imaging.New(3, 3, imaging.ModeCMYKA)
	buf.Fill(1, 2, 3, 4, 255)
	profile := fakeProfile()
	if err := Save(discardLogger(), src, buf, profile, false); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	if err := CopyPreserveICC(discardLogger(), src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}

	got, gotProfile, err := Load(dst)
	if err != nil {
		t.Fatalf("load copy: %v", err)
	}
	if !bytes.Equal(gotProfile, profile) {
		t.Fatal("copy must preserve the ICC profile")
	}
	if !bytes.Equal(got.Pix, buf.Pix) {
		t.Fatal("copy must preserve pixel data")
	}
}

func TestEncodeMatchesSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "direct.tif")

	buf := imaging.New(4, 2, imaging.ModeRGBA)
	buf.Fill(9, 8, 7, 255)

	data, err := Encode(buf.Clone(), nil, false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := Save(discardLogger(), path, buf.Clone(), nil, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !bytes.Equal(data, onDisk) {
		t.Fatal("Encode and Save must produce identical bytes")
	}
}
