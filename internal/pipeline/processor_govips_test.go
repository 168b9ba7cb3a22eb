//go:build govips && cgo

package pipeline

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestMain(m *testing.M) {
	if err := Startup(); err != nil {
		panic(err)
	}
	defer Shutdown()
	os.Exit(m.Run())
}

func writeVipsTestPNG(t *testing.T, path string, img image.Image) {
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

func loadVipsFixture(t *testing.T, img image.Image) *VipsProcessor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.png")
	writeVipsTestPNG(t, path, img)
	p, err := LoadVipsProcessor(path, Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func solidSquare(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestVipsCropZeroAreaYieldsEmptyPiece(t *testing.T) {
	p := loadVipsFixture(t, solidSquare(40, 40, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))

	if err := p.Crop(0, 0, 0, 0, false); err != nil {
		t.Fatalf("zero-area crop must be legal: %v", err)
	}
	if p.Width() != 0 || p.Height() != 0 {
		t.Fatalf("size after zero-area crop = %dx%d, want 0x0", p.Width(), p.Height())
	}

	// Later steps pass through the empty piece without error.
	if err := p.Rotate(45); err != nil {
		t.Fatalf("rotate after empty crop: %v", err)
	}
	if err := p.Resize(10, 10); err != nil {
		t.Fatalf("resize after empty crop: %v", err)
	}
	if err := p.Crop(0, 0, 5, 5, false); err != nil {
		t.Fatalf("crop after empty crop: %v", err)
	}
}

func TestVipsCropClampsNegativeOffsets(t *testing.T) {
	p := loadVipsFixture(t, solidSquare(40, 40, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))

	if err := p.Crop(-10, -10, 20, 20, false); err != nil {
		t.Fatalf("crop: %v", err)
	}
	if p.Width() != 10 || p.Height() != 10 {
		t.Fatalf("clamped crop = %dx%d, want 10x10", p.Width(), p.Height())
	}
}

func TestVipsCropClampsOversizedExtent(t *testing.T) {
	p := loadVipsFixture(t, solidSquare(40, 40, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))

	if err := p.Crop(30, 30, 100, 100, false); err != nil {
		t.Fatalf("crop: %v", err)
	}
	if p.Width() != 10 || p.Height() != 10 {
		t.Fatalf("clamped crop = %dx%d, want 10x10", p.Width(), p.Height())
	}
}

func TestVipsAutoCropTrimsByCoverageNotColor(t *testing.T) {
	// Black square on a transparent background: a color-distance trim
	// against black would erase the content entirely.
	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for y := 10; y < 30; y++ {
		for x := 15; x < 35; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	p := loadVipsFixture(t, img)

	if err := p.Crop(0, 0, 0, 0, true); err != nil {
		t.Fatalf("auto crop: %v", err)
	}
	if p.Width() != 20 || p.Height() != 20 {
		t.Fatalf("auto crop = %dx%d, want 20x20", p.Width(), p.Height())
	}
}

func TestVipsAutoCropTransparentYieldsEmptyPiece(t *testing.T) {
	p := loadVipsFixture(t, image.NewNRGBA(image.Rect(0, 0, 20, 20)))

	if err := p.Crop(0, 0, 0, 0, true); err != nil {
		t.Fatalf("auto crop: %v", err)
	}
	if p.Width() != 0 || p.Height() != 0 {
		t.Fatalf("size = %dx%d, want 0x0 for transparent source", p.Width(), p.Height())
	}
}

func TestVipsCompositeSkipsEmptyPiece(t *testing.T) {
	canvas := loadVipsFixture(t, solidSquare(30, 30, color.NRGBA{R: 1, G: 2, B: 3, A: 255}))
	piece := loadVipsFixture(t, solidSquare(10, 10, color.NRGBA{R: 200, G: 0, B: 0, A: 255}))

	if err := piece.Crop(0, 0, 0, 0, false); err != nil {
		t.Fatalf("empty the piece: %v", err)
	}
	if err := canvas.Composite(piece, 5, 5); err != nil {
		t.Fatalf("compositing an empty piece must be a no-op: %v", err)
	}
	if canvas.Width() != 30 || canvas.Height() != 30 {
		t.Fatalf("canvas drifted to %dx%d", canvas.Width(), canvas.Height())
	}
}

func TestVipsCloneIsolatesPieces(t *testing.T) {
	src := loadVipsFixture(t, solidSquare(40, 40, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))

	clone := src.Clone()
	if err := clone.Crop(0, 0, 10, 10, false); err != nil {
		t.Fatalf("crop clone: %v", err)
	}
	if src.Width() != 40 || src.Height() != 40 {
		t.Fatalf("source mutated by clone step: %dx%d", src.Width(), src.Height())
	}
}

func TestVipsBrokenCloneFailsNextOperation(t *testing.T) {
	broken := &VipsProcessor{cloneErr: errors.New("clone image: out of memory")}

	if err := broken.Resize(10, 10); err == nil {
		t.Fatal("operations on a failed clone must report the clone error")
	}
	if err := broken.Crop(0, 0, 5, 5, false); err == nil {
		t.Fatal("operations on a failed clone must report the clone error")
	}

	again := broken.Clone().(*VipsProcessor)
	if again.cloneErr == nil {
		t.Fatal("re-cloning a failed clone must carry the error forward")
	}
}
