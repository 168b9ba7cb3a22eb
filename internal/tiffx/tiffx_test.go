package tiffx

import (
	"bytes"
	"testing"

	"github.com/printmill/proofpress/internal/imaging"
)

func gradientBuffer(w, h int, mode imaging.Mode) *imaging.Buffer {
	b := imaging.New(w, h, mode)
	n := b.Channels()
	for i := range b.Pix {
		b.Pix[i] = uint8((i*7 + i/n) % 256)
	}
	// Keep coverage nonzero so nothing gets zeroed downstream.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			b.SetAlpha(x, y, uint8(100+(x+y)%156))
		}
	}
	return b
}

func fakeProfile() []byte {
	// Arbitrary bytes; the codec treats the profile as opaque.
	p := make([]byte, 517)
	for i := range p {
		p[i] = uint8(i % 251)
	}
	return p
}

func TestEncodeDecodeRoundTripCMYKA(t *testing.T) {
	src := gradientBuffer(13, 9, imaging.ModeCMYKA)
	profile := fakeProfile()

	var buf bytes.Buffer
	if err := Encode(&buf, src, Options{Profile: profile}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, gotProfile, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mode != imaging.ModeCMYKA {
		t.Fatalf("mode = %s, want CMYKA", got.Mode)
	}
	if got.Width != 13 || got.Height != 9 {
		t.Fatalf("size = %dx%d, want 13x9", got.Width, got.Height)
	}
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Fatal("pixel data did not round trip")
	}
	if !bytes.Equal(gotProfile, profile) {
		t.Fatal("ICC profile must round trip byte for byte")
	}
}

func TestEncodeDecodeRoundTripRGBA(t *testing.T) {
	src := gradientBuffer(5, 17, imaging.ModeRGBA)

	var buf bytes.Buffer
	if err := Encode(&buf, src, Options{Preview: true}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, profile, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mode != imaging.ModeRGBA {
		t.Fatalf("mode = %s, want RGBA", got.Mode)
	}
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Fatal("pixel data did not round trip")
	}
	if profile != nil {
		t.Fatalf("expected no profile, got %d bytes", len(profile))
	}
}

func TestEncodeDropAlphaWidensOnDecode(t *testing.T) {
	src := gradientBuffer(4, 4, imaging.ModeCMYKA)

	var buf bytes.Buffer
	if err := Encode(&buf, src, Options{DropAlpha: true}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, _, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mode != imaging.ModeCMYKA {
		t.Fatalf("mode = %s, want CMYKA", got.Mode)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got.Alpha(x, y) != 255 {
				t.Fatalf("dropped alpha should decode as fully opaque, alpha at (%d,%d)=%d", x, y, got.Alpha(x, y))
			}
			want := src.Pixel(x, y)
			have := got.Pixel(x, y)
			for c := 0; c < 4; c++ {
				if have[c] != want[c] {
					t.Fatalf("color channel %d drifted at (%d,%d): %d != %d", c, x, y, have[c], want[c])
				}
			}
		}
	}
}

func TestReadICCWithoutDecodingPixels(t *testing.T) {
	src := gradientBuffer(3, 3, imaging.ModeCMYKA)
	profile := fakeProfile()

	var buf bytes.Buffer
	if err := Encode(&buf, src, Options{Profile: profile}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := ReadICC(buf.Bytes())
	if err != nil {
		t.Fatalf("read icc: %v", err)
	}
	if !bytes.Equal(got, profile) {
		t.Fatal("ReadICC must return the embedded profile verbatim")
	}
}

func TestEncodeAlphaPlaneCarriesCoverage(t *testing.T) {
	src := imaging.New(2, 2, imaging.ModeCMYKA)
	src.SetAlpha(0, 0, 200)
	src.SetAlpha(1, 1, 17)

	var buf bytes.Buffer
	if err := EncodeAlphaPlane(&buf, src, false); err != nil {
		t.Fatalf("encode alpha plane: %v", err)
	}

	got, _, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode alpha plane: %v", err)
	}
	if got.Pixel(0, 0)[0] != 200 {
		t.Fatalf("alpha plane pixel (0,0) = %d, want 200", got.Pixel(0, 0)[0])
	}
	if got.Pixel(1, 1)[0] != 17 {
		t.Fatalf("alpha plane pixel (1,1) = %d, want 17", got.Pixel(1, 1)[0])
	}
}

func extraSamplesTag(t *testing.T, data []byte) uint32 {
	t.Helper()
	entries, _, err := parseIFD(data)
	if err != nil {
		t.Fatalf("parse ifd: %v", err)
	}
	e, ok := entries[tagExtraSamples]
	if !ok {
		t.Fatal("ExtraSamples tag missing")
	}
	return firstValue(e)
}

func TestExtraSamplesTagMatchesAlphaKind(t *testing.T) {
	var cmyka, rgba bytes.Buffer
	if err := Encode(&cmyka, gradientBuffer(4, 4, imaging.ModeCMYKA), Options{}); err != nil {
		t.Fatalf("encode cmyka: %v", err)
	}
	if err := Encode(&rgba, gradientBuffer(4, 4, imaging.ModeRGBA), Options{}); err != nil {
		t.Fatalf("encode rgba: %v", err)
	}

	if got := extraSamplesTag(t, cmyka.Bytes()); got != extraSampleAssocAlpha {
		t.Fatalf("cmyka ExtraSamples = %d, want %d (associated)", got, extraSampleAssocAlpha)
	}
	// The buffer stores straight alpha, so the four-sample container
	// must not claim premultiplication.
	if got := extraSamplesTag(t, rgba.Bytes()); got != extraSampleUnassocAlpha {
		t.Fatalf("rgba ExtraSamples = %d, want %d (unassociated)", got, extraSampleUnassocAlpha)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode([]byte("not a tiff at all")); err == nil {
		t.Fatal("expected error for non-TIFF data")
	}
	if IsTIFF([]byte("PNG")) {
		t.Fatal("IsTIFF must reject non-TIFF magic")
	}
	if !IsTIFF([]byte{'I', 'I', 42, 0, 0, 0, 0, 0}) {
		t.Fatal("IsTIFF must accept little-endian magic")
	}
	if !IsTIFF([]byte{'M', 'M', 0, 42, 0, 0, 0, 0}) {
		t.Fatal("IsTIFF must accept big-endian magic")
	}
}

func TestPreviewTierIsFasterButLossless(t *testing.T) {
	src := gradientBuffer(32, 32, imaging.ModeCMYKA)

	var fast, archival bytes.Buffer
	if err := Encode(&fast, src, Options{Preview: true}); err != nil {
		t.Fatalf("encode preview: %v", err)
	}
	if err := Encode(&archival, src, Options{}); err != nil {
		t.Fatalf("encode archival: %v", err)
	}

	fastBuf, _, err := Decode(fast.Bytes())
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	archivalBuf, _, err := Decode(archival.Bytes())
	if err != nil {
		t.Fatalf("decode archival: %v", err)
	}
	if !bytes.Equal(fastBuf.Pix, archivalBuf.Pix) {
		t.Fatal("both compression tiers must be lossless")
	}
}
