package splitter

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/oukeidos/splitfill/internal/apperrors"
	"github.com/oukeidos/splitfill/internal/media"
)

func sourcePNG(t *testing.T, w, h int) media.Image {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			c := color.NRGBA{B: 255, A: 255}
			if x < w/2 {
				c = color.NRGBA{R: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return media.Image{Data: buf.Bytes(), MIMEType: "image/png", Width: w, Height: h}
}

func decode(t *testing.T, img media.Image) image.Image {
	t.Helper()
	out, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("decode half: %v", err)
	}
	return out
}

func TestSplit_HorizontalWidths(t *testing.T) {
	for _, w := range []int{2, 7, 10, 301} {
		a, b, err := Split(sourcePNG(t, w, 5), Horizontal)
		if err != nil {
			t.Fatalf("Split(w=%d) failed: %v", w, err)
		}
		wantA := w / 2
		wantB := w - w/2
		if a.Width != wantA || b.Width != wantB {
			t.Fatalf("w=%d: widths = (%d, %d), want (%d, %d)", w, a.Width, b.Width, wantA, wantB)
		}
		if a.Height != 5 || b.Height != 5 {
			t.Fatalf("w=%d: heights = (%d, %d), want 5", w, a.Height, b.Height)
		}
		da, db := decode(t, a), decode(t, b)
		if da.Bounds().Dx() != wantA || db.Bounds().Dx() != wantB {
			t.Fatalf("w=%d: encoded widths disagree with metadata", w)
		}
	}
}

func TestSplit_HorizontalContent(t *testing.T) {
	a, b, err := Split(sourcePNG(t, 8, 2), Horizontal)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	r, _, _, _ := decode(t, a).At(0, 0).RGBA()
	if r == 0 {
		t.Fatalf("left half should come from the red side")
	}
	_, _, bl, _ := decode(t, b).At(0, 0).RGBA()
	if bl == 0 {
		t.Fatalf("right half should come from the blue side")
	}
}

func TestSplit_VerticalHeights(t *testing.T) {
	a, b, err := Split(sourcePNG(t, 4, 9), Vertical)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if a.Height != 4 || b.Height != 5 {
		t.Fatalf("heights = (%d, %d), want (4, 5)", a.Height, b.Height)
	}
	if a.Width != 4 || b.Width != 4 {
		t.Fatalf("widths = (%d, %d), want 4", a.Width, b.Width)
	}
}

func TestSplit_KeepsJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 6, 6)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	a, b, err := Split(media.Image{Data: buf.Bytes(), MIMEType: "image/jpeg"}, Horizontal)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if a.MIMEType != "image/jpeg" || b.MIMEType != "image/jpeg" {
		t.Fatalf("expected jpeg halves, got %q/%q", a.MIMEType, b.MIMEType)
	}
}

func TestSplit_DecodeFailure(t *testing.T) {
	_, _, err := Split(media.Image{Data: []byte("garbage"), MIMEType: "image/png"}, Horizontal)
	if !apperrors.Is(err, apperrors.KindDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestSplit_TooSmall(t *testing.T) {
	_, _, err := Split(sourcePNG(t, 1, 10), Horizontal)
	if !apperrors.Is(err, apperrors.KindDecode) {
		t.Fatalf("expected decode error for 1px wide image, got %v", err)
	}
	if _, _, err := Split(sourcePNG(t, 1, 10), Vertical); err != nil {
		t.Fatalf("vertical split of 1x10 should work: %v", err)
	}
}

func TestParseAxis(t *testing.T) {
	tests := map[string]Axis{
		"horizontal": Horizontal,
		"H":          Horizontal,
		"":           Horizontal,
		"vertical":   Vertical,
		" v ":        Vertical,
	}
	for in, want := range tests {
		got, err := ParseAxis(in)
		if err != nil || got != want {
			t.Errorf("ParseAxis(%q) = (%q, %v), want %q", in, got, err, want)
		}
	}
	if _, err := ParseAxis("diagonal"); err == nil {
		t.Errorf("expected error for unsupported axis")
	}
}

func TestBounds_NonZeroOrigin(t *testing.T) {
	a, b, err := Bounds(image.Rect(10, 20, 15, 30), Horizontal)
	if err != nil {
		t.Fatalf("Bounds failed: %v", err)
	}
	if a != image.Rect(10, 20, 12, 30) || b != image.Rect(12, 20, 15, 30) {
		t.Fatalf("unexpected rects %v %v", a, b)
	}
}
