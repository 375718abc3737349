package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDetectMIME(t *testing.T) {
	pngData := encodePNG(t, 4, 2)

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     string
	}{
		{name: "sniffed png", filename: "photo.bin", data: pngData, want: "image/png"},
		{name: "plain text", filename: "notes.txt", data: []byte("hello world"), want: "text/plain"},
		{name: "unknown bytes with image ext", filename: "scan.png", data: []byte{0x00, 0x01, 0x02}, want: "image/png"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectMIME(tc.filename, tc.data)
			if got != tc.want {
				t.Fatalf("DetectMIME(%q) = %q, want %q", tc.filename, got, tc.want)
			}
		})
	}
}

func TestIsImage(t *testing.T) {
	if !IsImage("image/png") || !IsImage("IMAGE/JPEG; charset=binary") {
		t.Fatalf("expected image types to match")
	}
	if IsImage("text/plain") || IsImage("") {
		t.Fatalf("unexpected image match")
	}
}

func TestNewImage_FillsDimensions(t *testing.T) {
	img := NewImage("a.png", encodePNG(t, 7, 3))
	if img.MIMEType != "image/png" {
		t.Fatalf("MIMEType = %q", img.MIMEType)
	}
	if img.Width != 7 || img.Height != 3 {
		t.Fatalf("dimensions = %dx%d, want 7x3", img.Width, img.Height)
	}
	if img.Ext() != ".png" {
		t.Fatalf("Ext() = %q", img.Ext())
	}
}

func TestExtFor(t *testing.T) {
	if got := ExtFor("image/jpeg"); got != ".jpg" {
		t.Fatalf("ExtFor(jpeg) = %q", got)
	}
	if got := ExtFor("application/x-unknown"); got != ".png" {
		t.Fatalf("ExtFor(unknown) = %q", got)
	}
}
