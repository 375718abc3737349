package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// Image is an encoded image and the metadata needed to ship it over the wire.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Empty reports whether the image carries no payload.
func (img Image) Empty() bool {
	return len(img.Data) == 0
}

// Ext returns the file extension matching the image MIME type.
func (img Image) Ext() string {
	return ExtFor(img.MIMEType)
}

// Upload is a user-supplied file that passed the image filter.
type Upload struct {
	Name      string
	SourceRef string
	Image     Image
}

var extByMIME = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
}

// ExtFor maps a MIME type to a file extension, defaulting to .png.
func ExtFor(mimeType string) string {
	if ext, ok := extByMIME[normalize(mimeType)]; ok {
		return ext
	}
	return ".png"
}

// DetectMIME sniffs the payload and falls back to the file extension when
// sniffing is inconclusive.
func DetectMIME(name string, data []byte) string {
	sniffed := normalize(http.DetectContentType(data))
	if IsImage(sniffed) {
		return sniffed
	}
	if byExt := normalize(mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))); byExt != "" {
		if IsImage(byExt) || sniffed == "application/octet-stream" {
			return byExt
		}
	}
	return sniffed
}

// IsImage reports whether mimeType names an image type.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(normalize(mimeType), "image/")
}

// Probe reads dimensions from the image header without a full decode.
func Probe(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// NewImage builds an Image from raw bytes, filling in MIME type and size.
// Dimensions stay zero when the format has no registered decoder.
func NewImage(name string, data []byte) Image {
	img := Image{Data: data, MIMEType: DetectMIME(name, data)}
	if w, h, err := Probe(data); err == nil {
		img.Width, img.Height = w, h
	}
	return img
}

func normalize(mimeType string) string {
	mt := strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
