// Package splitter cuts a source image into two halves along one axis.
package splitter

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/oukeidos/splitfill/internal/apperrors"
	"github.com/oukeidos/splitfill/internal/media"
)

// Axis selects the direction of the cut.
type Axis string

const (
	// Horizontal cuts across the width: A is the left half, B the right half.
	Horizontal Axis = "horizontal"
	// Vertical cuts across the height: A is the top half, B the bottom half.
	Vertical Axis = "vertical"
)

// ParseAxis accepts the full names and their h/v shorthands.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "horizontal", "h", "":
		return Horizontal, nil
	case "vertical", "v":
		return Vertical, nil
	default:
		return "", fmt.Errorf("unsupported axis %q (use horizontal or vertical)", s)
	}
}

func (a Axis) String() string { return string(a) }

const jpegQuality = 95

// Split decodes img and returns its two halves. The cut sits at floor(n/2)
// along the axis, so A receives the smaller half when n is odd.
func Split(img media.Image, axis Axis) (media.Image, media.Image, error) {
	if axis != Horizontal && axis != Vertical {
		return media.Image{}, media.Image{}, fmt.Errorf("unsupported axis %q", axis)
	}
	src, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return media.Image{}, media.Image{}, apperrors.Decode(fmt.Errorf("failed to decode source image: %w", err))
	}

	rectA, rectB, err := Bounds(src.Bounds(), axis)
	if err != nil {
		return media.Image{}, media.Image{}, apperrors.Decode(err)
	}

	format, mimeType := outputFormat(img.MIMEType)
	a, err := encode(imaging.Crop(src, rectA), format, mimeType)
	if err != nil {
		return media.Image{}, media.Image{}, err
	}
	b, err := encode(imaging.Crop(src, rectB), format, mimeType)
	if err != nil {
		return media.Image{}, media.Image{}, err
	}
	return a, b, nil
}

// Bounds computes the two crop rectangles for b.
func Bounds(b image.Rectangle, axis Axis) (image.Rectangle, image.Rectangle, error) {
	switch axis {
	case Horizontal:
		if b.Dx() < 2 {
			return image.Rectangle{}, image.Rectangle{}, fmt.Errorf("image is %dpx wide; at least 2px are needed to split horizontally", b.Dx())
		}
		mid := b.Min.X + b.Dx()/2
		return image.Rect(b.Min.X, b.Min.Y, mid, b.Max.Y), image.Rect(mid, b.Min.Y, b.Max.X, b.Max.Y), nil
	case Vertical:
		if b.Dy() < 2 {
			return image.Rectangle{}, image.Rectangle{}, fmt.Errorf("image is %dpx tall; at least 2px are needed to split vertically", b.Dy())
		}
		mid := b.Min.Y + b.Dy()/2
		return image.Rect(b.Min.X, b.Min.Y, b.Max.X, mid), image.Rect(b.Min.X, mid, b.Max.X, b.Max.Y), nil
	default:
		return image.Rectangle{}, image.Rectangle{}, fmt.Errorf("unsupported axis %q", axis)
	}
}

func outputFormat(mimeType string) (imaging.Format, string) {
	if strings.EqualFold(mimeType, "image/jpeg") {
		return imaging.JPEG, "image/jpeg"
	}
	return imaging.PNG, "image/png"
}

func encode(img image.Image, format imaging.Format, mimeType string) (media.Image, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return media.Image{}, apperrors.Decode(fmt.Errorf("failed to encode half: %w", err))
	}
	size := img.Bounds().Size()
	return media.Image{
		Data:     buf.Bytes(),
		MIMEType: mimeType,
		Width:    size.X,
		Height:   size.Y,
	}, nil
}
