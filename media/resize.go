package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
)

const jpegQuality = 85

// Fit downsizes b to maxWidth pixels wide, keeping its aspect ratio and its
// format. Images already narrow enough, or a non-positive maxWidth, return b
// unchanged.
func Fit(b Blob, maxWidth int) (Blob, error) {
	if maxWidth <= 0 {
		return b, nil
	}
	rc, err := b.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrConversion, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrConversion, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode config: %w", ErrConversion, err)
	}
	if cfg.Width <= maxWidth {
		return FromBytes(b.ContentType(), data), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %w", ErrConversion, err)
	}
	bounds := img.Bounds()
	newH := bounds.Dy() * maxWidth / bounds.Dx()
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", ErrConversion, format, err)
	}
	return FromBytes(b.ContentType(), buf.Bytes()), nil
}
