// Package pipeline applies ordered image transforms to raw image bytes and
// batch-processes many images with bounded parallelism. It knows nothing
// about jobs, queues, or RPC.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

const defaultJPEGQuality = 75

// Pipeline executes transform lists against in-memory images.
type Pipeline struct {
	fontPath string // TTF face used by the watermark transform
}

// New creates a Pipeline. fontPath may be empty if watermarking is not used.
func New(fontPath string) *Pipeline {
	return &Pipeline{fontPath: fontPath}
}

// ProcessImage decodes data once, applies transforms sequentially in list
// order (later transforms see the output of earlier ones), then encodes the
// result. A compress transform does not re-encode immediately: it defers a
// JPEG quality that is honored once, at save time; without it the output is
// lossless PNG.
func (p *Pipeline) ProcessImage(ctx context.Context, data []byte, transforms []Transform) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var jpegQuality int // 0 = no compress transform seen

	for _, t := range transforms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch t.Kind {
		case KindResize:
			img, err = p.resize(img, t)
		case KindGrayscale:
			img = imaging.Grayscale(img)
		case KindCompress:
			jpegQuality = clampQuality(t.Quality)
		case KindWatermark:
			img, err = p.watermark(img, t)
		default:
			return nil, fmt.Errorf("unsupported transform %q", t.Kind)
		}
		if err != nil {
			return nil, err
		}
	}

	buf := bytes.NewBuffer(nil)
	if jpegQuality > 0 {
		err = imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	} else {
		err = imaging.Encode(buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

// resize scales the image down to fit the given box, preserving aspect
// ratio. It never upscales beyond the source dimensions.
func (p *Pipeline) resize(img image.Image, t Transform) (image.Image, error) {
	bounds := img.Bounds()

	switch {
	case t.Width > 0 && t.Height > 0:
		return imaging.Fit(img, t.Width, t.Height, imaging.Lanczos), nil
	case t.Width > 0:
		if bounds.Dx() <= t.Width {
			return img, nil
		}
		return imaging.Resize(img, t.Width, 0, imaging.Lanczos), nil
	case t.Height > 0:
		if bounds.Dy() <= t.Height {
			return img, nil
		}
		return imaging.Resize(img, 0, t.Height, imaging.Lanczos), nil
	default:
		return nil, fmt.Errorf("resize requires width or height")
	}
}

// watermark draws the given text in the bottom-right corner.
func (p *Pipeline) watermark(img image.Image, t Transform) (image.Image, error) {
	text := t.Text
	if text == "" {
		text = "Watermark"
	}

	if p.fontPath == "" {
		return nil, fmt.Errorf("watermark font is not configured")
	}

	dc := gg.NewContextForImage(img)
	dc.SetColor(color.White)

	fontSize := float64(dc.Width()) * 0.05
	if err := dc.LoadFontFace(p.fontPath, fontSize); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	margin := 10.0
	x := float64(dc.Width()) - margin
	y := float64(dc.Height()) - margin

	dc.DrawStringAnchored(text, x, y, 1, 1)
	dc.Fill()

	return dc.Image(), nil
}

func clampQuality(q int) int {
	if q == 0 {
		return defaultJPEGQuality
	}
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
