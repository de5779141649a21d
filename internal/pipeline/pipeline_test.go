package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8}
)

// testPNG encodes a solid-color image of the given size as PNG bytes.
func testPNG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()

	img := imaging.New(width, height, c)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	return img
}

func TestProcessImageResizePreservesAspectRatio(t *testing.T) {
	p := New("")
	src := testPNG(t, 100, 50, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	out, err := p.ProcessImage(context.Background(), src, []Transform{{Kind: KindResize, Width: 40}})
	if err != nil {
		t.Fatal(err)
	}

	bounds := decode(t, out).Bounds()
	if bounds.Dx() != 40 || bounds.Dy() != 20 {
		t.Fatalf("expected 40x20, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestProcessImageResizeNeverUpscales(t *testing.T) {
	p := New("")
	src := testPNG(t, 100, 50, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	out, err := p.ProcessImage(context.Background(), src, []Transform{{Kind: KindResize, Width: 400}})
	if err != nil {
		t.Fatal(err)
	}

	bounds := decode(t, out).Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 50 {
		t.Fatalf("expected original 100x50, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestProcessImageResizeRequiresDimension(t *testing.T) {
	p := New("")
	src := testPNG(t, 10, 10, color.White)

	_, err := p.ProcessImage(context.Background(), src, []Transform{{Kind: KindResize}})
	if err == nil || !strings.Contains(err.Error(), "resize requires width or height") {
		t.Fatalf("expected dimension error, got %v", err)
	}
}

func TestProcessImageGrayscale(t *testing.T) {
	p := New("")
	src := testPNG(t, 8, 8, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	out, err := p.ProcessImage(context.Background(), src, []Transform{{Kind: KindGrayscale}})
	if err != nil {
		t.Fatal(err)
	}

	r, g, b, _ := decode(t, out).At(4, 4).RGBA()
	if r != g || g != b {
		t.Fatalf("expected gray pixel, got r=%d g=%d b=%d", r, g, b)
	}
}

func TestProcessImageCompressDefersJPEGEncoding(t *testing.T) {
	p := New("")
	src := testPNG(t, 16, 16, color.White)

	out, err := p.ProcessImage(context.Background(), src, []Transform{{Kind: KindCompress, Quality: 40}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, jpegMagic) {
		t.Fatal("expected jpeg output after compress transform")
	}
}

func TestProcessImageDefaultsToPNG(t *testing.T) {
	p := New("")
	src := testPNG(t, 16, 16, color.White)

	out, err := p.ProcessImage(context.Background(), src, []Transform{{Kind: KindGrayscale}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, pngMagic) {
		t.Fatal("expected lossless png output without compress transform")
	}
}

func TestProcessImageCompressQualityOutOfRangeIsClamped(t *testing.T) {
	p := New("")
	src := testPNG(t, 16, 16, color.White)

	for _, q := range []int{-5, 500} {
		out, err := p.ProcessImage(context.Background(), src, []Transform{{Kind: KindCompress, Quality: q}})
		if err != nil {
			t.Fatalf("quality %d: %v", q, err)
		}
		if !bytes.HasPrefix(out, jpegMagic) {
			t.Fatalf("quality %d: expected jpeg output", q)
		}
	}
}

func TestProcessImageRejectsUnknownTransform(t *testing.T) {
	p := New("")
	src := testPNG(t, 8, 8, color.White)

	_, err := p.ProcessImage(context.Background(), src, []Transform{{Kind: "sharpen"}})
	if err == nil || !strings.Contains(err.Error(), `unsupported transform "sharpen"`) {
		t.Fatalf("expected unsupported transform error, got %v", err)
	}
}

func TestProcessImageWatermarkRequiresFont(t *testing.T) {
	p := New("")
	src := testPNG(t, 8, 8, color.White)

	_, err := p.ProcessImage(context.Background(), src, []Transform{{Kind: KindWatermark, Text: "demo"}})
	if err == nil || !strings.Contains(err.Error(), "watermark font is not configured") {
		t.Fatalf("expected font error, got %v", err)
	}
}

func TestProcessImageRejectsGarbage(t *testing.T) {
	p := New("")

	_, err := p.ProcessImage(context.Background(), []byte("not an image"), []Transform{{Kind: KindGrayscale}})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestProcessImageCanceledContext(t *testing.T) {
	p := New("")
	src := testPNG(t, 8, 8, color.White)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.ProcessImage(ctx, src, []Transform{{Kind: KindGrayscale}}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestProcessImageIsDeterministic(t *testing.T) {
	p := New("")
	src := testPNG(t, 32, 16, color.NRGBA{R: 30, G: 90, B: 150, A: 255})
	transforms := []Transform{
		{Kind: KindResize, Width: 20},
		{Kind: KindGrayscale},
		{Kind: KindCompress, Quality: 70},
	}

	first, err := p.ProcessImage(context.Background(), src, transforms)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.ProcessImage(context.Background(), src, transforms)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Fatal("expected identical output for identical input and transforms")
	}
}
