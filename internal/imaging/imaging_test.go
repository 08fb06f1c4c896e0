package imaging_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"stockpix/internal/imaging"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeResizesToModelInput(t *testing.T) {
	for name, data := range map[string][]byte{
		"png_large":  encodePNG(t, 800, 600),
		"png_small":  encodePNG(t, 10, 10),
		"jpeg_large": encodeJPEG(t, 1024, 1024),
	} {
		out, err := imaging.NormalizeForVerification(data)
		if err != nil {
			t.Fatalf("%s: NormalizeForVerification: %v", name, err)
		}
		decoded, format, err := image.Decode(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("%s: decode output: %v", name, err)
		}
		if format != "jpeg" {
			t.Fatalf("%s: output format %q", name, format)
		}
		bounds := decoded.Bounds()
		if bounds.Dx() != imaging.TargetWidth || bounds.Dy() != imaging.TargetHeight {
			t.Fatalf("%s: output size %dx%d", name, bounds.Dx(), bounds.Dy())
		}
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	if _, err := imaging.NormalizeForVerification([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}
