// Package imaging prepares stored blobs for the visual validator.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Validator model input dimensions.
const (
	TargetWidth  = 224
	TargetHeight = 224

	jpegQuality = 85
)

// NormalizeForVerification decodes an image blob and re-encodes it as a
// 224x224 JPEG, the shape the validator model expects. Transparency is
// flattened onto black by the JPEG encoding.
func NormalizeForVerification(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, TargetWidth, TargetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
