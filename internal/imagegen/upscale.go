package imagegen

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// upscaleBytes returns a PNG payload scaled up by the given factor using
// the CatmullRom kernel. The result is deterministic for a given input.
func upscaleBytes(payload []byte, scale int) ([]byte, error) {
	if scale <= 1 {
		return payload, nil
	}
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}
	bounds := img.Bounds()
	w := bounds.Dx() * scale
	h := bounds.Dy() * scale
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode upscaled image: %w", err)
	}
	return buf.Bytes(), nil
}
