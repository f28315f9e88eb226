package describe

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// JPEGBase64 decodes img, flattens it to opaque RGB and returns it as a
// base64 JPEG.
func JPEGBase64(img []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("describe: decoding image: %w", err)
	}

	b := src.Bounds()
	rgb := image.NewRGBA(b)
	draw.Draw(rgb, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(rgb, b, src, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: 75}); err != nil {
		return "", fmt.Errorf("describe: encoding jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
