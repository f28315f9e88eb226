package pdfsource

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/brunobiangulo/mmingest/layout"
)

// DefaultRenderScale is the pixels-per-point factor used when Render is
// called with a non-positive scale.
const DefaultRenderScale = 2.0

var (
	shadeColor = color.Gray{Y: 0xDD}
	inkColor   = color.Black
)

// Render rasterizes the clip region of the page: filled rectangles, ruling
// lines, placed images and text in a fixed bitmap face. It is a preview
// renderer; fonts and colours of the source are not reproduced.
func (p *Page) Render(clip layout.Rect, scale float64) (img image.Image, err error) {
	if scale <= 0 {
		scale = DefaultRenderScale
	}
	if clip.IsEmpty() {
		clip = layout.Rect{X1: p.Width(), Y1: p.Height()}
	}
	scan, err := p.content()
	if err != nil {
		return nil, err
	}

	w := int(math.Ceil(clip.Width() * scale))
	h := int(math.Ceil(clip.Height() * scale))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("pdfsource: empty render region %v", clip)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	px := func(x, y float64) (int, int) {
		return int(math.Round((x - clip.X0) * scale)), int(math.Round((y - clip.Y0) * scale))
	}

	for _, r := range scan.Fills {
		if !clip.Intersects(r) {
			continue
		}
		x0, y0 := px(r.X0, r.Y0)
		x1, y1 := px(r.X1, r.Y1)
		if x1 == x0 {
			x1++
		}
		if y1 == y0 {
			y1++
		}
		fill := image.Image(image.NewUniform(shadeColor))
		if r.Width() <= thinBarMax || r.Height() <= thinBarMax {
			fill = image.NewUniform(inkColor)
		}
		draw.Draw(dst, image.Rect(x0, y0, x1, y1), fill, image.Point{}, draw.Src)
	}

	for _, pl := range scan.Placements {
		if !clip.Intersects(pl.Rect) {
			continue
		}
		src, err := p.placedImage(pl)
		if err != nil {
			continue
		}
		x0, y0 := px(pl.Rect.X0, pl.Rect.Y0)
		x1, y1 := px(pl.Rect.X1, pl.Rect.Y1)
		xdraw.ApproxBiLinear.Scale(dst, image.Rect(x0, y0, x1, y1), src, src.Bounds(), draw.Over, nil)
	}

	for _, s := range scan.Segments {
		x0, y0 := px(s.X0, s.Y0)
		x1, y1 := px(s.X1, s.Y1)
		drawLine(dst, x0, y0, x1, y1, inkColor)
	}

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(inkColor), Face: basicfont.Face7x13}
	for _, c := range scan.Chars {
		if !clip.Intersects(c.Rect) {
			continue
		}
		x, y := px(c.Rect.X0, c.Rect.Y1-0.2*c.FontSize)
		d.Dot = fixed.P(x, y)
		d.DrawString(c.S)
	}
	return dst, nil
}

func (p *Page) placedImage(pl placement) (image.Image, error) {
	ref := ImageRef{
		Name: pl.Name,
		Rect: pl.Rect,
		Pixels: image.Point{
			X: int(pl.XObj.Key("Width").Int64()),
			Y: int(pl.XObj.Key("Height").Int64()),
		},
		xobj: pl.XObj,
	}
	data, err := p.ImageData(ref)
	if err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data.Data))
	return src, err
}

// drawLine plots a one-pixel line with a simple DDA.
func drawLine(dst draw.Image, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := x1-x0, y1-y0
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		dst.Set(x0, y0, c)
		return
	}
	for i := 0; i <= steps; i++ {
		x := x0 + int(math.Round(float64(dx*i)/float64(steps)))
		y := y0 + int(math.Round(float64(dy*i)/float64(steps)))
		dst.Set(x, y, c)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
