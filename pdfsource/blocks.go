package pdfsource

import (
	"math"
	"sort"
	"strings"

	"github.com/brunobiangulo/mmingest/layout"
)

// line is a run of glyphs sharing a baseline.
type line struct {
	Rect layout.Rect
	Text string
	Size float64
}

// Blocks returns the page's raw blocks: paragraphs of text, placed images
// and vector drawings. Text blocks come first in reading order (top to
// bottom, then left to right), followed by images and drawings.
func (p *Page) Blocks() ([]layout.Block, error) {
	scan, err := p.content()
	if err != nil {
		return nil, err
	}

	blocks := textBlocks(scan.Chars)
	for _, pl := range scan.Placements {
		blocks = append(blocks, layout.Block{Kind: layout.KindImage, Rect: pl.Rect})
	}
	for _, d := range scan.Drawings {
		blocks = append(blocks, layout.Block{Kind: layout.KindDrawing, Rect: d})
	}
	return blocks, nil
}

// Text returns the glyphs whose centre falls inside clip, assembled into
// lines.
func (p *Page) Text(clip layout.Rect) (string, error) {
	scan, err := p.content()
	if err != nil {
		return "", err
	}
	return textIn(scan.Chars, clip), nil
}

func textIn(chars []char, clip layout.Rect) string {
	var inside []char
	for _, c := range chars {
		cx := (c.Rect.X0 + c.Rect.X1) / 2
		cy := (c.Rect.Y0 + c.Rect.Y1) / 2
		if clip.Contains(cx, cy) {
			inside = append(inside, c)
		}
	}
	lines := buildLines(inside)
	texts := make([]string, 0, len(lines))
	for _, l := range lines {
		texts = append(texts, l.Text)
	}
	return strings.Join(texts, "\n")
}

func textBlocks(chars []char) []layout.Block {
	lines := buildLines(chars)
	if len(lines) == 0 {
		return nil
	}

	var blocks []layout.Block
	cur := lines[0]
	for _, l := range lines[1:] {
		if continues(cur, l) {
			cur = line{
				Rect: bound(cur.Rect, l.Rect),
				Text: cur.Text + "\n" + l.Text,
				Size: math.Max(cur.Size, l.Size),
			}
			continue
		}
		blocks = append(blocks, layout.Block{Kind: layout.KindText, Rect: cur.Rect, Text: cur.Text})
		cur = l
	}
	blocks = append(blocks, layout.Block{Kind: layout.KindText, Rect: cur.Rect, Text: cur.Text})

	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := blocks[i].Rect, blocks[j].Rect
		if math.Abs(a.Y0-b.Y0) > 1 {
			return a.Y0 < b.Y0
		}
		return a.X0 < b.X0
	})
	return blocks
}

// continues reports whether l belongs to the same paragraph as the block
// built so far: small vertical gap and shared horizontal extent.
func continues(block, l line) bool {
	gap := l.Rect.Y0 - block.Rect.Y1
	if gap < -0.5*l.Size || gap > 0.6*math.Max(block.Size, l.Size) {
		return false
	}
	return block.Rect.HorizontalOverlap(l.Rect) > 0
}

// buildLines groups glyphs into lines. Glyphs arrive in content-stream
// order; a new line starts when the baseline moves or the pen jumps back.
// Lines are returned sorted top to bottom.
func buildLines(chars []char) []line {
	var (
		lines []line
		cur   *line
		b     strings.Builder
		lastX float64
	)

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(b.String())
		if cur.Text != "" {
			lines = append(lines, *cur)
		}
		cur = nil
		b.Reset()
	}

	for _, c := range chars {
		if cur != nil {
			sameLine := math.Abs(c.Rect.Y1-cur.Rect.Y1) <= 0.5*math.Min(c.FontSize, cur.Size) &&
				c.Rect.X0 >= lastX-c.FontSize
			if !sameLine {
				flush()
			}
		}
		if cur == nil {
			cur = &line{Rect: c.Rect, Size: c.FontSize}
		} else {
			if c.Rect.X0-lastX > 0.25*c.FontSize && !strings.HasSuffix(b.String(), " ") && !strings.HasPrefix(c.S, " ") {
				b.WriteByte(' ')
			}
			cur.Rect = bound(cur.Rect, c.Rect)
			cur.Size = math.Max(cur.Size, c.FontSize)
		}
		b.WriteString(c.S)
		lastX = c.Rect.X1
	}
	flush()

	sort.SliceStable(lines, func(i, j int) bool {
		ri, rj := lines[i].Rect, lines[j].Rect
		if math.Abs(ri.Y1-rj.Y1) > 0.5*math.Min(lines[i].Size, lines[j].Size) {
			return ri.Y0 < rj.Y0
		}
		return ri.X0 < rj.X0
	})
	return lines
}

// bound is the covering rectangle of a and b. Unlike layout.Rect.Union it
// keeps degenerate (zero width or height) inputs.
func bound(a, b layout.Rect) layout.Rect {
	return layout.Rect{
		X0: math.Min(a.X0, b.X0),
		Y0: math.Min(a.Y0, b.Y0),
		X1: math.Max(a.X1, b.X1),
		Y1: math.Max(a.Y1, b.Y1),
	}
}
