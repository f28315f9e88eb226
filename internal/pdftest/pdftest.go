// Package pdftest writes small, valid PDF files for tests. Coordinates
// passed to the content helpers are PDF user space (origin bottom-left).
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Page describes one page to generate.
type Page struct {
	Width, Height float64
	Content       string
	Images        []Image
}

// Image is an uncompressed 8-bit DeviceRGB image XObject.
type Image struct {
	Name          string
	Width, Height int
	RGB           []byte
}

// Solid returns an image filled with one colour.
func Solid(name string, w, h int, r, g, b byte) Image {
	px := make([]byte, 0, w*h*3)
	for i := 0; i < w*h; i++ {
		px = append(px, r, g, b)
	}
	return Image{Name: name, Width: w, Height: h, RGB: px}
}

// Text draws s at (x, y) in Helvetica.
func Text(x, y, size float64, s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return fmt.Sprintf("BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, x, y, r.Replace(s))
}

// Rule strokes a straight line.
func Rule(x0, y0, x1, y1 float64) string {
	return fmt.Sprintf("%g %g m %g %g l S\n", x0, y0, x1, y1)
}

// Box strokes a rectangle.
func Box(x, y, w, h float64) string {
	return fmt.Sprintf("%g %g %g %g re S\n", x, y, w, h)
}

// Grid strokes a ruled table with the given row and column boundaries.
func Grid(xs, ys []float64) string {
	var b strings.Builder
	for _, y := range ys {
		b.WriteString(Rule(xs[0], y, xs[len(xs)-1], y))
	}
	for _, x := range xs {
		b.WriteString(Rule(x, ys[0], x, ys[len(ys)-1]))
	}
	return b.String()
}

// Place draws the named image XObject into the given rectangle.
func Place(name string, x, y, w, h float64) string {
	return fmt.Sprintf("q %g 0 0 %g %g %g cm /%s Do Q\n", w, h, x, y, name)
}

// Build assembles a PDF with a shared Helvetica font.
func Build(pages ...Page) []byte {
	var objs []string

	add := func(body string) int {
		objs = append(objs, body)
		return len(objs)
	}

	catalog := add("")
	pagesObj := add("")
	widths := strings.TrimSpace(strings.Repeat("500 ", 95))
	font := add(fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", widths))

	var kids []string
	for _, pg := range pages {
		var xobjs []string
		for _, im := range pg.Images {
			id := add(stream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8", im.Width, im.Height), im.RGB))
			xobjs = append(xobjs, fmt.Sprintf("/%s %d 0 R", im.Name, id))
		}
		content := add(stream("", []byte(pg.Content)))

		res := fmt.Sprintf("/Font << /F1 %d 0 R >>", font)
		if len(xobjs) > 0 {
			res += " /XObject << " + strings.Join(xobjs, " ") + " >>"
		}
		w, h := pg.Width, pg.Height
		if w == 0 || h == 0 {
			w, h = 612, 792
		}
		page := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g] /Resources << %s >> /Contents %d 0 R >>", pagesObj, w, h, res, content))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}

	objs[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objs[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, catalog, xref)
	return buf.Bytes()
}

func stream(dict string, data []byte) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}
