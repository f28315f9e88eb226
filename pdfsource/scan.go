package pdfsource

import (
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/mmingest/layout"
)

// Form XObjects may nest; deeper nesting is ignored.
const maxFormDepth = 8

// segment is a stroked straight line in page space.
type segment struct {
	X0, Y0, X1, Y1 float64
}

func (s segment) horizontal(tol float64) bool { return math.Abs(s.Y1-s.Y0) <= tol }
func (s segment) vertical(tol float64) bool   { return math.Abs(s.X1-s.X0) <= tol }

func (s segment) length() float64 {
	return math.Hypot(s.X1-s.X0, s.Y1-s.Y0)
}

// placement is one drawing of an image XObject.
type placement struct {
	Name string
	Rect layout.Rect
	XObj pdf.Value
}

// char is a single glyph run reported by the text extractor, in page space.
type char struct {
	Rect     layout.Rect
	S        string
	FontSize float64
}

// pageScan is everything extracted from one pass over a page.
type pageScan struct {
	Segments   []segment
	Fills      []layout.Rect
	Drawings   []layout.Rect
	Placements []placement
	Chars      []char
}

type point struct {
	X, Y  float64
	Curve bool
}

type subpath struct {
	Points []point
	Closed bool
	Rect   bool
}

type gstate struct {
	CTM matrix
}

type interpreter struct {
	page  *Page
	out   *pageScan
	gs    gstate
	saved []gstate
	path  []subpath
}

// scanPage interprets the page content stream for vector graphics and image
// placements and collects text runs. A panic in the PDF library is
// converted into an error for this page only.
func scanPage(p *Page) (scan *pageScan, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			scan, err = nil, fmt.Errorf("%w: scanning page %d: %v", ErrMalformed, p.index, rec)
		}
	}()

	out := &pageScan{}
	in := &interpreter{page: p, out: out, gs: gstate{CTM: identity}}
	in.run(p.page.V.Key("Contents"), p.page.Resources(), 0)

	out.Chars = p.chars()
	return out, nil
}

func (in *interpreter) run(contents, resources pdf.Value, depth int) {
	switch contents.Kind() {
	case pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			in.run(contents.Index(i), resources, depth)
		}
	case pdf.Stream:
		pdf.Interpret(contents, func(stk *pdf.Stack, op string) {
			in.op(stk, op, resources, depth)
			for stk.Len() > 0 {
				stk.Pop()
			}
		})
	}
}

// pop returns the top n operands as numbers in source order.
func pop(stk *pdf.Stack, n int) ([]float64, bool) {
	if stk.Len() < n {
		return nil, false
	}
	args := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = stk.Pop().Float64()
	}
	return args, true
}

func (in *interpreter) op(stk *pdf.Stack, op string, resources pdf.Value, depth int) {
	switch op {
	case "q":
		in.saved = append(in.saved, in.gs)
	case "Q":
		if n := len(in.saved); n > 0 {
			in.gs = in.saved[n-1]
			in.saved = in.saved[:n-1]
		}
	case "cm":
		if a, ok := pop(stk, 6); ok {
			in.gs.CTM = matrix{a[0], a[1], a[2], a[3], a[4], a[5]}.mul(in.gs.CTM)
		}

	case "m":
		if a, ok := pop(stk, 2); ok {
			in.path = append(in.path, subpath{Points: []point{in.point(a[0], a[1], false)}})
		}
	case "l":
		if a, ok := pop(stk, 2); ok {
			in.lineTo(in.point(a[0], a[1], false))
		}
	case "c":
		if a, ok := pop(stk, 6); ok {
			in.lineTo(in.point(a[4], a[5], true))
		}
	case "v", "y":
		if a, ok := pop(stk, 4); ok {
			in.lineTo(in.point(a[2], a[3], true))
		}
	case "h":
		if n := len(in.path); n > 0 {
			in.path[n-1].Closed = true
		}
	case "re":
		if a, ok := pop(stk, 4); ok {
			x, y, w, h := a[0], a[1], a[2], a[3]
			in.path = append(in.path, subpath{
				Points: []point{
					in.point(x, y, false),
					in.point(x+w, y, false),
					in.point(x+w, y+h, false),
					in.point(x, y+h, false),
				},
				Closed: true,
				Rect:   true,
			})
		}

	case "S", "s":
		if op == "s" {
			in.closeLast()
		}
		in.paint(true, false)
	case "f", "F", "f*":
		in.paint(false, true)
	case "B", "B*":
		in.paint(true, true)
	case "b", "b*":
		in.closeLast()
		in.paint(true, true)
	case "n":
		in.path = nil

	case "Do":
		if stk.Len() < 1 {
			return
		}
		name := stk.Pop().Name()
		in.doXObject(name, resources, depth)
	}
}

func (in *interpreter) point(x, y float64, curve bool) point {
	dx, dy := in.gs.CTM.apply(x, y)
	tx, ty := in.page.toTop(dx, dy)
	return point{X: tx, Y: ty, Curve: curve}
}

func (in *interpreter) lineTo(pt point) {
	n := len(in.path)
	if n == 0 {
		in.path = append(in.path, subpath{Points: []point{pt}})
		return
	}
	in.path[n-1].Points = append(in.path[n-1].Points, pt)
}

func (in *interpreter) closeLast() {
	if n := len(in.path); n > 0 {
		in.path[n-1].Closed = true
	}
}

// paint flushes the current path into the scan: straight stroked edges
// become segments, filled axis-aligned rectangles become fills, and the
// whole path contributes a drawing bounding box.
func (in *interpreter) paint(stroke, fill bool) {
	var bbox layout.Rect
	first := true

	for _, sp := range in.path {
		pts := sp.Points
		for _, pt := range pts {
			r := layout.Rect{X0: pt.X, Y0: pt.Y, X1: pt.X, Y1: pt.Y}
			if first {
				bbox = r
				first = false
				continue
			}
			bbox = bound(bbox, r)
		}

		if stroke {
			for i := 1; i < len(pts); i++ {
				if pts[i].Curve {
					continue
				}
				in.out.Segments = append(in.out.Segments, segment{pts[i-1].X, pts[i-1].Y, pts[i].X, pts[i].Y})
			}
			if sp.Closed && len(pts) > 2 {
				last := pts[len(pts)-1]
				in.out.Segments = append(in.out.Segments, segment{last.X, last.Y, pts[0].X, pts[0].Y})
			}
		}
		if fill && sp.Rect {
			r := layout.NewRect(pts[0].X, pts[0].Y, pts[2].X, pts[2].Y)
			if axisAligned(pts) {
				in.out.Fills = append(in.out.Fills, r)
			}
		}
	}

	if !first {
		in.out.Drawings = append(in.out.Drawings, bbox)
	}
	in.path = nil
}

func axisAligned(pts []point) bool {
	const tol = 0.01
	return math.Abs(pts[0].Y-pts[1].Y) < tol && math.Abs(pts[1].X-pts[2].X) < tol ||
		math.Abs(pts[0].X-pts[1].X) < tol && math.Abs(pts[1].Y-pts[2].Y) < tol
}

func (in *interpreter) doXObject(name string, resources pdf.Value, depth int) {
	xobj := resources.Key("XObject").Key(name)
	if xobj.IsNull() {
		return
	}

	switch xobj.Key("Subtype").Name() {
	case "Image":
		var rect layout.Rect
		for i, c := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
			pt := in.point(c[0], c[1], false)
			if i == 0 {
				rect = layout.Rect{X0: pt.X, Y0: pt.Y, X1: pt.X, Y1: pt.Y}
				continue
			}
			rect = bound(rect, layout.Rect{X0: pt.X, Y0: pt.Y, X1: pt.X, Y1: pt.Y})
		}
		in.out.Placements = append(in.out.Placements, placement{Name: name, Rect: rect, XObj: xobj})

	case "Form":
		if depth >= maxFormDepth {
			return
		}
		saved := in.gs
		if m := xobj.Key("Matrix"); m.Kind() == pdf.Array && m.Len() == 6 {
			var fm matrix
			for i := range fm {
				fm[i] = m.Index(i).Float64()
			}
			in.gs.CTM = fm.mul(in.gs.CTM)
		}
		res := xobj.Key("Resources")
		if res.IsNull() {
			res = resources
		}
		path := in.path
		in.path = nil
		in.run(xobj, res, depth+1)
		in.path = path
		in.gs = saved
	}
}

// chars converts the library's text runs into page-space glyph boxes. The
// library reports the baseline origin; the box spans from 0.2em below to
// 0.8em above it.
func (p *Page) chars() []char {
	content := p.page.Content()
	out := make([]char, 0, len(content.Text))
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		x0, top := p.toTop(t.X, t.Y+0.8*size)
		x1, bottom := p.toTop(t.X+t.W, t.Y-0.2*size)
		out = append(out, char{
			Rect:     layout.NewRect(x0, top, x1, bottom),
			S:        t.S,
			FontSize: size,
		})
	}
	return out
}
