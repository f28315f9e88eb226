package pdfsource

import (
	"math"
	"sort"

	"github.com/brunobiangulo/mmingest/layout"
)

// Strategy selects which vector graphics define table boundaries.
type Strategy int

const (
	// LinesStrict uses stroked ruling lines and line-thin filled bars only.
	LinesStrict Strategy = iota
	// Lines additionally treats the edges of every filled rectangle as rules.
	Lines
)

// Table is a ruled table found on a page. Rows holds cell text with the
// header first; every row has the same number of columns.
type Table struct {
	Rect layout.Rect
	Rows [][]string
}

// Grid detection tuning, in points.
const (
	snapTolerance = 3.0
	joinTolerance = 3.0
	minEdgeLength = 3.0
	thinBarMax    = 2.0
	axisTolerance = 1.0
)

// edge is an axis-aligned rule: Pos is Y for horizontal edges and X for
// vertical ones, [Min, Max] the extent along the other axis.
type edge struct {
	Horizontal bool
	Pos        float64
	Min, Max   float64
}

// FindTables detects ruled tables. Grids are built from rule intersections
// so several tables on one page are reported separately, top to bottom.
func (p *Page) FindTables(strategy Strategy) ([]Table, error) {
	scan, err := p.content()
	if err != nil {
		return nil, err
	}

	edges := collectEdges(scan, strategy)
	hs, vs := mergeEdges(edges)
	if len(hs) < 2 || len(vs) < 2 {
		return nil, nil
	}

	var tables []Table
	for _, comp := range components(hs, vs) {
		t, ok := buildTable(comp.h, comp.v, scan.Chars)
		if ok {
			tables = append(tables, t)
		}
	}
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].Rect.Y0 != tables[j].Rect.Y0 {
			return tables[i].Rect.Y0 < tables[j].Rect.Y0
		}
		return tables[i].Rect.X0 < tables[j].Rect.X0
	})
	return tables, nil
}

func collectEdges(scan *pageScan, strategy Strategy) []edge {
	var edges []edge
	for _, s := range scan.Segments {
		if s.length() < minEdgeLength {
			continue
		}
		switch {
		case s.horizontal(axisTolerance):
			edges = append(edges, edge{Horizontal: true, Pos: (s.Y0 + s.Y1) / 2, Min: math.Min(s.X0, s.X1), Max: math.Max(s.X0, s.X1)})
		case s.vertical(axisTolerance):
			edges = append(edges, edge{Pos: (s.X0 + s.X1) / 2, Min: math.Min(s.Y0, s.Y1), Max: math.Max(s.Y0, s.Y1)})
		}
	}

	for _, r := range scan.Fills {
		w, h := r.Width(), r.Height()
		switch {
		case h <= thinBarMax && w >= minEdgeLength:
			edges = append(edges, edge{Horizontal: true, Pos: r.CenterY(), Min: r.X0, Max: r.X1})
		case w <= thinBarMax && h >= minEdgeLength:
			edges = append(edges, edge{Pos: (r.X0 + r.X1) / 2, Min: r.Y0, Max: r.Y1})
		case strategy == Lines:
			edges = append(edges,
				edge{Horizontal: true, Pos: r.Y0, Min: r.X0, Max: r.X1},
				edge{Horizontal: true, Pos: r.Y1, Min: r.X0, Max: r.X1},
				edge{Pos: r.X0, Min: r.Y0, Max: r.Y1},
				edge{Pos: r.X1, Min: r.Y0, Max: r.Y1},
			)
		}
	}
	return edges
}

// mergeEdges snaps edges with nearly equal positions together and joins
// collinear pieces that touch.
func mergeEdges(edges []edge) (hs, vs []edge) {
	for _, e := range edges {
		if e.Horizontal {
			hs = append(hs, e)
		} else {
			vs = append(vs, e)
		}
	}
	return joinCollinear(snap(hs)), joinCollinear(snap(vs))
}

func snap(edges []edge) []edge {
	if len(edges) == 0 {
		return nil
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Pos < edges[j].Pos })

	out := make([]edge, len(edges))
	copy(out, edges)

	start := 0
	for i := 1; i <= len(out); i++ {
		if i < len(out) && out[i].Pos-out[start].Pos <= snapTolerance {
			continue
		}
		sum := 0.0
		for _, e := range out[start:i] {
			sum += e.Pos
		}
		avg := sum / float64(i-start)
		for k := start; k < i; k++ {
			out[k].Pos = avg
		}
		start = i
	}
	return out
}

func joinCollinear(edges []edge) []edge {
	if len(edges) == 0 {
		return nil
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Pos != edges[j].Pos {
			return edges[i].Pos < edges[j].Pos
		}
		return edges[i].Min < edges[j].Min
	})

	out := []edge{edges[0]}
	for _, e := range edges[1:] {
		last := &out[len(out)-1]
		if e.Pos == last.Pos && e.Min <= last.Max+joinTolerance {
			last.Max = math.Max(last.Max, e.Max)
			continue
		}
		out = append(out, e)
	}
	return out
}

func crosses(h, v edge) bool {
	return v.Pos >= h.Min-snapTolerance && v.Pos <= h.Max+snapTolerance &&
		h.Pos >= v.Min-snapTolerance && h.Pos <= v.Max+snapTolerance
}

type component struct {
	h, v []edge
}

// components partitions edges into groups connected by intersections.
func components(hs, vs []edge) []component {
	parent := make([]int, len(hs)+len(vs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		if ra, rb := find(a), find(b); ra != rb {
			parent[ra] = rb
		}
	}

	for i, h := range hs {
		for j, v := range vs {
			if crosses(h, v) {
				union(i, len(hs)+j)
			}
		}
	}

	groups := map[int]*component{}
	var order []int
	for i, h := range hs {
		r := find(i)
		if groups[r] == nil {
			groups[r] = &component{}
			order = append(order, r)
		}
		groups[r].h = append(groups[r].h, h)
	}
	for j, v := range vs {
		r := find(len(hs) + j)
		if groups[r] == nil {
			groups[r] = &component{}
			order = append(order, r)
		}
		groups[r].v = append(groups[r].v, v)
	}

	out := make([]component, 0, len(order))
	for _, r := range order {
		out = append(out, *groups[r])
	}
	return out
}

func positions(edges []edge) []float64 {
	var out []float64
	for _, e := range edges {
		if n := len(out); n > 0 && e.Pos-out[n-1] <= snapTolerance {
			continue
		}
		out = append(out, e.Pos)
	}
	return out
}

func buildTable(hs, vs []edge, chars []char) (Table, bool) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Pos < hs[j].Pos })
	sort.Slice(vs, func(i, j int) bool { return vs[i].Pos < vs[j].Pos })

	ys := positions(hs)
	xs := positions(vs)
	if len(ys) < 2 || len(xs) < 2 {
		return Table{}, false
	}
	rows, cols := len(ys)-1, len(xs)-1
	if rows*cols < 2 {
		return Table{}, false
	}

	t := Table{
		Rect: layout.NewRect(xs[0], ys[0], xs[len(xs)-1], ys[len(ys)-1]),
		Rows: make([][]string, rows),
	}
	for i := 0; i < rows; i++ {
		t.Rows[i] = make([]string, cols)
		for j := 0; j < cols; j++ {
			t.Rows[i][j] = textIn(chars, layout.NewRect(xs[j], ys[i], xs[j+1], ys[i+1]))
		}
	}
	return t, true
}
