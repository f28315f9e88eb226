// Package layout holds the geometry and block-level heuristics used to
// decompose a page: classifying raw blocks, grouping text under a size
// budget and finding caption text around visual elements.
//
// Coordinates use a top-left origin with y growing downward.
package layout

import (
	"fmt"
	"math"
)

// Rect is an axis-aligned rectangle. A Rect built with NewRect always
// satisfies X0 <= X1 and Y0 <= Y1.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// NewRect returns the rectangle spanned by two corners in any order.
func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{
		X0: math.Min(x0, x1),
		Y0: math.Min(y0, y1),
		X1: math.Max(x0, x1),
		Y1: math.Max(y0, y1),
	}
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// CenterY returns the vertical midpoint.
func (r Rect) CenterY() float64 { return (r.Y0 + r.Y1) / 2 }

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool {
	return r.X1 <= r.X0 || r.Y1 <= r.Y0
}

// Intersects reports whether r and o share any point. Touching edges count
// as intersecting; an empty rectangle intersects nothing.
func (r Rect) Intersects(o Rect) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.X0 <= o.X1 && o.X0 <= r.X1 && r.Y0 <= o.Y1 && o.Y0 <= r.Y1
}

// Contains reports whether the point lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// Union returns the smallest rectangle covering r and o.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// HorizontalOverlap returns the length of the shared x-range, never negative.
func (r Rect) HorizontalOverlap(o Rect) float64 {
	return math.Max(0, math.Min(r.X1, o.X1)-math.Max(r.X0, o.X0))
}

// VerticalDistance is the smaller of the two edge gaps between r and o:
// r's bottom to o's top, and r's top to o's bottom.
func (r Rect) VerticalDistance(o Rect) float64 {
	return math.Min(math.Abs(r.Y1-o.Y0), math.Abs(r.Y0-o.Y1))
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.1f %.1f %.1f %.1f]", r.X0, r.Y0, r.X1, r.Y1)
}
