package layout

// DefaultContextThreshold is the fraction of page height (vertically) and
// target width (horizontally) used as the caption search window.
const DefaultContextThreshold = 0.1

// TextAround returns the text of the nearest block above target (before)
// and the nearest block below it (after), scanning blocks in order.
//
// A block qualifies when its vertical gap to target is within
// pageHeight*pct and its horizontal overlap is at least -target.Width()*pct.
// Overlap is never negative, so the horizontal test admits every block.
// Scanning stops at the first qualifying block below the target.
func TextAround(target Rect, pageHeight float64, blocks []Block, pct float64) (before, after string) {
	if pct <= 0 {
		pct = DefaultContextThreshold
	}
	verticalThresh := pageHeight * pct
	horizThresh := target.Width() * pct

	for _, b := range blocks {
		dist := b.Rect.VerticalDistance(target)
		overlap := b.Rect.HorizontalOverlap(target)
		if dist > verticalThresh || overlap < -horizThresh {
			continue
		}
		if b.Rect.Y1 < target.Y0 {
			if before == "" {
				before = b.Text
			}
		} else if b.Rect.Y0 > target.Y1 {
			if after == "" {
				after = b.Text
				break
			}
		}
	}
	return before, after
}
