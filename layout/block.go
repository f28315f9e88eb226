package layout

// Kind tags a raw block found while scanning a page.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindDrawing
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindDrawing:
		return "drawing"
	default:
		return "unknown"
	}
}

// Block is a primitive unit detected on a page. Text is only set for
// KindText blocks.
type Block struct {
	Kind Kind   `json:"kind"`
	Rect Rect   `json:"rect"`
	Text string `json:"text,omitempty"`
}

// Body band of the page; blocks centred outside it are treated as running
// headers and footers.
const (
	bodyTop    = 0.1
	bodyBottom = 0.9
)

// TextBlocks keeps the text blocks whose vertical centre lies strictly
// inside 10%..90% of the page height. Order is preserved. A page without
// qualifying blocks yields an empty (nil) slice.
func TextBlocks(blocks []Block, pageHeight float64) []Block {
	if pageHeight <= 0 {
		return nil
	}
	var out []Block
	for _, b := range blocks {
		if b.Kind != KindText {
			continue
		}
		rel := b.Rect.CenterY() / pageHeight
		if rel > bodyTop && rel < bodyBottom {
			out = append(out, b)
		}
	}
	return out
}
