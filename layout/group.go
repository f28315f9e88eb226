package layout

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// DefaultGroupChars is the default character budget of a text group.
const DefaultGroupChars = 500

// Group is a run of consecutive text blocks merged under a character budget.
// Anchor is the first block and positions the whole group.
type Group struct {
	Anchor  Block
	Content string
	Blocks  []Block
}

// GroupText merges consecutive text blocks greedily: a block joins the
// current group while the cumulative character count stays within
// maxChars, otherwise the group is emitted and a new one starts with that
// block. A block longer than maxChars on its own still forms a group.
//
// The sequence yields (anchor, content) pairs in source order and can be
// ranged over any number of times. maxChars <= 0 selects DefaultGroupChars.
func GroupText(blocks []Block, maxChars int) iter.Seq2[Block, string] {
	if maxChars <= 0 {
		maxChars = DefaultGroupChars
	}
	return func(yield func(Block, string) bool) {
		for g := range groups(blocks, maxChars) {
			if !yield(g.Anchor, g.Content) {
				return
			}
		}
	}
}

// Groups collects GroupText into a slice, keeping the member blocks.
func Groups(blocks []Block, maxChars int) []Group {
	if maxChars <= 0 {
		maxChars = DefaultGroupChars
	}
	var out []Group
	for g := range groups(blocks, maxChars) {
		out = append(out, g)
	}
	return out
}

func groups(blocks []Block, maxChars int) iter.Seq[Group] {
	return func(yield func(Group) bool) {
		var current []Block
		count := 0

		flush := func() bool {
			if len(current) == 0 {
				return true
			}
			g := Group{Anchor: current[0], Content: joinTexts(current), Blocks: current}
			current = nil
			return yield(g)
		}

		for _, b := range blocks {
			if b.Kind != KindText {
				continue
			}
			n := utf8.RuneCountInString(b.Text)
			if count+n <= maxChars {
				current = append(current, b)
				count += n
				continue
			}
			if !flush() {
				return
			}
			current = []Block{b}
			count = n
		}
		flush()
	}
}

func joinTexts(blocks []Block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, "\n")
}
