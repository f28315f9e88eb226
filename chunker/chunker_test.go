package chunker

import (
	"strings"
	"testing"

	"github.com/brunobiangulo/mmingest/record"
)

// ---------------------------------------------------------------------------
// Core chunker tests
// ---------------------------------------------------------------------------

func textRecord(doc string, block int, text string) record.Record {
	return record.Record{
		Text:   text,
		Source: record.SourceID{Document: doc, Element: record.ElementBlock, Ordinal: block},
		Detail: record.TextDetail{},
	}
}

func TestSplitShortRecord(t *testing.T) {
	c := New(Config{})
	nodes := c.Split([]record.Record{textRecord("doc", 1, "  A short paragraph.  ")})

	if len(nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(nodes))
	}
	n := nodes[0]
	if n.Text != "A short paragraph." {
		t.Errorf("Text = %q", n.Text)
	}
	if n.ID != "doc-page0-block1#0" {
		t.Errorf("ID = %q", n.ID)
	}
	if n.Record.Source != n.Source {
		t.Error("node lost its record")
	}
	if n.ContentHash == "" || n.TokenCount <= 0 {
		t.Errorf("node = %+v", n)
	}
}

func TestSplitLongRecord(t *testing.T) {
	c := New(Config{MaxTokens: 10, Overlap: 2})

	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("This is paragraph number. ")
	}
	nodes := c.Split([]record.Record{textRecord("doc", 1, sb.String())})

	if len(nodes) < 2 {
		t.Fatalf("expected multiple nodes, got %d", len(nodes))
	}
	for i, n := range nodes {
		if n.Index != i {
			t.Errorf("nodes[%d].Index = %d", i, n.Index)
		}
		if strings.TrimSpace(n.Text) == "" {
			t.Errorf("nodes[%d] is empty", i)
		}
	}
}

func TestSplitSkipsBlankRecords(t *testing.T) {
	c := New(Config{})
	nodes := c.Split([]record.Record{
		textRecord("doc", 1, " \n "),
		textRecord("doc", 2, "kept"),
	})
	if len(nodes) != 1 || nodes[0].Source.Ordinal != 2 {
		t.Fatalf("nodes = %+v", nodes)
	}
}

func TestSplitKeepsRecordOrder(t *testing.T) {
	c := New(Config{})
	nodes := c.Split([]record.Record{
		textRecord("a", 1, "first"),
		textRecord("a", 2, "second"),
		textRecord("b", 1, "third"),
	})
	var got []string
	for _, n := range nodes {
		got = append(got, n.Text)
	}
	if strings.Join(got, ",") != "first,second,third" {
		t.Errorf("order = %v", got)
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	if c.cfg.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", c.cfg.MaxTokens, DefaultMaxTokens)
	}
	if c.cfg.Overlap != DefaultOverlap {
		t.Errorf("Overlap = %d, want %d", c.cfg.Overlap, DefaultOverlap)
	}

	c = New(Config{MaxTokens: 40, Overlap: 100})
	if c.cfg.Overlap != 10 {
		t.Errorf("Overlap = %d, want 10 when exceeding MaxTokens", c.cfg.Overlap)
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 2},
		{"one two three", 4},
		{"a b c d e f g h i j", 13},
	}
	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First one. Second? Third! v1.2 stays")
	want := []string{"First one.", "Second?", "Third!", "v1.2 stays"}
	if len(got) != len(want) {
		t.Fatalf("sentences = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractOverlap(t *testing.T) {
	if got := extractOverlap("a b c d e f", 4); got != "d e f" {
		t.Errorf("extractOverlap = %q, want %q", got, "d e f")
	}
	if got := extractOverlap("", 4); got != "" {
		t.Errorf("extractOverlap(empty) = %q", got)
	}
}

func TestContentHash(t *testing.T) {
	if contentHash("x") == contentHash("y") {
		t.Error("different text hashed equal")
	}
	if len(contentHash("x")) != 64 {
		t.Errorf("hash length = %d", len(contentHash("x")))
	}
}
