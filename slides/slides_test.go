package slides

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/mmingest/artifact"
	"github.com/brunobiangulo/mmingest/internal/pdftest"
	"github.com/brunobiangulo/mmingest/record"
)

const (
	nsP = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
	nsR = `xmlns="http://schemas.openxmlformats.org/package/2006/relationships"`
)

func slidePart(texts ...string) string {
	var sps strings.Builder
	for _, t := range texts {
		fmt.Fprintf(&sps, `<p:sp><p:nvSpPr><p:nvPr/></p:nvSpPr><p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody></p:sp>`, t)
	}
	// A picture shape carries no text.
	sps.WriteString(`<p:pic/>`)
	return fmt.Sprintf(`<?xml version="1.0"?><p:sld %s><p:cSld><p:spTree>%s</p:spTree></p:cSld></p:sld>`, nsP, sps.String())
}

func notesPart(text string) string {
	return fmt.Sprintf(`<?xml version="1.0"?><p:notes %s><p:cSld><p:spTree>`+
		`<p:sp><p:nvSpPr><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr></p:sp>`+
		`<p:sp><p:nvSpPr><p:nvPr><p:ph type="body"/></p:nvPr></p:nvSpPr><p:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></p:txBody></p:sp>`+
		`</p:spTree></p:cSld></p:notes>`, nsP, text)
}

// writeDeck writes a PPTX whose presentation order is the reverse of the
// slide part numbering, so ordering by file name would be wrong.
func writeDeck(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "quarterly.pptx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	add := func(name, body string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}

	add("ppt/presentation.xml", fmt.Sprintf(`<?xml version="1.0"?><p:presentation %s><p:sldIdLst>`+
		`<p:sldId id="256" r:id="rId3"/><p:sldId id="257" r:id="rId2"/><p:sldId id="258" r:id="rId1"/>`+
		`</p:sldIdLst></p:presentation>`, nsP))
	add("ppt/_rels/presentation.xml.rels", fmt.Sprintf(`<?xml version="1.0"?><Relationships %s>`+
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide1.xml"/>`+
		`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide2.xml"/>`+
		`<Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide3.xml"/>`+
		`</Relationships>`, nsR))

	add("ppt/slides/slide3.xml", slidePart("Welcome", "Agenda"))
	add("ppt/slides/slide2.xml", slidePart("Revenue chart"))
	add("ppt/slides/slide1.xml", slidePart("Thanks"))

	add("ppt/slides/_rels/slide3.xml.rels", fmt.Sprintf(`<?xml version="1.0"?><Relationships %s>`+
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide" Target="../notesSlides/notesSlide1.xml"/>`+
		`</Relationships>`, nsR))
	add("ppt/notesSlides/notesSlide1.xml", notesPart(" greet everyone"))

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadDeck(t *testing.T) {
	deck, err := ReadDeck(writeDeck(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	want := []Slide{
		{Number: 1, Text: "Welcome Agenda", Notes: "greet everyone"},
		{Number: 2, Text: "Revenue chart"},
		{Number: 3, Text: "Thanks"},
	}
	if len(deck) != len(want) {
		t.Fatalf("slides = %d, want %d", len(deck), len(want))
	}
	for i := range want {
		if deck[i] != want[i] {
			t.Errorf("slide %d = %+v, want %+v", i, deck[i], want[i])
		}
	}
}

func TestReadDeckNotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pptx")
	os.WriteFile(path, []byte("nope"), 0o644)
	if _, err := ReadDeck(path); err == nil {
		t.Fatal("expected error")
	}
}

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

type fakeConverter struct {
	calls []string
	err   error
}

func (c *fakeConverter) Convert(_ context.Context, src, outDir, format string) (string, error) {
	c.calls = append(c.calls, format)
	return filepath.Join(outDir, "deck."+format), c.err
}

type fakeEngine struct {
	charts int
}

func (e *fakeEngine) Describe(context.Context, []byte) (string, error) { return "", nil }
func (e *fakeEngine) IsGraph(context.Context, []byte) (bool, error)    { return false, nil }

func (e *fakeEngine) ChartToDescription(context.Context, []byte) (string, error) {
	e.charts++
	return " [explained]", nil
}

func fixedPages(n int) Renderer {
	return func(context.Context, string) ([]image.Image, error) {
		pages := make([]image.Image, n)
		for i := range pages {
			pages[i] = image.NewRGBA(image.Rect(0, 0, 8+i, 6))
		}
		return pages, nil
	}
}

func TestAssemblerThreeSlides(t *testing.T) {
	dir := t.TempDir()
	sink, err := artifact.NewDir(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatal(err)
	}
	engine := &fakeEngine{}
	a := &Assembler{
		Converter: &fakeConverter{},
		Render:    fixedPages(3),
		Engine:    engine,
		Sink:      sink,
		WorkDir:   filepath.Join(dir, "work"),
	}

	recs, err := a.Process(context.Background(), writeDeck(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}

	wantText := []string{
		"This is a slide with text: Welcome Agenda",
		"This is a slide with text: Revenue chart [explained]",
		"This is a slide with text: Thanks",
	}
	for i, r := range recs {
		if r.Kind() != record.KindImage {
			t.Errorf("record %d kind = %s, want image", i, r.Kind())
		}
		if r.Text != wantText[i] {
			t.Errorf("record %d text = %q, want %q", i, r.Text, wantText[i])
		}
		if want := fmt.Sprintf("quarterly-page%d-slide%d", i, i+1); r.Source.String() != want {
			t.Errorf("record %d source = %s, want %s", i, r.Source, want)
		}
		d := r.Detail.(record.SlideDetail)
		if want := fmt.Sprintf("slide%d-page%d.png", i, i); filepath.Base(d.ImagePath) != want {
			t.Errorf("record %d image = %s, want %s", i, d.ImagePath, want)
		}
		if _, err := os.Stat(d.ImagePath); err != nil {
			t.Errorf("record %d image not written: %v", i, err)
		}
	}

	if got := recs[0].Caption(); got != "Welcome Agendagreet everyone" {
		t.Errorf("caption = %q", got)
	}
	if engine.charts != 1 {
		t.Errorf("chart descriptions = %d, want 1", engine.charts)
	}
}

func TestAssemblerPairsCommonPrefix(t *testing.T) {
	dir := t.TempDir()
	a := &Assembler{
		Converter: &fakeConverter{},
		Render:    fixedPages(2),
		Engine:    &fakeEngine{},
		Sink:      artifact.Discard{},
	}
	recs, err := a.Process(context.Background(), writeDeck(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
}

func TestAssemblerConvertsLegacyDeck(t *testing.T) {
	dir := t.TempDir()
	pptx := writeDeck(t, dir)
	conv := &fakeConverter{}
	legacy := filepath.Join(dir, "old.ppt")
	if err := os.WriteFile(legacy, []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}
	// The fake converter reports its output as work/deck.pptx.
	work := filepath.Join(dir, "work")
	os.MkdirAll(work, 0o755)
	data, _ := os.ReadFile(pptx)
	os.WriteFile(filepath.Join(work, "deck.pptx"), data, 0o644)

	a := &Assembler{Converter: conv, Render: fixedPages(3), Engine: &fakeEngine{}, Sink: artifact.Discard{}, WorkDir: work}
	recs, err := a.Process(context.Background(), legacy)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || recs[0].Source.Document != "old" {
		t.Fatalf("records = %+v", recs)
	}
	if strings.Join(conv.calls, ",") != "pdf,pptx" {
		t.Errorf("conversions = %v, want [pdf pptx]", conv.calls)
	}
}

func TestAssemblerConverterFailure(t *testing.T) {
	a := &Assembler{
		Converter: &fakeConverter{err: errors.New("libreoffice missing")},
		Render:    fixedPages(1),
		Engine:    &fakeEngine{},
		Sink:      artifact.Discard{},
	}
	if _, err := a.Process(context.Background(), "deck.pptx"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRenderPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pdf")
	data := pdftest.Build(
		pdftest.Page{Width: 400, Height: 300, Content: pdftest.Text(20, 150, 12, "one")},
		pdftest.Page{Width: 400, Height: 300, Content: pdftest.Text(20, 150, 12, "two")},
	)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	pages, err := RenderPDF(1)(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	if b := pages[0].Bounds(); b.Dx() != 400 || b.Dy() != 300 {
		t.Errorf("page size = %v, want 400x300", b)
	}
}
