package decompose

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"testing"

	"github.com/brunobiangulo/mmingest/artifact"
	"github.com/brunobiangulo/mmingest/internal/pdftest"
	"github.com/brunobiangulo/mmingest/layout"
	"github.com/brunobiangulo/mmingest/pdfsource"
	"github.com/brunobiangulo/mmingest/record"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakePage struct {
	index         int
	width, height float64
	blocks        []layout.Block
	tables        []pdfsource.Table
	tablesErr     error
	images        []pdfsource.ImageRef
}

func (p *fakePage) Index() int                      { return p.index }
func (p *fakePage) Width() float64                  { return p.width }
func (p *fakePage) Height() float64                 { return p.height }
func (p *fakePage) Blocks() ([]layout.Block, error) { return p.blocks, nil }

func (p *fakePage) FindTables(pdfsource.Strategy) ([]pdfsource.Table, error) {
	return p.tables, p.tablesErr
}

func (p *fakePage) Images() ([]pdfsource.ImageRef, error) { return p.images, nil }

func (p *fakePage) ImageData(ref pdfsource.ImageRef) (pdfsource.Image, error) {
	return pdfsource.Image{Data: []byte("img-" + ref.Name), Format: "png"}, nil
}

func (p *fakePage) Render(clip layout.Rect, scale float64) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

type fakeDoc struct {
	pages []*fakePage
}

func (d *fakeDoc) NumPages() int { return len(d.pages) }
func (d *fakeDoc) Close() error  { return nil }

func (d *fakeDoc) Page(i int) (Page, error) { return d.pages[i], nil }

type fakeEngine struct {
	graph    bool
	chart    string
	err      error
	isGraphN int
	chartN   int
}

func (e *fakeEngine) Describe(context.Context, []byte) (string, error) { return "desc", e.err }

func (e *fakeEngine) IsGraph(context.Context, []byte) (bool, error) {
	e.isGraphN++
	return e.graph, e.err
}

func (e *fakeEngine) ChartToDescription(context.Context, []byte) (string, error) {
	e.chartN++
	if e.err != nil {
		return "", e.err
	}
	return e.chart, nil
}

func assemble(t *testing.T, engine *fakeEngine, opts Options, pages ...*fakePage) ([]record.Record, error) {
	t.Helper()
	a := NewAssembler(engine, artifact.Discard{}, opts)
	a.Open = func(io.ReaderAt, int64) (Document, error) { return &fakeDoc{pages: pages}, nil }
	return a.Process(context.Background(), "report", bytes.NewReader(nil), 0)
}

func textBlock(x0, y0, x1, y1 float64, text string) layout.Block {
	return layout.Block{Kind: layout.KindText, Rect: layout.NewRect(x0, y0, x1, y1), Text: text}
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestSingleParagraph(t *testing.T) {
	page := &fakePage{
		width: 600, height: 800,
		blocks: []layout.Block{textBlock(50, 390, 550, 410, "Hello world.")},
	}
	recs, err := assemble(t, &fakeEngine{}, Options{}, page)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.Kind() != record.KindText {
		t.Errorf("kind = %s", r.Kind())
	}
	if r.Caption() != "" {
		t.Errorf("caption = %q, want empty", r.Caption())
	}
	if r.Source.String() != "report-page0-block1" {
		t.Errorf("source = %s", r.Source)
	}
	if r.Text != "Hello world.\nHello world." {
		t.Errorf("text = %q", r.Text)
	}
}

func TestTableSuppressesOverlappingText(t *testing.T) {
	tableRect := layout.NewRect(50, 300, 550, 400)
	page := &fakePage{
		width: 600, height: 800,
		blocks: []layout.Block{
			textBlock(60, 310, 540, 330, strings.Repeat("a", 400)),
			textBlock(60, 450, 540, 470, strings.Repeat("b", 400)),
		},
		tables: []pdfsource.Table{{Rect: tableRect, Rows: [][]string{{"h"}, {"v"}}}},
	}
	engine := &fakeEngine{chart: " a chart "}
	recs, err := assemble(t, engine, Options{}, page)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}

	tbl := recs[0]
	if tbl.Kind() != record.KindTable {
		t.Fatalf("first record kind = %s, want table", tbl.Kind())
	}
	if tbl.Source.String() != "report-page0-table1" {
		t.Errorf("table source = %s", tbl.Source)
	}
	d := tbl.Detail.(record.TableDetail)
	if d.DataPath != "table_references/table1-page0.xlsx" || d.ImagePath != "table_references/table1-page0.jpg" {
		t.Errorf("paths = %q %q", d.DataPath, d.ImagePath)
	}
	wantCaption := " a chart " + strings.Repeat("b", 400)
	if d.Caption != wantCaption {
		t.Errorf("caption = %q", d.Caption)
	}
	if tbl.Text != "This is a table with caption: "+wantCaption {
		t.Errorf("text = %q", tbl.Text)
	}

	// The suppressed group still consumes block1.
	if got := recs[1].Source.String(); got != "report-page0-block2" {
		t.Errorf("text source = %s, want report-page0-block2", got)
	}
	if engine.chartN != 1 {
		t.Errorf("ChartToDescription calls = %d, want 1", engine.chartN)
	}
}

func TestTableDetectionFailureSkipsTables(t *testing.T) {
	page := &fakePage{
		width: 600, height: 800,
		blocks:    []layout.Block{textBlock(60, 310, 540, 330, "x")},
		tablesErr: errors.New("broken"),
	}
	recs, err := assemble(t, &fakeEngine{}, Options{}, page)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Kind() != record.KindText {
		t.Fatalf("records = %+v, want one text record", recs)
	}
}

// failingSink rejects every write of the given kinds.
type failingSink struct {
	tables, images, bytes bool
}

func (s failingSink) SaveTable(name string, _ [][]string) (string, error) {
	if s.tables {
		return "", errors.New("disk full")
	}
	return name, nil
}

func (s failingSink) SaveImage(name string, _ image.Image) (string, error) {
	if s.images {
		return "", errors.New("disk full")
	}
	return name, nil
}

func (s failingSink) SaveBytes(name string, _ []byte) (string, error) {
	if s.bytes {
		return "", errors.New("disk full")
	}
	return name, nil
}

func TestSinkFailureStaysOnPage(t *testing.T) {
	tableRect := layout.NewRect(50, 300, 550, 400)
	pages := func() []*fakePage {
		return []*fakePage{
			{
				index: 0, width: 600, height: 800,
				blocks: []layout.Block{textBlock(60, 310, 540, 330, "inside table")},
				tables: []pdfsource.Table{{Rect: tableRect, Rows: [][]string{{"h"}, {"v"}}}},
				images: []pdfsource.ImageRef{{Ordinal: 1, Name: "Im1", Rect: layout.NewRect(100, 450, 400, 650)}},
			},
			{index: 1, width: 600, height: 800, blocks: []layout.Block{textBlock(50, 390, 550, 410, "next page")}},
		}
	}

	tests := []struct {
		name string
		sink failingSink
		want []string
	}{
		{"table data", failingSink{tables: true}, []string{"report-page0-image1", "report-page0-block1", "report-page1-block1"}},
		{"table snapshot", failingSink{images: true}, []string{"report-page0-image1", "report-page0-block1", "report-page1-block1"}},
		{"image bytes", failingSink{bytes: true}, []string{"report-page0-table1", "report-page1-block1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := pages()
			a := NewAssembler(&fakeEngine{}, tt.sink, Options{})
			a.Open = func(io.ReaderAt, int64) (Document, error) { return &fakeDoc{pages: ps}, nil }
			recs, err := a.Process(context.Background(), "report", bytes.NewReader(nil), 0)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			var got []string
			for _, r := range recs {
				got = append(got, r.Source.String())
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("records = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSmallImageIgnored(t *testing.T) {
	page := &fakePage{
		width: 600, height: 800,
		images: []pdfsource.ImageRef{
			{Ordinal: 1, Name: "Im1", Rect: layout.NewRect(100, 100, 100+600.0/25, 100+800.0/25)},
		},
	}
	engine := &fakeEngine{}
	recs, err := assemble(t, engine, Options{}, page)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatalf("records = %d, want 0", len(recs))
	}
	if engine.isGraphN != 0 {
		t.Errorf("IsGraph called for an ignored image")
	}
}

func TestImageRecord(t *testing.T) {
	page := &fakePage{
		index: 2, width: 600, height: 800,
		blocks: []layout.Block{
			textBlock(100, 180, 400, 195, "Figure 1:\nrevenue"),
			textBlock(100, 410, 400, 425, "Source: survey"),
		},
		images: []pdfsource.ImageRef{
			{Ordinal: 1, Name: "Im1", Rect: layout.NewRect(10, 10, 12, 12)},
			{Ordinal: 2, Name: "Im2", Rect: layout.NewRect(100, 200, 400, 400)},
		},
	}
	engine := &fakeEngine{graph: true, chart: "[chart]"}
	recs, err := assemble(t, engine, Options{}, page)
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].Kind() != record.KindImage {
		t.Fatalf("first record kind = %s", recs[0].Kind())
	}
	img := recs[0]
	if img.Source.String() != "report-page2-image2" {
		t.Errorf("source = %s", img.Source)
	}
	d := img.Detail.(record.ImageDetail)
	if d.Caption != "Figure 1: revenue[chart]Source: survey" {
		t.Errorf("caption = %q", d.Caption)
	}
	if d.ImagePath != "image_references/image2-page2.png" || !d.Graph {
		t.Errorf("detail = %+v", d)
	}
	if d.Rect == nil || d.Rect.X0 != 100 {
		t.Errorf("rect = %v", d.Rect)
	}
}

func TestDescriptionFailure(t *testing.T) {
	page := func() *fakePage {
		return &fakePage{
			width: 600, height: 800,
			images: []pdfsource.ImageRef{{Ordinal: 1, Name: "Im1", Rect: layout.NewRect(100, 200, 400, 400)}},
		}
	}

	recs, err := assemble(t, &fakeEngine{err: errors.New("endpoint down")}, Options{}, page())
	if err != nil {
		t.Fatalf("lenient mode returned error: %v", err)
	}
	if len(recs) != 1 || recs[0].Detail.(record.ImageDetail).Graph {
		t.Fatalf("records = %+v, want one non-graph image", recs)
	}

	_, err = assemble(t, &fakeEngine{err: errors.New("endpoint down")}, Options{StrictDescriptions: true}, page())
	if err == nil {
		t.Fatal("strict mode swallowed the description error")
	}
}

func TestPageOrder(t *testing.T) {
	p0 := &fakePage{index: 0, width: 600, height: 800, blocks: []layout.Block{textBlock(50, 390, 550, 410, "one")}}
	p1 := &fakePage{index: 1, width: 600, height: 800,
		blocks: []layout.Block{textBlock(50, 390, 550, 410, "two")},
		images: []pdfsource.ImageRef{{Ordinal: 1, Name: "Im1", Rect: layout.NewRect(100, 100, 400, 300)}},
	}
	recs, err := assemble(t, &fakeEngine{}, Options{}, p0, p1)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range recs {
		got = append(got, r.Source.String())
	}
	want := []string{"report-page0-block1", "report-page1-image1", "report-page1-block1"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestOpenFailure(t *testing.T) {
	a := NewAssembler(&fakeEngine{}, artifact.Discard{}, Options{})
	recs, err := a.Process(context.Background(), "junk", bytes.NewReader([]byte("not a pdf")), 9)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if len(recs) != 0 {
		t.Errorf("records = %d, want 0", len(recs))
	}
}

func TestDocumentName(t *testing.T) {
	if got := DocumentName("/tmp/in/annual-report.pdf"); got != "annual-report" {
		t.Errorf("DocumentName = %q", got)
	}
}

// ---------------------------------------------------------------------------
// End to end over a generated PDF
// ---------------------------------------------------------------------------

func TestProcessGeneratedPDF(t *testing.T) {
	content := pdftest.Text(72, 420, 12, "Quarterly results improved.") +
		pdftest.Grid([]float64{100, 200, 300}, []float64{200, 220, 240}) +
		pdftest.Text(105, 225, 10, "Name") +
		pdftest.Text(205, 225, 10, "Qty") +
		pdftest.Text(105, 205, 10, "Bolt") +
		pdftest.Text(205, 205, 10, "12") +
		pdftest.Place("Im1", 100, 600, 200, 100)
	data := pdftest.Build(pdftest.Page{
		Width: 600, Height: 800,
		Content: content,
		Images:  []pdftest.Image{pdftest.Solid("Im1", 4, 4, 0, 0, 255)},
	})

	dir, err := artifact.NewDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a := NewAssembler(&fakeEngine{}, dir, Options{})
	recs, err := a.Process(context.Background(), "gen", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	kinds := map[record.Kind]int{}
	for _, r := range recs {
		kinds[r.Kind()]++
	}
	if kinds[record.KindTable] != 1 || kinds[record.KindImage] != 1 {
		t.Fatalf("kinds = %v, want one table and one image", kinds)
	}
	if recs[0].Kind() != record.KindTable || recs[1].Kind() != record.KindImage {
		t.Errorf("order = %s, %s", recs[0].Kind(), recs[1].Kind())
	}

	rows, err := artifact.ReadTable(recs[0].Detail.(record.TableDetail).DataPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][0] != "Bolt" {
		t.Errorf("exported rows = %v", rows)
	}

	var found bool
	for _, r := range recs {
		if r.Kind() == record.KindText && strings.Contains(r.Text, "Quarterly results improved.") {
			found = true
		}
	}
	if !found {
		t.Error("paragraph text record missing")
	}
}
