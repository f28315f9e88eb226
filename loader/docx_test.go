package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/mmingest/artifact"
	"github.com/brunobiangulo/mmingest/record"
)

const docxNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`

func para(style, text string) string {
	ppr := ""
	if style != "" {
		ppr = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	return `<w:p>` + ppr + `<w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func picture(rid string) string {
	return `<w:p><w:r><w:drawing><a:graphic><a:graphicData><a:blip r:embed="` + rid + `"/></a:graphicData></a:graphic></w:drawing></w:r></w:p>`
}

func docxTableXML(rows ...[]string) string {
	s := `<w:tbl>`
	for _, r := range rows {
		s += `<w:tr>`
		for _, c := range r {
			s += `<w:tc>` + para("", c) + `</w:tc>`
		}
		s += `</w:tr>`
	}
	return s + `</w:tbl>`
}

func pngOfSize(t *testing.T, side int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, side, side))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeDocx(t *testing.T, dir, body string, media map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}

	add("word/document.xml", []byte(`<?xml version="1.0" encoding="UTF-8"?><w:document `+docxNS+`><w:body>`+body+`</w:body></w:document>`))
	rels := `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`
	for name, data := range media {
		add("word/media/"+name, data)
	}
	rels += `<Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/pump.png"/>`
	rels += `<Relationship Id="rId6" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/bullet.png"/>`
	rels += `</Relationships>`
	add("word/_rels/document.xml.rels", []byte(rels))

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return write(t, dir, "guide.docx", buf.Bytes())
}

func TestDOCXLoader(t *testing.T) {
	dir := t.TempDir()
	body := para("Title", "Pump guide") +
		para("", "Check the seals.") +
		para("", "Replace the filter.") +
		para("Heading1", "Parts") +
		docxTableXML([]string{"Part", "Qty"}, []string{"Seal", "2"}) +
		para("", "Order spares early.") +
		picture("rId5") +
		picture("rId6")
	path := writeDocx(t, dir, body, map[string][]byte{
		"pump.png":   pngOfSize(t, 64),
		"bullet.png": pngOfSize(t, 8),
	})

	engine := &fakeEngine{}
	sink := &artifact.Dir{Root: filepath.Join(dir, "out")}
	recs, err := DOCXLoader{Engine: engine, Sink: sink}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []struct {
		source string
		text   string
	}{
		{"guide-page0-block1", "Pump guide\nCheck the seals.\nReplace the filter."},
		{"guide-page0-table1", "This is a table with caption: Parts\n| Part | Qty |\n| Seal | 2 |\n"},
		{"guide-page0-block2", "Parts\nOrder spares early."},
		{"guide-page0-image1", "This is an image with caption: a diagram of a pump"},
	}
	if len(recs) != len(want) {
		t.Fatalf("records = %d, want %d: %+v", len(recs), len(want), recs)
	}
	for i, w := range want {
		if recs[i].Source.String() != w.source || recs[i].Text != w.text {
			t.Errorf("record[%d] = %s %q, want %s %q", i, recs[i].Source, recs[i].Text, w.source, w.text)
		}
	}

	td := recs[1].Detail.(record.TableDetail)
	if td.Caption != "Parts" || len(td.Rows) != 2 {
		t.Errorf("table detail = %+v", td)
	}
	img := recs[3].Detail.(record.ImageDetail)
	if img.ImagePath != sink.Path("image_references/image1-page0.png") {
		t.Errorf("image path = %q", img.ImagePath)
	}
	if engine.described != 1 {
		t.Errorf("described = %d, want 1 (bullet skipped)", engine.described)
	}
}

type failingEngine struct{}

func (failingEngine) Describe(context.Context, []byte) (string, error) {
	return "", errors.New("endpoint down")
}
func (failingEngine) IsGraph(context.Context, []byte) (bool, error)             { return false, nil }
func (failingEngine) ChartToDescription(context.Context, []byte) (string, error) { return "", nil }

func TestDOCXLoaderDescriptionFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeDocx(t, dir, para("", "Body.")+picture("rId5"), map[string][]byte{
		"pump.png":   pngOfSize(t, 64),
		"bullet.png": pngOfSize(t, 8),
	})

	recs, err := DOCXLoader{Engine: failingEngine{}}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("lenient Load: %v", err)
	}
	if len(recs) != 2 || recs[1].Text != "This is an image with caption: " {
		t.Errorf("records = %+v", recs)
	}

	if _, err := (DOCXLoader{Engine: failingEngine{}, Strict: true}).Load(context.Background(), path); err == nil {
		t.Fatal("strict Load succeeded, want error")
	}
}

func TestDOCXLoaderNotAZip(t *testing.T) {
	path := write(t, t.TempDir(), "broken.docx", []byte("not a zip"))
	if _, err := (DOCXLoader{Engine: &fakeEngine{}}).Load(context.Background(), path); err == nil {
		t.Fatal("expected error")
	}
}
