// Package decompose splits PDF documents into content records: ruled
// tables, placed images and grouped text, each correlated with the captions
// printed around it.
package decompose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/mmingest/artifact"
	"github.com/brunobiangulo/mmingest/describe"
	"github.com/brunobiangulo/mmingest/layout"
	"github.com/brunobiangulo/mmingest/pdfsource"
	"github.com/brunobiangulo/mmingest/record"
)

// ErrOpen is returned when a document cannot be opened.
var ErrOpen = errors.New("decompose: cannot open document")

// Page is the view of a PDF page the extractors work from.
type Page interface {
	Index() int
	Width() float64
	Height() float64
	Blocks() ([]layout.Block, error)
	FindTables(strategy pdfsource.Strategy) ([]pdfsource.Table, error)
	Images() ([]pdfsource.ImageRef, error)
	ImageData(ref pdfsource.ImageRef) (pdfsource.Image, error)
	Render(clip layout.Rect, scale float64) (image.Image, error)
}

// Document is an opened multi-page document.
type Document interface {
	NumPages() int
	Page(i int) (Page, error)
	Close() error
}

// Opener opens a document from random-access bytes.
type Opener func(r io.ReaderAt, size int64) (Document, error)

// OpenPDF opens r with pdfsource.
func OpenPDF(r io.ReaderAt, size int64) (Document, error) {
	d, err := pdfsource.Open(r, size)
	if err != nil {
		return nil, err
	}
	return pdfDocument{d}, nil
}

type pdfDocument struct {
	*pdfsource.Document
}

func (d pdfDocument) Page(i int) (Page, error) {
	p, err := d.Document.Page(i)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OngoingTables tracks tables continuing across page breaks. It is carried
// from page to page but nothing populates it yet.
type OngoingTables map[string]pdfsource.Table

// Options tunes extraction.
type Options struct {
	// StrictDescriptions makes a failing description engine fail the
	// document instead of dropping the generated text for that element.
	StrictDescriptions bool
	// GroupChars is the character budget of a text group.
	GroupChars int
	// ContextThreshold is the caption search window as a fraction of the
	// page height.
	ContextThreshold float64
	// RenderScale is the pixels-per-point of table snapshots.
	RenderScale float64
	// Strategy selects the table boundary detection.
	Strategy pdfsource.Strategy
}

// DefaultOptions returns the default extraction options.
func DefaultOptions() Options {
	return Options{
		GroupChars:       layout.DefaultGroupChars,
		ContextThreshold: layout.DefaultContextThreshold,
		RenderScale:      pdfsource.DefaultRenderScale,
		Strategy:         pdfsource.LinesStrict,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.GroupChars <= 0 {
		o.GroupChars = d.GroupChars
	}
	if o.ContextThreshold <= 0 {
		o.ContextThreshold = d.ContextThreshold
	}
	if o.RenderScale <= 0 {
		o.RenderScale = d.RenderScale
	}
	return o
}

// Assembler runs the per-page pipeline over a whole document.
type Assembler struct {
	Open    Opener
	Tables  *TableExtractor
	Images  *ImageExtractor
	Options Options
}

// NewAssembler returns an Assembler that opens PDFs with pdfsource,
// describes visuals with engine and stores artifacts in sink.
func NewAssembler(engine describe.Engine, sink artifact.Sink, opts Options) *Assembler {
	opts = opts.withDefaults()
	return &Assembler{
		Open:    OpenPDF,
		Tables:  &TableExtractor{Engine: engine, Sink: sink, Options: opts},
		Images:  &ImageExtractor{Engine: engine, Sink: sink, Options: opts},
		Options: opts,
	}
}

// DocumentName is the file name of path without its extension.
func DocumentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ProcessFile processes the PDF at path, naming records after the file.
func (a *Assembler) ProcessFile(ctx context.Context, path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("decompose: opening file", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return a.Process(ctx, DocumentName(path), f, info.Size())
}

// Process decomposes the document in r into records named after name.
// Records come in page order; within a page tables come first, then
// images, then text groups that do not overlap a table. A document that
// cannot be opened yields no records and an error wrapping ErrOpen.
func (a *Assembler) Process(ctx context.Context, name string, r io.ReaderAt, size int64) ([]record.Record, error) {
	doc, err := a.Open(r, size)
	if err != nil {
		slog.Error("decompose: opening document", "document", name, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, name, err)
	}
	defer doc.Close()

	opts := a.Options.withDefaults()
	ongoing := OngoingTables{}

	var records []record.Record
	n := doc.NumPages()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := doc.Page(i)
		if err != nil {
			slog.Warn("decompose: skipping page", "document", name, "page", i, "error", err)
			continue
		}

		var recs []record.Record
		recs, ongoing, err = a.processPage(ctx, name, page, opts, ongoing)
		if err != nil {
			return nil, fmt.Errorf("decompose: %s page %d: %w", name, i, err)
		}
		records = append(records, recs...)
	}

	slog.Info("decompose: document processed", "document", name, "pages", n, "records", len(records))
	return records, nil
}

func (a *Assembler) processPage(ctx context.Context, name string, page Page, opts Options, ongoing OngoingTables) ([]record.Record, OngoingTables, error) {
	raw, err := page.Blocks()
	if err != nil {
		slog.Warn("decompose: reading page blocks", "document", name, "page", page.Index(), "error", err)
	}
	blocks := layout.TextBlocks(raw, page.Height())
	groups := layout.Groups(blocks, opts.GroupChars)

	tables, rects, ongoing, err := a.Tables.Extract(ctx, name, page, blocks, ongoing)
	if err != nil {
		return nil, ongoing, err
	}
	images, err := a.Images.Extract(ctx, name, page, blocks)
	if err != nil {
		return nil, ongoing, err
	}

	records := make([]record.Record, 0, len(tables)+len(images)+len(groups))
	records = append(records, tables...)
	records = append(records, images...)
	records = append(records, textRecords(name, page.Index(), groups, rects)...)
	return records, ongoing, nil
}

// textRecords turns groups into text records, skipping groups whose anchor
// overlaps a table. Group numbering counts skipped groups.
func textRecords(name string, page int, groups []layout.Group, tables []layout.Rect) []record.Record {
	var out []record.Record
	for k, g := range groups {
		if overlapsAny(g.Anchor.Rect, tables) {
			continue
		}
		out = append(out, record.Record{
			Text: g.Anchor.Text + "\n" + g.Content,
			Source: record.SourceID{
				Document: name,
				Page:     page,
				Element:  record.ElementBlock,
				Ordinal:  k + 1,
			},
			Page:   page,
			Detail: record.TextDetail{Rect: g.Anchor.Rect},
		})
	}
	return out
}

func overlapsAny(r layout.Rect, rects []layout.Rect) bool {
	for _, t := range rects {
		if r.Intersects(t) {
			return true
		}
	}
	return false
}

// caption joins the text before an element, the generated description and
// the text after it, flattening line breaks in the surrounding text.
func caption(before, desc, after string) string {
	return strings.ReplaceAll(before, "\n", " ") + desc + strings.ReplaceAll(after, "\n", " ")
}

// describeErr handles a description engine failure: fatal in strict mode,
// otherwise logged and dropped.
func describeErr(opts Options, err error, attrs ...any) error {
	if opts.StrictDescriptions {
		return err
	}
	slog.Warn("decompose: description failed", append(attrs, "error", err)...)
	return nil
}
