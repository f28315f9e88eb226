// Package pdfsource is the page-scanning primitive behind PDF decomposition.
// It wraps github.com/ledongthuc/pdf and exposes each page as typed blocks,
// ruled tables, placed images and region renders, all in a top-left page
// coordinate space measured in points.
package pdfsource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"
)

// Letter size, used when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

var (
	ErrMalformed   = errors.New("pdfsource: malformed document")
	ErrPageRange   = errors.New("pdfsource: page out of range")
	ErrNoImage     = errors.New("pdfsource: image not found")
	ErrUnsupported = errors.New("pdfsource: unsupported image encoding")
)

// Document is an opened PDF.
type Document struct {
	reader *pdf.Reader
	src    io.ReaderAt
	size   int64
	closer io.Closer

	rawOnce sync.Once
	raw     *rawIndex
}

// Open parses the document held by r. The library panics on some malformed
// inputs; those are reported as ErrMalformed.
func Open(r io.ReaderAt, size int64) (doc *Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrMalformed, rec)
		}
	}()

	rd, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Document{reader: rd, src: r, size: size}, nil
}

// OpenFile opens the PDF at path. Close releases the file.
func OpenFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat PDF: %w", err)
	}
	doc, err := Open(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	doc.closer = f
	return doc, nil
}

// Close releases the underlying file when the document was opened with
// OpenFile.
func (d *Document) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// NumPages returns the page count, or 0 when the page tree is unreadable.
func (d *Document) NumPages() (n int) {
	defer func() {
		if rec := recover(); rec != nil {
			n = 0
		}
	}()
	return d.reader.NumPage()
}

// Page returns page i, counting from 0.
func (d *Document) Page(i int) (p *Page, err error) {
	if i < 0 || i >= d.NumPages() {
		return nil, fmt.Errorf("%w: %d", ErrPageRange, i)
	}
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, fmt.Errorf("%w: page %d: %v", ErrMalformed, i, rec)
		}
	}()

	pg := d.reader.Page(i + 1)
	if pg.V.IsNull() {
		return nil, fmt.Errorf("%w: page %d is null", ErrMalformed, i)
	}

	box := mediaBox(pg.V)
	return &Page{
		doc:   d,
		page:  pg,
		index: i,
		box:   box,
	}, nil
}

// mediaBox reads the MediaBox, following Parent links for inherited boxes.
func mediaBox(v pdf.Value) [4]float64 {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		mb := v.Key("MediaBox")
		if mb.Kind() == pdf.Array && mb.Len() == 4 {
			var c [4]float64
			for i := 0; i < 4; i++ {
				c[i] = mb.Index(i).Float64()
			}
			if c[0] > c[2] {
				c[0], c[2] = c[2], c[0]
			}
			if c[1] > c[3] {
				c[1], c[3] = c[3], c[1]
			}
			if c[2]-c[0] > 0 && c[3]-c[1] > 0 {
				return c
			}
		}
		v = v.Key("Parent")
	}
	return [4]float64{0, 0, defaultPageWidth, defaultPageHeight}
}

// Page is one page of a Document.
type Page struct {
	doc   *Document
	page  pdf.Page
	index int
	box   [4]float64

	scanned bool
	scan    *pageScan
	scanErr error
}

// Index is the 0-based page number.
func (p *Page) Index() int { return p.index }

// Width in points.
func (p *Page) Width() float64 { return p.box[2] - p.box[0] }

// Height in points.
func (p *Page) Height() float64 { return p.box[3] - p.box[1] }

// toTop converts PDF user space to top-left page space.
func (p *Page) toTop(x, y float64) (float64, float64) {
	return x - p.box[0], p.box[3] - y
}

// content runs the page scan once and caches the result.
func (p *Page) content() (*pageScan, error) {
	if !p.scanned {
		p.scan, p.scanErr = scanPage(p)
		p.scanned = true
	}
	return p.scan, p.scanErr
}
