// Package slides turns presentation decks into one image record per slide:
// the deck is converted to PDF, each page rendered to PNG, and paired with
// the slide's text and speaker notes.
package slides

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/mmingest/artifact"
	"github.com/brunobiangulo/mmingest/decompose"
	"github.com/brunobiangulo/mmingest/describe"
	"github.com/brunobiangulo/mmingest/layout"
	"github.com/brunobiangulo/mmingest/pdfsource"
	"github.com/brunobiangulo/mmingest/record"
)

// Converter converts an office document to another format, writing the
// result into outDir and returning its path.
type Converter interface {
	Convert(ctx context.Context, src, outDir, format string) (string, error)
}

// LibreOffice converts documents with a headless LibreOffice process.
type LibreOffice struct {
	Binary string // defaults to "libreoffice"
}

func (l LibreOffice) Convert(ctx context.Context, src, outDir, format string) (string, error) {
	bin := l.Binary
	if bin == "" {
		bin = "libreoffice"
	}
	cmd := exec.CommandContext(ctx, bin, "--headless", "--convert-to", format, "--outdir", outDir, src)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("converting %s to %s: %w: %s", filepath.Base(src), format, err, strings.TrimSpace(string(out)))
	}

	dst := filepath.Join(outDir, decompose.DocumentName(src)+"."+format)
	if _, err := os.Stat(dst); err != nil {
		return "", fmt.Errorf("converting %s to %s: no output: %w", filepath.Base(src), format, err)
	}
	return dst, nil
}

// Renderer rasterizes every page of a PDF, in page order.
type Renderer func(ctx context.Context, pdfPath string) ([]image.Image, error)

// RenderPDF returns a Renderer drawing pages with pdfsource at scale
// pixels per point.
func RenderPDF(scale float64) Renderer {
	return func(ctx context.Context, pdfPath string) ([]image.Image, error) {
		doc, err := pdfsource.OpenFile(pdfPath)
		if err != nil {
			return nil, err
		}
		defer doc.Close()

		n := doc.NumPages()
		pages := make([]image.Image, 0, n)
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			page, err := doc.Page(i)
			if err != nil {
				return nil, err
			}
			img, err := page.Render(layout.Rect{}, scale)
			if err != nil {
				return nil, fmt.Errorf("rendering page %d: %w", i, err)
			}
			pages = append(pages, img)
		}
		return pages, nil
	}
}

// Assembler builds slide records from a deck.
type Assembler struct {
	Converter Converter
	Render    Renderer
	Engine    describe.Engine
	Sink      artifact.Sink
	// WorkDir receives the converted files. A temporary directory is used
	// when empty.
	WorkDir            string
	StrictDescriptions bool
}

// NewAssembler returns an Assembler converting with LibreOffice and
// rendering with pdfsource.
func NewAssembler(engine describe.Engine, sink artifact.Sink, workDir string) *Assembler {
	return &Assembler{
		Converter: LibreOffice{},
		Render:    RenderPDF(1),
		Engine:    engine,
		Sink:      sink,
		WorkDir:   workDir,
	}
}

// Process converts the deck at path and returns one record per slide, in
// slide order. When the rendered page count and the slide count differ,
// only the common prefix is paired.
func (a *Assembler) Process(ctx context.Context, path string) ([]record.Record, error) {
	deck := decompose.DocumentName(path)

	workDir := a.WorkDir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "mmingest-slides-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmp)
		workDir = tmp
	} else if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}

	pdfPath, err := a.Converter.Convert(ctx, path, workDir, "pdf")
	if err != nil {
		return nil, err
	}
	pages, err := a.Render(ctx, pdfPath)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", deck, err)
	}

	pptxPath := path
	if strings.EqualFold(filepath.Ext(path), ".ppt") {
		pptxPath, err = a.Converter.Convert(ctx, path, workDir, "pptx")
		if err != nil {
			return nil, err
		}
	}
	slides, err := ReadDeck(pptxPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", deck, err)
	}

	n := min(len(pages), len(slides))
	if len(pages) != len(slides) {
		slog.Warn("slides: page and slide counts differ", "deck", deck, "pages", len(pages), "slides", len(slides))
	}

	records := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := a.slideRecord(ctx, deck, i, pages[i], slides[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	slog.Info("slides: deck processed", "deck", deck, "slides", n)
	return records, nil
}

func (a *Assembler) slideRecord(ctx context.Context, deck string, i int, page image.Image, s Slide) (record.Record, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, page); err != nil {
		return record.Record{}, fmt.Errorf("encoding slide %d: %w", i+1, err)
	}
	imagePath, err := a.Sink.SaveBytes(artifact.Name(artifact.Slides, "slide", i, i, "png"), buf.Bytes())
	if err != nil {
		return record.Record{}, fmt.Errorf("saving slide %d: %w", i+1, err)
	}

	var enrichment string
	if describe.IsGraphText(s.Text) {
		enrichment, err = a.Engine.ChartToDescription(ctx, buf.Bytes())
		if err != nil {
			if a.StrictDescriptions {
				return record.Record{}, err
			}
			slog.Warn("slides: description failed", "deck", deck, "slide", i+1, "error", err)
			enrichment = ""
		}
	}

	return record.Record{
		Text: "This is a slide with text: " + s.Text + enrichment,
		Source: record.SourceID{
			Document: deck,
			Page:     i,
			Element:  record.ElementSlide,
			Ordinal:  i + 1,
		},
		Page: i,
		Detail: record.SlideDetail{
			Caption:   s.Text + s.Notes,
			ImagePath: imagePath,
			Notes:     s.Notes,
		},
	}, nil
}
