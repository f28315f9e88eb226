package loader

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/brunobiangulo/mmingest/artifact"
	"github.com/brunobiangulo/mmingest/decompose"
	"github.com/brunobiangulo/mmingest/describe"
	"github.com/brunobiangulo/mmingest/internal/ooxml"
	"github.com/brunobiangulo/mmingest/record"
)

const docxMain = "word/document.xml"

// minDocxImageSide is the smallest embedded image edge, in pixels, worth
// describing. Smaller pictures are bullets and decorations.
const minDocxImageSide = 32

// DOCXLoader turns Word documents into text, table and image records.
// Text is grouped into sections at heading paragraphs. Tables take the
// heading above them as caption. Embedded images are described by Engine
// and saved to Sink.
type DOCXLoader struct {
	Engine describe.Engine
	Sink   artifact.Sink
	// Strict fails the document when the description engine fails.
	Strict bool
}

func (DOCXLoader) SupportedFormats() []string { return []string{"docx"} }

func (l DOCXLoader) Load(ctx context.Context, p string) ([]record.Record, error) {
	pkg, err := ooxml.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer pkg.Close()

	data, err := pkg.Part(docxMain)
	if err != nil {
		return nil, err
	}
	doc, err := walkDocx(data)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}

	name := decompose.DocumentName(p)
	records := doc.records(name)

	imgs, err := l.imageRecords(ctx, name, doc.images, pkg)
	if err != nil {
		return nil, err
	}
	records = append(records, imgs...)

	slog.Info("loader: docx processed", "document", name, "records", len(records))
	return records, nil
}

// docxSection is the text under one heading.
type docxSection struct {
	Heading string
	Content string
}

// docxTable is a body-level table with the heading in force above it.
type docxTable struct {
	Caption string
	Rows    [][]string
}

// docxPart is a section or a table in body order; exactly one is set.
type docxPart struct {
	section *docxSection
	table   *docxTable
}

type docxBody struct {
	parts  []docxPart
	images []string // relationship ids of embedded pictures, in order
}

// walkDocx streams word/document.xml, keeping sections and tables in body
// order. Paragraphs inside tables belong to their cell.
func walkDocx(data []byte) (*docxBody, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	body := &docxBody{}

	var (
		para     strings.Builder
		content  strings.Builder
		heading  string
		style    string
		inText   bool
		tblDepth int
		rows     [][]string
		row      []string
		cell     strings.Builder
	)

	flush := func() {
		text := strings.TrimSpace(content.String())
		if text != "" || heading != "" {
			body.parts = append(body.parts, docxPart{section: &docxSection{Heading: heading, Content: text}})
		}
		content.Reset()
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					rows = nil
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					cell.Reset()
				}
			case "p":
				para.Reset()
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			case "blip":
				if id := attr(t, "embed"); id != "" {
					body.images = append(body.images, id)
				}
			}

		case xml.CharData:
			if inText {
				para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if text == "" {
					continue
				}
				if tblDepth > 0 {
					if cell.Len() > 0 {
						cell.WriteByte(' ')
					}
					cell.WriteString(text)
					continue
				}
				if isHeadingStyle(style) {
					flush()
					heading = text
					continue
				}
				if content.Len() > 0 {
					content.WriteByte('\n')
				}
				content.WriteString(text)
			case "tc":
				if tblDepth == 1 {
					row = append(row, cell.String())
				}
			case "tr":
				if tblDepth == 1 {
					rows = append(rows, row)
				}
			case "tbl":
				tblDepth--
				if tblDepth == 0 && len(rows) > 0 {
					flush()
					body.parts = append(body.parts, docxPart{table: &docxTable{Caption: heading, Rows: rows}})
				}
			}
		}
	}
	flush()
	return body, nil
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func isHeadingStyle(style string) bool {
	lower := strings.ToLower(style)
	return strings.HasPrefix(lower, "heading") || strings.HasPrefix(lower, "title")
}

// records converts sections and tables. Sections without content (a
// heading directly followed by another heading or a table) are dropped.
func (b *docxBody) records(doc string) []record.Record {
	var (
		out            []record.Record
		blocks, tables int
	)
	for _, part := range b.parts {
		switch {
		case part.section != nil:
			s := part.section
			if s.Content == "" {
				continue
			}
			blocks++
			text := s.Content
			if s.Heading != "" {
				text = s.Heading + "\n" + s.Content
			}
			out = append(out, record.Record{
				Text:   text,
				Source: record.SourceID{Document: doc, Element: record.ElementBlock, Ordinal: blocks},
				Detail: record.TextDetail{},
			})
		case part.table != nil:
			tables++
			tb := part.table
			var sb strings.Builder
			sb.WriteString("This is a table with caption: " + tb.Caption + "\n")
			for _, r := range tb.Rows {
				sb.WriteString("| " + strings.Join(r, " | ") + " |\n")
			}
			out = append(out, record.Record{
				Text:   sb.String(),
				Source: record.SourceID{Document: doc, Element: record.ElementTable, Ordinal: tables},
				Detail: record.TableDetail{Caption: tb.Caption, Rows: tb.Rows},
			})
		}
	}
	return out
}

func (l DOCXLoader) imageRecords(ctx context.Context, doc string, ids []string, pkg *ooxml.Package) ([]record.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rels := make(map[string]string)
	for _, rel := range pkg.Rels(docxMain) {
		rels[rel.ID] = rel.Target
	}
	sink := l.Sink
	if sink == nil {
		sink = artifact.Discard{}
	}

	var out []record.Record
	for i, id := range ids {
		target, ok := rels[id]
		if !ok {
			continue
		}
		mediaPath := ooxml.Resolve(docxMain, target)
		data, err := pkg.Part(mediaPath)
		if err != nil {
			slog.Debug("loader: docx image unreadable", "path", mediaPath, "error", err)
			continue
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil || cfg.Width < minDocxImageSide || cfg.Height < minDocxImageSide {
			continue
		}

		ordinal := i + 1
		desc, graph, err := l.describe(ctx, data)
		if err != nil {
			if l.Strict {
				return nil, fmt.Errorf("describing %s: %w", mediaPath, err)
			}
			slog.Warn("loader: docx image description failed", "document", doc, "image", ordinal, "error", err)
		}

		saved, err := sink.SaveBytes(artifact.Name(artifact.Images, "image", ordinal, 0, strings.TrimPrefix(path.Ext(mediaPath), ".")), data)
		if err != nil {
			return nil, err
		}
		out = append(out, record.Record{
			Text:   "This is an image with caption: " + desc,
			Source: record.SourceID{Document: doc, Element: record.ElementImage, Ordinal: ordinal},
			Detail: record.ImageDetail{Caption: desc, ImagePath: saved, Graph: graph},
		})
	}
	return out, nil
}

// describe returns the image description, replaced by the chart reading
// when the description says the image is a graph.
func (l DOCXLoader) describe(ctx context.Context, data []byte) (string, bool, error) {
	desc, err := l.Engine.Describe(ctx, data)
	if err != nil {
		return "", false, err
	}
	if !describe.IsGraphText(desc) {
		return desc, false, nil
	}
	chart, err := l.Engine.ChartToDescription(ctx, data)
	if err != nil {
		return desc, true, err
	}
	return chart, true, nil
}
