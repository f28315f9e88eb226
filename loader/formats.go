package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/mmingest/decompose"
	"github.com/brunobiangulo/mmingest/describe"
	"github.com/brunobiangulo/mmingest/record"
	"github.com/brunobiangulo/mmingest/slides"
)

// ImageLoader describes standalone image files.
type ImageLoader struct {
	Engine describe.Engine
}

func (l ImageLoader) SupportedFormats() []string { return []string{"png", "jpg", "jpeg"} }

func (l ImageLoader) Load(ctx context.Context, path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	desc, err := l.Engine.Describe(ctx, data)
	if err != nil {
		return nil, err
	}
	return []record.Record{{
		Text:   desc,
		Source: record.SourceID{Document: filepath.Base(path)},
		Detail: record.ImageDetail{ImagePath: path},
	}}, nil
}

// PDFLoader decomposes PDF documents.
type PDFLoader struct {
	Assembler *decompose.Assembler
}

func (l PDFLoader) SupportedFormats() []string { return []string{"pdf"} }

func (l PDFLoader) Load(ctx context.Context, path string) ([]record.Record, error) {
	return l.Assembler.ProcessFile(ctx, path)
}

// SlideLoader turns presentation decks into slide records.
type SlideLoader struct {
	Assembler *slides.Assembler
}

func (l SlideLoader) SupportedFormats() []string { return []string{"ppt", "pptx"} }

func (l SlideLoader) Load(ctx context.Context, path string) ([]record.Record, error) {
	return l.Assembler.Process(ctx, path)
}

// XLSXLoader emits one table record per non-empty worksheet.
type XLSXLoader struct{}

func (XLSXLoader) SupportedFormats() []string { return []string{"xlsx"} }

func (XLSXLoader) Load(ctx context.Context, path string) ([]record.Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	doc := decompose.DocumentName(path)
	var records []record.Record
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		var content strings.Builder
		for _, row := range rows {
			content.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}

		records = append(records, record.Record{
			Text: "This is a table with caption: " + sheet + "\n" + content.String(),
			Source: record.SourceID{
				Document: doc,
				Page:     i,
				Element:  record.ElementTable,
				Ordinal:  len(records) + 1,
			},
			Page: i,
			Detail: record.TableDetail{
				Caption:  sheet,
				DataPath: path,
				Rows:     rows,
			},
		})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}
	return records, nil
}

// TextLoader reads a file as UTF-8 text into a single record.
type TextLoader struct{}

func (TextLoader) SupportedFormats() []string { return []string{"txt", "md"} }

func (TextLoader) Load(ctx context.Context, path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not UTF-8 text", ErrUnsupportedFormat, filepath.Base(path))
	}
	return []record.Record{{
		Text:   string(data),
		Source: record.SourceID{Document: filepath.Base(path)},
	}}, nil
}
