// Package artifact persists the auxiliary files produced during extraction:
// table spreadsheets and raster snapshots. Files are addressed by
// deterministic names of the form {category}/{kind}{ordinal}-page{page}.{ext}.
package artifact

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Categories.
const (
	Tables = "table_references"
	Images = "image_references"
	Slides = "ppt_references"
)

// Name builds the deterministic relative path of an artifact.
func Name(category, kind string, ordinal, page int, ext string) string {
	return filepath.Join(category, fmt.Sprintf("%s%d-page%d.%s", kind, ordinal, page, strings.TrimPrefix(ext, ".")))
}

// Sink stores artifacts. Names are relative paths built with Name; the
// returned string is the location recorded in content records.
type Sink interface {
	SaveTable(name string, rows [][]string) (string, error)
	SaveImage(name string, img image.Image) (string, error)
	SaveBytes(name string, data []byte) (string, error)
}

// Dir is a Sink rooted at a filesystem directory.
type Dir struct {
	Root string
}

// NewDir returns a Dir rooted at root, creating it if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &Dir{Root: root}, nil
}

// Path resolves a relative artifact name under the root.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.Root, name)
}

// SaveTable writes rows to a single-sheet XLSX workbook. The first row is
// the header.
func (d *Dir) SaveTable(name string, rows [][]string) (string, error) {
	path, err := d.prepare(name)
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return "", fmt.Errorf("table cell name: %w", err)
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return "", fmt.Errorf("writing table row %d: %w", i, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("saving table %s: %w", name, err)
	}
	return path, nil
}

// SaveImage encodes img as PNG or JPEG depending on the name's extension.
func (d *Dir) SaveImage(name string, img image.Image) (string, error) {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return "", fmt.Errorf("encoding %s: %w", name, err)
		}
	case ".png":
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("encoding %s: %w", name, err)
		}
	default:
		return "", fmt.Errorf("unsupported image extension %q", filepath.Ext(name))
	}
	return d.SaveBytes(name, buf.Bytes())
}

// SaveBytes writes data verbatim.
func (d *Dir) SaveBytes(name string, data []byte) (string, error) {
	path, err := d.prepare(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}

func (d *Dir) prepare(name string) (string, error) {
	path := d.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return path, nil
}

// ReadTable loads the first sheet of an XLSX workbook back into rows.
func ReadTable(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}

// Discard is a Sink that records nothing and returns the bare name.
type Discard struct{}

func (Discard) SaveTable(name string, _ [][]string) (string, error) { return name, nil }
func (Discard) SaveImage(name string, _ image.Image) (string, error) { return name, nil }
func (Discard) SaveBytes(name string, _ []byte) (string, error)      { return name, nil }
