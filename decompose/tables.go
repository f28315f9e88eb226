package decompose

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"

	"github.com/brunobiangulo/mmingest/artifact"
	"github.com/brunobiangulo/mmingest/describe"
	"github.com/brunobiangulo/mmingest/layout"
	"github.com/brunobiangulo/mmingest/record"
)

// TableExtractor turns the ruled tables of a page into table records.
type TableExtractor struct {
	Engine  describe.Engine
	Sink    artifact.Sink
	Options Options
}

// Extract returns one record per table on page together with the table
// bounding boxes. A page whose tables cannot be detected or saved yields no
// records and no boxes.
func (x *TableExtractor) Extract(ctx context.Context, doc string, page Page, blocks []layout.Block, ongoing OngoingTables) ([]record.Record, []layout.Rect, OngoingTables, error) {
	opts := x.Options.withDefaults()
	p := page.Index()

	tables, err := page.FindTables(opts.Strategy)
	if err != nil {
		slog.Warn("decompose: table detection failed", "document", doc, "page", p, "error", err)
		return nil, nil, ongoing, nil
	}

	var (
		records []record.Record
		rects   []layout.Rect
	)
	for i, t := range tables {
		n := i + 1

		dataPath, err := x.Sink.SaveTable(artifact.Name(artifact.Tables, "table", n, p, "xlsx"), t.Rows)
		if err != nil {
			slog.Warn("decompose: saving table failed", "document", doc, "page", p, "table", n, "error", err)
			return nil, nil, ongoing, nil
		}

		var imagePath, desc string
		snap, err := page.Render(t.Rect, opts.RenderScale)
		if err != nil {
			slog.Warn("decompose: table snapshot failed", "document", doc, "page", p, "table", n, "error", err)
		} else {
			imagePath, err = x.Sink.SaveImage(artifact.Name(artifact.Tables, "table", n, p, "jpg"), snap)
			if err != nil {
				slog.Warn("decompose: saving table snapshot failed", "document", doc, "page", p, "table", n, "error", err)
				return nil, nil, ongoing, nil
			}
			desc, err = x.chartDescription(ctx, snap)
			if err != nil {
				if err := describeErr(opts, err, "document", doc, "page", p, "table", n); err != nil {
					return nil, nil, ongoing, err
				}
			}
		}

		before, after := layout.TextAround(t.Rect, page.Height(), blocks, opts.ContextThreshold)
		capt := caption(before, desc, after)

		records = append(records, record.Record{
			Text: "This is a table with caption: " + capt,
			Source: record.SourceID{
				Document: doc,
				Page:     p,
				Element:  record.ElementTable,
				Ordinal:  n,
			},
			Page: p,
			Detail: record.TableDetail{
				Rect:      t.Rect,
				Caption:   capt,
				DataPath:  dataPath,
				ImagePath: imagePath,
				Rows:      t.Rows,
			},
		})
		rects = append(rects, t.Rect)
	}

	if len(tables) > 0 {
		slog.Debug("decompose: tables extracted", "document", doc, "page", p, "count", len(tables))
	}
	return records, rects, ongoing, nil
}

func (x *TableExtractor) chartDescription(ctx context.Context, snap image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, snap); err != nil {
		return "", err
	}
	return x.Engine.ChartToDescription(ctx, buf.Bytes())
}
