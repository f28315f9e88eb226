package decompose

import (
	"context"
	"log/slog"

	"github.com/brunobiangulo/mmingest/artifact"
	"github.com/brunobiangulo/mmingest/describe"
	"github.com/brunobiangulo/mmingest/layout"
	"github.com/brunobiangulo/mmingest/pdfsource"
	"github.com/brunobiangulo/mmingest/record"
)

// ImageExtractor turns the placed raster images of a page into image
// records. Images no larger than a twentieth of the page in either
// dimension are ignored.
type ImageExtractor struct {
	Engine  describe.Engine
	Sink    artifact.Sink
	Options Options
}

// Extract returns one record per sufficiently large image on page.
func (x *ImageExtractor) Extract(ctx context.Context, doc string, page Page, blocks []layout.Block) ([]record.Record, error) {
	opts := x.Options.withDefaults()
	p := page.Index()

	refs, err := page.Images()
	if err != nil {
		slog.Warn("decompose: listing images failed", "document", doc, "page", p, "error", err)
		return nil, nil
	}

	var records []record.Record
	for _, ref := range refs {
		if !largeEnough(ref.Rect, page.Width(), page.Height()) {
			continue
		}

		img, err := page.ImageData(ref)
		if err != nil {
			slog.Warn("decompose: reading image failed", "document", doc, "page", p, "image", ref.Name, "error", err)
			continue
		}

		rec, ok, err := x.record(ctx, doc, page, blocks, ref, img, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// record builds the record for one image. It reports false when the image
// could not be saved and is skipped.
func (x *ImageExtractor) record(ctx context.Context, doc string, page Page, blocks []layout.Block, ref pdfsource.ImageRef, img pdfsource.Image, opts Options) (record.Record, bool, error) {
	p := page.Index()
	attrs := []any{"document", doc, "page", p, "image", ref.Ordinal}

	before, after := layout.TextAround(ref.Rect, page.Height(), blocks, opts.ContextThreshold)

	var desc string
	graph, err := x.Engine.IsGraph(ctx, img.Data)
	if err != nil {
		if err := describeErr(opts, err, attrs...); err != nil {
			return record.Record{}, false, err
		}
		graph = false
	}
	if graph {
		desc, err = x.Engine.ChartToDescription(ctx, img.Data)
		if err != nil {
			if err := describeErr(opts, err, attrs...); err != nil {
				return record.Record{}, false, err
			}
		}
	}

	path, err := x.Sink.SaveBytes(artifact.Name(artifact.Images, "image", ref.Ordinal, p, img.Ext()), img.Data)
	if err != nil {
		slog.Warn("decompose: saving image failed", append(attrs, "error", err)...)
		return record.Record{}, false, nil
	}

	capt := caption(before, desc, after)
	rect := ref.Rect
	return record.Record{
		Text: "This is an image with caption: " + capt,
		Source: record.SourceID{
			Document: doc,
			Page:     p,
			Element:  record.ElementImage,
			Ordinal:  ref.Ordinal,
		},
		Page: p,
		Detail: record.ImageDetail{
			Rect:      &rect,
			Caption:   capt,
			ImagePath: path,
			Graph:     graph,
		},
	}, true, nil
}

func largeEnough(r layout.Rect, pageW, pageH float64) bool {
	return r.Width() > pageW/20 && r.Height() > pageH/20
}
