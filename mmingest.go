// Package mmingest decomposes heterogeneous documents (PDF, slide decks,
// images, spreadsheets and text) into content records and indexes them
// into named collections.
package mmingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/mmingest/artifact"
	"github.com/brunobiangulo/mmingest/chunker"
	"github.com/brunobiangulo/mmingest/decompose"
	"github.com/brunobiangulo/mmingest/describe"
	"github.com/brunobiangulo/mmingest/index"
	"github.com/brunobiangulo/mmingest/llm"
	"github.com/brunobiangulo/mmingest/loader"
	"github.com/brunobiangulo/mmingest/record"
	"github.com/brunobiangulo/mmingest/slides"
)

// Result reports one ingest run.
type Result struct {
	RunID      string              `json:"run_id"`
	Dir        string              `json:"dir"`
	Records    []record.Record     `json:"records"`
	Errors     []*loader.FileError `json:"-"`
	Collection string              `json:"collection,omitempty"`
	Nodes      int                 `json:"nodes"`
	ElapsedMs  int64               `json:"elapsed_ms"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithDescriber replaces the description engine built from Config.
func WithDescriber(d describe.Engine) Option {
	return func(e *Engine) { e.describer = d }
}

// WithEmbedders replaces the embedding providers built from Config.
// query embeds search queries; passage is used when it is nil.
func WithEmbedders(passage, query index.Embedder) Option {
	return func(e *Engine) {
		e.embedder, e.query = passage, query
		e.embeddersSet = true
	}
}

// WithConverter replaces the office suite converter used for decks.
func WithConverter(c slides.Converter) Option {
	return func(e *Engine) { e.converter = c }
}

// WithoutIndex opens the Engine without a record index. Ingest then only
// returns the records.
func WithoutIndex() Option {
	return func(e *Engine) { e.noIndex = true }
}

// IngestOption configures one ingest run.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	collection string
	rebuild    bool
	skipIndex  bool
}

// WithCollection indexes into name instead of the configured collection.
func WithCollection(name string) IngestOption {
	return func(o *ingestOptions) { o.collection = name }
}

// WithRebuild empties the collection before adding the run's records.
func WithRebuild() IngestOption {
	return func(o *ingestOptions) { o.rebuild = true }
}

// WithSkipIndex returns the records without indexing them.
func WithSkipIndex() IngestOption {
	return func(o *ingestOptions) { o.skipIndex = true }
}

// Engine ingests files into records and indexes them. It is safe for
// concurrent use; every run writes under its own directory.
type Engine struct {
	cfg          Config
	describer    describe.Engine
	embedder     index.Embedder
	query        index.Embedder
	embeddersSet bool
	converter    slides.Converter
	chunker      *chunker.Chunker
	store        *index.Store
	noIndex      bool
}

// New creates an Engine from cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg}
	for _, o := range opts {
		o(e)
	}

	if e.describer == nil {
		if cfg.Offline {
			e.describer = describe.Off{}
		} else {
			v, err := describe.NewVision(describe.Config{
				APIKey:      cfg.APIKey,
				DescribeURL: cfg.imageModelURL(),
				DeplotURL:   cfg.graphModelURL(),
				Vision:      cfg.Vision,
				Explain:     cfg.Chat,
			})
			if err != nil {
				return nil, fmt.Errorf("creating description engine: %w", err)
			}
			e.describer = v
		}
	}

	if !e.embeddersSet && !cfg.Offline && cfg.Embedding.Provider != "" {
		passage, query, err := newEmbedders(cfg)
		if err != nil {
			return nil, err
		}
		e.embedder, e.query = passage, query
	}

	if e.converter == nil {
		e.converter = slides.LibreOffice{Binary: cfg.Converter}
	}

	e.chunker = chunker.New(chunker.Config{
		MaxTokens: cfg.MaxChunkTokens,
		Overlap:   cfg.ChunkOverlap,
	})

	if !e.noIndex {
		s, err := index.New(cfg.DBPath, cfg.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("opening index: %w", err)
		}
		e.store = s
	}

	return e, nil
}

// newEmbedders builds the passage and query embedding providers. Models
// that distinguish input types get "query" for the query side.
func newEmbedders(cfg Config) (index.Embedder, index.Embedder, error) {
	ec := cfg.Embedding
	if ec.APIKey == "" {
		ec.APIKey = cfg.APIKey
	}
	passage, err := llm.NewProvider(ec)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	if ec.InputType == "" {
		return passage, passage, nil
	}
	ec.InputType = "query"
	query, err := llm.NewProvider(ec)
	if err != nil {
		return nil, nil, fmt.Errorf("creating query embedding provider: %w", err)
	}
	return passage, query, nil
}

// Config returns the Engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Ingest loads every file in paths, writing extracted artifacts under
// {OutputDir}/{runID}/{document}, and adds the records to the index.
// Per-file failures are returned in Result.Errors and do not stop the run.
func (e *Engine) Ingest(ctx context.Context, paths []string, opts ...IngestOption) (*Result, error) {
	if len(paths) == 0 {
		return nil, ErrNoInputs
	}
	o := ingestOptions{collection: e.cfg.Collection}
	for _, fn := range opts {
		fn(&o)
	}

	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	res.Dir = filepath.Join(e.cfg.OutputDir, res.RunID)
	slog.Info("ingest: run started", "run", res.RunID, "files", len(paths))

	used := make(map[string]bool)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, &loader.FileError{Path: path, Err: err})
			break
		}
		doc := documentDir(used, path)
		reg := e.registry(filepath.Join(res.Dir, doc))
		recs, errs := reg.LoadFiles(ctx, []string{path})
		renameDocument(recs, decompose.DocumentName(path), doc)
		res.Records = append(res.Records, recs...)
		res.Errors = append(res.Errors, errs...)
	}

	if e.store != nil && !o.skipIndex {
		res.Collection = o.collection
		n, err := e.index(ctx, o, res.Records)
		if err != nil {
			return res, err
		}
		res.Nodes = n
	}

	res.ElapsedMs = time.Since(start).Milliseconds()
	slog.Info("ingest: run complete",
		"run", res.RunID,
		"records", len(res.Records),
		"failed", len(res.Errors),
		"nodes", res.Nodes,
		"elapsed_ms", res.ElapsedMs)
	return res, nil
}

// IngestDir ingests the regular files directly inside dir, in name order.
func (e *Engine) IngestDir(ctx context.Context, dir string, opts ...IngestOption) (*Result, error) {
	paths, err := loader.DirectoryFiles(dir)
	if err != nil {
		return nil, err
	}
	return e.Ingest(ctx, paths, opts...)
}

// documentDir names a document within a run, suffixing names already
// used. The result names both the artifact directory and the document
// part of its source ids.
func documentDir(used map[string]bool, path string) string {
	name := decompose.DocumentName(path)
	unique := name
	for n := 2; used[unique]; n++ {
		unique = name + "-" + strconv.Itoa(n)
	}
	used[unique] = true
	return unique
}

// renameDocument rewrites the document part of source ids from name to
// unique, keeping any suffix such as a file extension.
func renameDocument(recs []record.Record, name, unique string) {
	if name == unique {
		return
	}
	for i := range recs {
		if d := recs[i].Source.Document; strings.HasPrefix(d, name) {
			recs[i].Source.Document = unique + d[len(name):]
		}
	}
}

func (e *Engine) registry(dir string) *loader.Registry {
	sink := &artifact.Dir{Root: dir}

	docs := decompose.NewAssembler(e.describer, sink, decompose.Options{
		StrictDescriptions: e.cfg.StrictDescriptions,
		GroupChars:         e.cfg.GroupChars,
		ContextThreshold:   e.cfg.ContextThreshold,
		RenderScale:        e.cfg.RenderScale,
	})

	deck := slides.NewAssembler(e.describer, sink, dir)
	deck.Converter = e.converter
	if e.cfg.SlideScale > 0 {
		deck.Render = slides.RenderPDF(e.cfg.SlideScale)
	}
	deck.StrictDescriptions = e.cfg.StrictDescriptions

	return loader.NewRegistry(
		loader.ImageLoader{Engine: e.describer},
		loader.PDFLoader{Assembler: docs},
		loader.SlideLoader{Assembler: deck},
		loader.XLSXLoader{},
		loader.DOCXLoader{Engine: e.describer, Sink: sink, Strict: e.cfg.StrictDescriptions},
	)
}

func (e *Engine) index(ctx context.Context, o ingestOptions, records []record.Record) (int, error) {
	se := e.session(o.collection)
	if o.rebuild {
		if err := se.Rebuild(ctx); err != nil {
			return 0, fmt.Errorf("rebuilding collection %s: %w", o.collection, err)
		}
	}
	if len(records) == 0 {
		return 0, nil
	}
	n, err := se.Add(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("indexing records: %w", err)
	}
	return n, nil
}

func (e *Engine) session(collection string) *index.Session {
	if collection == "" {
		collection = e.cfg.Collection
	}
	se := e.store.Session(collection, e.embedder, e.chunker)
	se.QueryEmbedder = e.query
	return se
}

// Records returns the records indexed in collection, in insertion order.
func (e *Engine) Records(ctx context.Context, collection string) ([]record.Record, error) {
	if e.store == nil {
		return nil, ErrIndexDisabled
	}
	return e.session(collection).Records(ctx)
}

// Collections lists the index collections.
func (e *Engine) Collections(ctx context.Context) ([]index.Collection, error) {
	if e.store == nil {
		return nil, ErrIndexDisabled
	}
	return e.store.Collections(ctx)
}

// Search looks up the k nodes of collection closest to query. Without an
// embedder it falls back to full-text search.
func (e *Engine) Search(ctx context.Context, collection, query string, k int) ([]index.Hit, error) {
	if e.store == nil {
		return nil, ErrIndexDisabled
	}
	se := e.session(collection)
	if e.embedder == nil && e.query == nil {
		return se.TextSearch(ctx, query, k)
	}
	return se.Search(ctx, query, k)
}

// Close releases the index.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
