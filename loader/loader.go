// Package loader dispatches input files to the extractor for their format
// and collects the resulting records, isolating per-file failures.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/mmingest/record"
)

// ErrUnsupportedFormat is returned for files no loader can read.
var ErrUnsupportedFormat = errors.New("loader: unsupported format")

// Loader reads one file into records.
type Loader interface {
	Load(ctx context.Context, path string) ([]record.Record, error)
	SupportedFormats() []string
}

// Registry maps lower-case file extensions (without the dot) to loaders.
// Files whose extension has no loader go to the fallback, if any.
type Registry struct {
	loaders  map[string]Loader
	fallback Loader
}

// NewRegistry returns a Registry with the given loaders registered for
// their formats. Plain text is the fallback.
func NewRegistry(loaders ...Loader) *Registry {
	r := &Registry{loaders: make(map[string]Loader), fallback: TextLoader{}}
	for _, l := range loaders {
		r.Register(l)
	}
	return r
}

// Register adds l for each of its formats, replacing earlier loaders.
func (r *Registry) Register(l Loader) {
	for _, f := range l.SupportedFormats() {
		r.loaders[strings.ToLower(f)] = l
	}
}

// SetFallback sets the loader used for unregistered formats. A nil
// fallback rejects them with ErrUnsupportedFormat.
func (r *Registry) SetFallback(l Loader) {
	r.fallback = l
}

// Get returns the loader for format.
func (r *Registry) Get(format string) (Loader, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if l, ok := r.loaders[format]; ok {
		return l, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// FileError is the failure of one file in a batch.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *FileError) Unwrap() error { return e.Err }

// Load reads a single file with the loader registered for its extension.
func (r *Registry) Load(ctx context.Context, path string) (recs []record.Record, err error) {
	l, err := r.Get(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			recs, err = nil, fmt.Errorf("loader: panic: %v", rec)
		}
	}()
	return l.Load(ctx, path)
}

// LoadFiles loads every path in order. A failing file is logged and
// reported in the returned errors; the remaining files are still loaded.
// Only context cancellation stops the batch early.
func (r *Registry) LoadFiles(ctx context.Context, paths []string) ([]record.Record, []*FileError) {
	var (
		records []record.Record
		errs    []*FileError
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, &FileError{Path: path, Err: err})
			break
		}
		recs, err := r.Load(ctx, path)
		if err != nil {
			slog.Error("loader: file failed", "path", path, "error", err)
			errs = append(errs, &FileError{Path: path, Err: err})
			continue
		}
		slog.Info("loader: file loaded", "path", path, "records", len(recs))
		records = append(records, recs...)
	}
	return records, errs
}

// LoadDirectory loads the regular files directly inside dir, in name
// order. Subdirectories are not visited.
func (r *Registry) LoadDirectory(ctx context.Context, dir string) ([]record.Record, []*FileError, error) {
	paths, err := DirectoryFiles(dir)
	if err != nil {
		return nil, nil, err
	}
	recs, errs := r.LoadFiles(ctx, paths)
	return recs, errs, nil
}

// DirectoryFiles lists the regular files directly inside dir, sorted by
// name.
func DirectoryFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
