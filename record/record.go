// Package record defines ContentRecord, the unit every extractor emits and
// the index consumes.
package record

import (
	"github.com/brunobiangulo/mmingest/layout"
)

// Kind is the searchable type of a record.
type Kind string

const (
	KindText  Kind = "text"
	KindTable Kind = "table"
	KindImage Kind = "image"
)

// Record is one extracted piece of document content. Records are built once
// by an extractor and never modified afterwards.
type Record struct {
	Text   string   `json:"text"`
	Source SourceID `json:"source"`
	Page   int      `json:"page"`
	Detail Detail   `json:"detail"`
}

// Kind reports the record type derived from its detail.
func (r Record) Kind() Kind {
	if r.Detail == nil {
		return KindText
	}
	return r.Detail.Kind()
}

// Caption returns the caption carried by the detail, if any.
func (r Record) Caption() string {
	switch d := r.Detail.(type) {
	case TableDetail:
		return d.Caption
	case ImageDetail:
		return d.Caption
	case SlideDetail:
		return d.Caption
	}
	return ""
}

// Rect returns the bounding box carried by the detail, if any.
func (r Record) Rect() (layout.Rect, bool) {
	switch d := r.Detail.(type) {
	case TextDetail:
		return d.Rect, true
	case TableDetail:
		return d.Rect, true
	case ImageDetail:
		if d.Rect != nil {
			return *d.Rect, true
		}
	}
	return layout.Rect{}, false
}

// Detail is the kind-specific metadata of a record. The set of
// implementations is closed.
type Detail interface {
	Kind() Kind
	detail()
}

// TextDetail positions a text group on its page.
type TextDetail struct {
	Rect layout.Rect `json:"rect"`
}

// TableDetail describes an extracted table and its exported artifacts.
type TableDetail struct {
	Rect      layout.Rect `json:"rect"`
	Caption   string      `json:"caption"`
	DataPath  string      `json:"data_path,omitempty"`
	ImagePath string      `json:"image_path,omitempty"`
	Rows      [][]string  `json:"rows,omitempty"`
}

// ImageDetail describes an embedded or standalone image. Rect is nil for
// images that are not placed on a page.
type ImageDetail struct {
	Rect      *layout.Rect `json:"rect,omitempty"`
	Caption   string       `json:"caption"`
	ImagePath string       `json:"image_path,omitempty"`
	Graph     bool         `json:"graph,omitempty"`
}

// SlideDetail describes one rendered presentation slide.
type SlideDetail struct {
	Caption   string `json:"caption"`
	ImagePath string `json:"image_path,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func (TextDetail) Kind() Kind  { return KindText }
func (TableDetail) Kind() Kind { return KindTable }
func (ImageDetail) Kind() Kind { return KindImage }
func (SlideDetail) Kind() Kind { return KindImage }

func (TextDetail) detail()  {}
func (TableDetail) detail() {}
func (ImageDetail) detail() {}
func (SlideDetail) detail() {}
