package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Element names the local counter a source id is built from.
type Element string

const (
	ElementBlock Element = "block"
	ElementTable Element = "table"
	ElementImage Element = "image"
	ElementSlide Element = "slide"
)

var elements = []Element{ElementBlock, ElementTable, ElementImage, ElementSlide}

// SourceID identifies a record within one processing run. It renders as
// "{document}-page{page}-{element}{ordinal}". A SourceID with an empty
// Element refers to a whole standalone file and renders as the bare
// document name.
type SourceID struct {
	Document string  `json:"document"`
	Page     int     `json:"page"`
	Element  Element `json:"element,omitempty"`
	Ordinal  int     `json:"ordinal"`
}

func (s SourceID) String() string {
	if s.Element == "" {
		return s.Document
	}
	return fmt.Sprintf("%s-page%d-%s%d", s.Document, s.Page, s.Element, s.Ordinal)
}

// MarshalText renders the id in its string form.
func (s SourceID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form.
func (s *SourceID) UnmarshalText(b []byte) error {
	id, err := ParseSourceID(string(b))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

// ParseSourceID inverts SourceID.String. The document name may itself
// contain "-page"; the last occurrence is taken as the separator. Strings
// that do not match the element form parse as a standalone document id.
func ParseSourceID(s string) (SourceID, error) {
	if s == "" {
		return SourceID{}, fmt.Errorf("record: empty source id")
	}

	i := strings.LastIndex(s, "-page")
	if i < 0 {
		return SourceID{Document: s}, nil
	}
	doc, rest := s[:i], s[i+len("-page"):]

	dash := strings.IndexByte(rest, '-')
	if dash <= 0 {
		return SourceID{Document: s}, nil
	}
	page, err := strconv.Atoi(rest[:dash])
	if err != nil {
		return SourceID{Document: s}, nil
	}
	tail := rest[dash+1:]

	for _, el := range elements {
		if !strings.HasPrefix(tail, string(el)) {
			continue
		}
		ord, err := strconv.Atoi(tail[len(el):])
		if err != nil {
			return SourceID{Document: s}, nil
		}
		return SourceID{Document: doc, Page: page, Element: el, Ordinal: ord}, nil
	}
	return SourceID{Document: s}, nil
}
