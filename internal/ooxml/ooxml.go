// Package ooxml reads the parts and relationships of Office Open XML
// packages (PPTX, DOCX).
package ooxml

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// Package is an open OOXML zip with its parts indexed by name.
type Package struct {
	r     *zip.ReadCloser
	parts map[string]*zip.File
}

// Open opens the package at path.
func Open(p string) (*Package, error) {
	r, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	parts := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		parts[f.Name] = f
	}
	return &Package{r: r, parts: parts}, nil
}

func (p *Package) Close() error { return p.r.Close() }

// Files lists the package parts in archive order.
func (p *Package) Files() []*zip.File { return p.r.File }

// Has reports whether the package contains the named part.
func (p *Package) Has(name string) bool { return p.parts[name] != nil }

// Part returns the content of the named part.
func (p *Package) Part(name string) ([]byte, error) {
	f := p.parts[name]
	if f == nil {
		return nil, fmt.Errorf("%s not found in package", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Relationship is one entry of a .rels part.
type Relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

type relationships struct {
	XMLName xml.Name       `xml:"Relationships"`
	Rels    []Relationship `xml:"Relationship"`
}

// Rels returns the relationships of part, or nil when it has none or they
// cannot be read.
func (p *Package) Rels(part string) []Relationship {
	data, err := p.Part(RelsPath(part))
	if err != nil {
		return nil
	}
	var rels relationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil
	}
	return rels.Rels
}

// RelsPath returns the relationships part of a part:
// ppt/slides/slide1.xml -> ppt/slides/_rels/slide1.xml.rels.
func RelsPath(part string) string {
	dir, file := path.Split(part)
	return dir + "_rels/" + file + ".rels"
}

// Resolve resolves a relationship target relative to the part owning it.
func Resolve(part, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(part), target))
}
