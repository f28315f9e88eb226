package slides

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/brunobiangulo/mmingest/internal/ooxml"
)

// Slide is the text content of one slide.
type Slide struct {
	Number int    // position in the deck, from 1
	Text   string // shape texts joined by a space
	Notes  string // speaker notes
}

// ReadDeck reads the slides of a PPTX file in presentation order.
func ReadDeck(pptxPath string) ([]Slide, error) {
	pkg, err := ooxml.Open(pptxPath)
	if err != nil {
		return nil, fmt.Errorf("opening PPTX: %w", err)
	}
	defer pkg.Close()

	order := presentationOrder(pkg)
	if len(order) == 0 {
		order = slidesByNumber(pkg.Files())
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("no slides found in PPTX")
	}

	deck := make([]Slide, 0, len(order))
	for i, name := range order {
		data, err := pkg.Part(name)
		if err != nil {
			return nil, err
		}
		s := Slide{Number: i + 1, Text: slideText(data)}

		for _, rel := range pkg.Rels(name) {
			if strings.HasSuffix(rel.Type, "/notesSlide") {
				notes, err := pkg.Part(ooxml.Resolve(name, rel.Target))
				if err == nil {
					s.Notes = notesText(notes)
				}
				break
			}
		}
		deck = append(deck, s)
	}
	return deck, nil
}

// ---------------------------------------------------------------------------
// Package parts
// ---------------------------------------------------------------------------

type presentation struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

// presentationOrder lists slide part names in the order of the
// presentation's slide id list.
func presentationOrder(pkg *ooxml.Package) []string {
	data, err := pkg.Part("ppt/presentation.xml")
	if err != nil {
		return nil
	}
	var pres presentation
	if err := xml.Unmarshal(data, &pres); err != nil {
		return nil
	}

	targets := make(map[string]string)
	for _, rel := range pkg.Rels("ppt/presentation.xml") {
		targets[rel.ID] = rel.Target
	}

	var order []string
	for _, id := range pres.SlideIDs {
		target, ok := targets[id.RID]
		if !ok {
			continue
		}
		name := ooxml.Resolve("ppt/presentation.xml", target)
		if pkg.Has(name) {
			order = append(order, name)
		}
	}
	return order
}

// slidesByNumber lists ppt/slides/slideN.xml parts sorted by N.
func slidesByNumber(zf []*zip.File) []string {
	nums := make(map[int]string)
	for _, f := range zf {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		var n int
		fmt.Sscanf(strings.TrimPrefix(f.Name, "ppt/slides/slide"), "%d", &n)
		if n > 0 {
			nums[n] = f.Name
		}
	}
	keys := make([]int, 0, len(nums))
	for n := range nums {
		keys = append(keys, n)
	}
	sort.Ints(keys)

	out := make([]string, len(keys))
	for i, n := range keys {
		out[i] = nums[n]
	}
	return out
}

// ---------------------------------------------------------------------------
// Slide XML
// ---------------------------------------------------------------------------

type slideXML struct {
	CSld struct {
		SpTree struct {
			SPs []shape `xml:"sp"`
		} `xml:"spTree"`
	} `xml:"cSld"`
}

type shape struct {
	NvSpPr struct {
		NvPr struct {
			Ph *struct {
				Type string `xml:"type,attr"`
			} `xml:"ph"`
		} `xml:"nvPr"`
	} `xml:"nvSpPr"`
	TxBody *struct {
		Paras []struct {
			Runs []struct {
				Text string `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"txBody"`
}

func (s shape) text() string {
	if s.TxBody == nil {
		return ""
	}
	paras := make([]string, 0, len(s.TxBody.Paras))
	for _, p := range s.TxBody.Paras {
		var line strings.Builder
		for _, r := range p.Runs {
			line.WriteString(r.Text)
		}
		paras = append(paras, line.String())
	}
	return strings.TrimSpace(strings.Join(paras, "\n"))
}

// slideText joins the non-empty shape texts of a slide with a space.
func slideText(data []byte) string {
	var s slideXML
	if err := xml.Unmarshal(data, &s); err != nil {
		return ""
	}
	var parts []string
	for _, sp := range s.CSld.SpTree.SPs {
		if t := sp.text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// notesText returns the body placeholder text of a notes slide.
func notesText(data []byte) string {
	var s slideXML
	if err := xml.Unmarshal(data, &s); err != nil {
		return ""
	}
	for _, sp := range s.CSld.SpTree.SPs {
		if ph := sp.NvSpPr.NvPr.Ph; ph != nil && ph.Type == "body" {
			return sp.text()
		}
	}
	return ""
}
