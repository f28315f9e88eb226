package record

import (
	"encoding/json"
	"fmt"
)

// wireRecord is the JSON shape of a Record. DetailType discriminates the
// Detail implementation on decode.
type wireRecord struct {
	Text       string          `json:"text"`
	Kind       Kind            `json:"kind"`
	Source     SourceID        `json:"source"`
	Page       int             `json:"page"`
	DetailType string          `json:"detail_type,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// DetailType returns the discriminator stored alongside an encoded detail.
func DetailType(d Detail) string {
	switch d.(type) {
	case TextDetail:
		return "text"
	case TableDetail:
		return "table"
	case ImageDetail:
		return "image"
	case SlideDetail:
		return "slide"
	}
	return ""
}

// DecodeDetail decodes a detail previously encoded with its DetailType.
func DecodeDetail(detailType string, data []byte) (Detail, error) {
	if detailType == "" || len(data) == 0 {
		return nil, nil
	}
	var (
		d   Detail
		err error
	)
	switch detailType {
	case "text":
		var v TextDetail
		err = json.Unmarshal(data, &v)
		d = v
	case "table":
		var v TableDetail
		err = json.Unmarshal(data, &v)
		d = v
	case "image":
		var v ImageDetail
		err = json.Unmarshal(data, &v)
		d = v
	case "slide":
		var v SlideDetail
		err = json.Unmarshal(data, &v)
		d = v
	default:
		return nil, fmt.Errorf("record: unknown detail type %q", detailType)
	}
	if err != nil {
		return nil, fmt.Errorf("record: decoding %s detail: %w", detailType, err)
	}
	return d, nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		Text:   r.Text,
		Kind:   r.Kind(),
		Source: r.Source,
		Page:   r.Page,
	}
	if r.Detail != nil {
		raw, err := json.Marshal(r.Detail)
		if err != nil {
			return nil, err
		}
		w.DetailType = DetailType(r.Detail)
		w.Detail = raw
	}
	return json.Marshal(w)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	d, err := DecodeDetail(w.DetailType, w.Detail)
	if err != nil {
		return err
	}
	*r = Record{Text: w.Text, Source: w.Source, Page: w.Page, Detail: d}
	return nil
}
