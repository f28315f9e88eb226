package pdfsource

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/ledongthuc/pdf"
	"golang.org/x/image/ccitt"

	"github.com/brunobiangulo/mmingest/layout"
)

// ImageRef identifies one placement of a raster image on a page. Ordinal
// counts placements on the page from 1 in drawing order.
type ImageRef struct {
	Ordinal int
	Name    string
	Rect    layout.Rect
	Pixels  image.Point

	xobj pdf.Value
}

// Image is encoded raster data ready to persist or send to a vision model.
type Image struct {
	Data   []byte
	Format string // "png", "jpeg" or "jp2"
}

// Ext returns the file extension for the image format.
func (im Image) Ext() string {
	switch im.Format {
	case "jpeg":
		return "jpg"
	case "":
		return "bin"
	}
	return im.Format
}

// Images lists the raster images drawn on the page, including those drawn
// inside form XObjects.
func (p *Page) Images() ([]ImageRef, error) {
	scan, err := p.content()
	if err != nil {
		return nil, err
	}
	refs := make([]ImageRef, 0, len(scan.Placements))
	for i, pl := range scan.Placements {
		refs = append(refs, ImageRef{
			Ordinal: i + 1,
			Name:    pl.Name,
			Rect:    pl.Rect,
			Pixels: image.Point{
				X: int(pl.XObj.Key("Width").Int64()),
				Y: int(pl.XObj.Key("Height").Int64()),
			},
			xobj: pl.XObj,
		})
	}
	return refs, nil
}

// ImageData returns the bytes of a placed image. JPEG and JPEG 2000 streams
// are returned as stored; other encodings are decoded to samples and
// re-encoded as PNG.
func (p *Page) ImageData(ref ImageRef) (img Image, err error) {
	if ref.xobj.IsNull() {
		return Image{}, ErrNoImage
	}
	defer func() {
		if rec := recover(); rec != nil {
			img, err = Image{}, fmt.Errorf("%w: %s: %v", ErrUnsupported, ref.Name, rec)
		}
	}()

	v := ref.xobj
	filters := filterNames(v.Key("Filter"))
	length := v.Key("Length").Int64()

	for _, f := range filters {
		switch f {
		case "DCTDecode":
			data, ok := p.doc.rawStreams().find(f, ref.Pixels.X, ref.Pixels.Y, length)
			if !ok || !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
				return Image{}, fmt.Errorf("%w: %s: jpeg stream not readable", ErrUnsupported, ref.Name)
			}
			return Image{Data: data, Format: "jpeg"}, nil
		case "JPXDecode":
			data, ok := p.doc.rawStreams().find(f, ref.Pixels.X, ref.Pixels.Y, length)
			if !ok {
				return Image{}, fmt.Errorf("%w: %s: jpx stream not readable", ErrUnsupported, ref.Name)
			}
			return Image{Data: data, Format: "jp2"}, nil
		case "CCITTFaxDecode":
			data, ok := p.doc.rawStreams().find(f, ref.Pixels.X, ref.Pixels.Y, length)
			if !ok {
				return Image{}, fmt.Errorf("%w: %s: fax stream not readable", ErrUnsupported, ref.Name)
			}
			return decodeFax(data, v, ref.Pixels)
		}
	}

	rc := v.Reader()
	defer rc.Close()
	samples, err := io.ReadAll(rc)
	if err != nil {
		return Image{}, fmt.Errorf("reading image %s: %w", ref.Name, err)
	}

	decoded, err := decodeSamples(samples, v, ref.Pixels)
	if err != nil {
		return Image{}, fmt.Errorf("decoding image %s: %w", ref.Name, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return Image{}, fmt.Errorf("encoding image %s: %w", ref.Name, err)
	}
	return Image{Data: buf.Bytes(), Format: "png"}, nil
}

func filterNames(v pdf.Value) []string {
	switch v.Kind() {
	case pdf.Name:
		return []string{v.Name()}
	case pdf.Array:
		names := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			names = append(names, v.Index(i).Name())
		}
		return names
	}
	return nil
}

// colorModel describes how to turn raw samples into colours.
type colorModel struct {
	Components int
	Indexed    bool
	Base       int
	HiVal      int
	Lookup     []byte
}

func resolveColorSpace(cs pdf.Value) colorModel {
	switch cs.Kind() {
	case pdf.Name:
		return deviceModel(cs.Name())
	case pdf.Array:
		if cs.Len() == 0 {
			break
		}
		switch family := cs.Index(0).Name(); family {
		case "ICCBased":
			if n := int(cs.Index(1).Key("N").Int64()); n > 0 {
				return colorModel{Components: n}
			}
			return colorModel{Components: 3}
		case "Indexed", "I":
			base := resolveColorSpace(cs.Index(1))
			lookup := cs.Index(3)
			var table []byte
			switch lookup.Kind() {
			case pdf.String:
				table = []byte(lookup.RawString())
			case pdf.Stream:
				rc := lookup.Reader()
				table, _ = io.ReadAll(rc)
				rc.Close()
			}
			return colorModel{
				Components: 1,
				Indexed:    true,
				Base:       base.Components,
				HiVal:      int(cs.Index(2).Int64()),
				Lookup:     table,
			}
		default:
			return deviceModel(family)
		}
	}
	return colorModel{Components: 1}
}

func deviceModel(name string) colorModel {
	switch name {
	case "DeviceRGB", "RGB", "CalRGB", "Lab":
		return colorModel{Components: 3}
	case "DeviceCMYK", "CMYK":
		return colorModel{Components: 4}
	}
	return colorModel{Components: 1}
}

// decodeSamples converts unfiltered image samples to an image.
func decodeSamples(data []byte, v pdf.Value, size image.Point) (image.Image, error) {
	w, h := size.X, size.Y
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", w, h)
	}

	mask := v.Key("ImageMask").Bool()
	bpc := int(v.Key("BitsPerComponent").Int64())
	if bpc == 0 || mask {
		if mask {
			bpc = 1
		} else {
			bpc = 8
		}
	}
	cm := colorModel{Components: 1}
	if !mask {
		cm = resolveColorSpace(v.Key("ColorSpace"))
	}

	stride := (w*cm.Components*bpc + 7) / 8
	if len(data) < stride*h {
		return nil, fmt.Errorf("short image data: have %d bytes, need %d", len(data), stride*h)
	}

	maxVal := float64(int(1)<<bpc - 1)
	scale := func(s uint32) uint8 {
		if cm.Indexed {
			return uint8(s)
		}
		return uint8(float64(s) * 255 / maxVal)
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	comp := make([]uint8, cm.Components)
	for y := 0; y < h; y++ {
		row := data[y*stride : (y+1)*stride]
		for x := 0; x < w; x++ {
			for c := 0; c < cm.Components; c++ {
				comp[c] = scale(sample(row, x*cm.Components+c, bpc))
			}
			out.SetNRGBA(x, y, toNRGBA(comp, cm, mask))
		}
	}
	return out, nil
}

// sample reads the i-th bpc-bit value from a packed row.
func sample(row []byte, i, bpc int) uint32 {
	switch bpc {
	case 8:
		return uint32(row[i])
	case 16:
		return uint32(row[2*i])<<8 | uint32(row[2*i+1])
	}
	bit := i * bpc
	b := row[bit/8]
	shift := 8 - bpc - bit%8
	return uint32(b>>shift) & (1<<bpc - 1)
}

func toNRGBA(c []uint8, cm colorModel, mask bool) color.NRGBA {
	if mask {
		if c[0] == 0 {
			return color.NRGBA{A: 255}
		}
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	if cm.Indexed {
		n := cm.Base
		off := int(c[0]) * n
		if c[0] > uint8(cm.HiVal) || off+n > len(cm.Lookup) {
			return color.NRGBA{A: 255}
		}
		return toNRGBA(cm.Lookup[off:off+n], colorModel{Components: n}, false)
	}
	switch len(c) {
	case 3:
		return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}
	case 4:
		r, g, b := color.CMYKToRGB(c[0], c[1], c[2], c[3])
		return color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return color.NRGBA{R: c[0], G: c[0], B: c[0], A: 255}
}

// decodeFax expands CCITT G3/G4 data to a PNG.
func decodeFax(data []byte, v pdf.Value, size image.Point) (Image, error) {
	params := v.Key("DecodeParms")
	if params.Kind() == pdf.Array && params.Len() > 0 {
		params = params.Index(0)
	}
	cols := int(params.Key("Columns").Int64())
	if cols == 0 {
		cols = 1728
	}
	rows := int(params.Key("Rows").Int64())
	if rows == 0 {
		rows = size.Y
	}
	sf := ccitt.Group3
	if params.Key("K").Int64() < 0 {
		sf = ccitt.Group4
	}

	rd := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf, cols, rows,
		&ccitt.Options{Invert: params.Key("BlackIs1").Bool()})
	bits, err := io.ReadAll(rd)
	if err != nil {
		return Image{}, fmt.Errorf("decoding fax image: %w", err)
	}

	stride := (cols + 7) / 8
	if rows*stride > len(bits) {
		rows = len(bits) / stride
	}
	gray := image.NewGray(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if bits[y*stride+x/8]&(0x80>>(x%8)) != 0 {
				gray.Pix[y*gray.Stride+x] = 0xFF
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return Image{}, fmt.Errorf("encoding fax image: %w", err)
	}
	return Image{Data: buf.Bytes(), Format: "png"}, nil
}
