package pdfsource

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
)

// rawStream is an undecoded image stream located directly in the file.
type rawStream struct {
	Dict []byte
	Data []byte
}

// rawIndex locates image streams whose filters the PDF library cannot
// decode (DCT, JPX, CCITT). Their payloads are used verbatim or decoded
// here. Only unencrypted files yield usable data.
type rawIndex struct {
	streams []rawStream
}

var (
	reImageSubtype = regexp.MustCompile(`/Subtype\s*/Image`)
	reWidth        = regexp.MustCompile(`/Width\s+(\d+)`)
	reHeight       = regexp.MustCompile(`/Height\s+(\d+)`)
)

func buildRawIndex(src io.ReaderAt, size int64) *rawIndex {
	idx := &rawIndex{}
	if size <= 0 {
		return idx
	}
	buf := make([]byte, size)
	n, err := src.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return idx
	}
	buf = buf[:n]

	kw := []byte("stream")
	end := []byte("endstream")
	for off := 0; off < len(buf); {
		i := bytes.Index(buf[off:], kw)
		if i < 0 {
			break
		}
		pos := off + i
		off = pos + len(kw)
		if pos > 0 && buf[pos-1] == 'd' {
			continue // tail of "endstream"
		}

		start := off
		if start < len(buf) && buf[start] == '\r' {
			start++
		}
		if start < len(buf) && buf[start] == '\n' {
			start++
		}

		objStart := bytes.LastIndex(buf[:pos], []byte(" obj"))
		if objStart < 0 {
			continue
		}
		dict := buf[objStart:pos]
		if !reImageSubtype.Match(dict) {
			continue
		}

		j := bytes.Index(buf[start:], end)
		if j < 0 {
			break
		}
		data := bytes.TrimRight(buf[start:start+j], "\r\n")
		idx.streams = append(idx.streams, rawStream{Dict: dict, Data: data})
		off = start + j + len(end)
	}
	return idx
}

// find returns the payload of the image stream with the given filter,
// pixel size and declared length. When no stream matches the length
// exactly, a stream matching the other criteria is used only if it is the
// sole candidate.
func (x *rawIndex) find(filter string, width, height int, length int64) ([]byte, bool) {
	var (
		fallback   []byte
		candidates int
	)
	for _, s := range x.streams {
		if !bytes.Contains(s.Dict, []byte("/"+filter)) {
			continue
		}
		if dictInt(reWidth, s.Dict) != width || dictInt(reHeight, s.Dict) != height {
			continue
		}
		if int64(len(s.Data)) == length {
			return s.Data, true
		}
		candidates++
		fallback = s.Data
	}
	if candidates != 1 {
		return nil, false
	}
	return fallback, true
}

func dictInt(re *regexp.Regexp, dict []byte) int {
	m := re.FindSubmatch(dict)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return -1
	}
	return n
}

func (d *Document) rawStreams() *rawIndex {
	d.rawOnce.Do(func() {
		d.raw = buildRawIndex(d.src, d.size)
	})
	return d.raw
}
