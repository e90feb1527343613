package pdfobj

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	entryFree = iota
	entryOffset
	entryInStream
)

type xrefEntry struct {
	typ       int
	offset    int64 // byte offset for entryOffset
	gen       int
	streamNum int // containing object stream for entryInStream
	streamIdx int // index within that stream
}

type xrefData struct {
	entries   map[int]xrefEntry
	trailer   Dict
	startXRef int64
	isStream  bool
}

// findStartXRef locates the offset recorded after the final startxref
// keyword, scanning the file tail.
func findStartXRef(data []byte) (int64, error) {
	tail := data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref not found")
	}
	rest := strings.TrimSpace(string(tail[idx+len("startxref"):]))
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, fmt.Errorf("startxref offset missing")
	}
	offset, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad startxref offset: %w", err)
	}
	return offset, nil
}

// readXRef reads the full cross-reference information, following /Prev
// chains. Entries from newer sections shadow older ones; the newest
// trailer wins.
func readXRef(data []byte) (*xrefData, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}

	x := &xrefData{
		entries:   make(map[int]xrefEntry),
		startXRef: start,
	}

	offset := start
	seen := make(map[int64]bool)
	first := true
	for offset >= 0 {
		if seen[offset] {
			return nil, fmt.Errorf("cyclic xref chain at offset %d", offset)
		}
		seen[offset] = true

		trailer, err := readXRefSection(data, offset, x, first)
		if err != nil {
			return nil, err
		}
		if first {
			x.trailer = trailer
			first = false
		}

		// Hybrid files point at an additional xref stream.
		if stm, ok := asInt(trailer["XRefStm"]); ok {
			if _, err := readXRefSection(data, stm, x, false); err != nil {
				return nil, fmt.Errorf("hybrid xref stream: %w", err)
			}
		}

		prev, ok := asInt(trailer["Prev"])
		if !ok {
			break
		}
		offset = prev
	}
	return x, nil
}

func readXRefSection(data []byte, offset int64, x *xrefData, newest bool) (Dict, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("xref offset %d out of range", offset)
	}
	p := &parser{data: data, pos: int(offset)}
	p.skipSpace()
	if bytes.HasPrefix(data[p.pos:], []byte("xref")) {
		return readXRefTable(p, x)
	}
	if newest {
		x.isStream = true
	}
	return readXRefStream(p, offset, x)
}

// readXRefTable parses a classic "xref" section and its trailer.
func readXRefTable(p *parser, x *xrefData) (Dict, error) {
	if err := p.expect("xref"); err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if bytes.HasPrefix(p.data[p.pos:], []byte("trailer")) {
			break
		}
		start, isInt, err := p.readNumber()
		if err != nil || !isInt {
			return nil, fmt.Errorf("bad xref subsection header at offset %d", p.pos)
		}
		p.skipSpace()
		count, isInt, err := p.readNumber()
		if err != nil || !isInt {
			return nil, fmt.Errorf("bad xref subsection count at offset %d", p.pos)
		}
		for i := int64(0); i < int64(count); i++ {
			p.skipSpace()
			off, _, err := p.readNumber()
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			gen, _, err := p.readNumber()
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			kind := p.peek()
			p.pos++
			num := int(start) + int(i)
			if _, exists := x.entries[num]; exists {
				continue // newer section already defined this object
			}
			switch kind {
			case 'n':
				x.entries[num] = xrefEntry{typ: entryOffset, offset: int64(off), gen: int(gen)}
			case 'f':
				x.entries[num] = xrefEntry{typ: entryFree}
			default:
				return nil, fmt.Errorf("bad xref entry kind %q", kind)
			}
		}
	}
	if err := p.expect("trailer"); err != nil {
		return nil, err
	}
	obj, err := p.parseObject()
	if err != nil {
		return nil, err
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, fmt.Errorf("trailer is not a dictionary")
	}
	return trailer, nil
}

// readXRefStream parses a PDF 1.5 cross-reference stream.
func readXRefStream(p *parser, offset int64, x *xrefData) (Dict, error) {
	_, obj, err := p.parseIndirectAt(offset)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(Stream)
	if !ok {
		return nil, fmt.Errorf("object at xref offset %d is not a stream", offset)
	}
	if t, _ := stm.Dict["Type"].(Name); t != "XRef" {
		return nil, fmt.Errorf("object at xref offset %d is not an XRef stream", offset)
	}

	decoded, err := decodeStream(stm)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}

	wArr, ok := stm.Dict["W"].(Array)
	if !ok || len(wArr) < 3 {
		return nil, fmt.Errorf("xref stream missing /W")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		v, ok := asInt(wArr[i])
		if !ok {
			return nil, fmt.Errorf("bad /W entry")
		}
		w[i] = int(v)
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, fmt.Errorf("zero-width xref rows")
	}

	size, _ := asInt(stm.Dict["Size"])
	var index []int64
	if idxArr, ok := stm.Dict["Index"].(Array); ok {
		for _, it := range idxArr {
			v, ok := asInt(it)
			if !ok {
				return nil, fmt.Errorf("bad /Index entry")
			}
			index = append(index, v)
		}
	} else {
		index = []int64{0, size}
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for n := int64(0); n < count; n++ {
			if pos+rowLen > len(decoded) {
				return nil, fmt.Errorf("xref stream data truncated")
			}
			row := decoded[pos : pos+rowLen]
			pos += rowLen

			typ := int64(1) // default when W[0] == 0
			if w[0] > 0 {
				typ = beInt(row[:w[0]])
			}
			f2 := beInt(row[w[0] : w[0]+w[1]])
			f3 := beInt(row[w[0]+w[1]:])

			num := int(start + n)
			if _, exists := x.entries[num]; exists {
				continue
			}
			switch typ {
			case 0:
				x.entries[num] = xrefEntry{typ: entryFree}
			case 1:
				x.entries[num] = xrefEntry{typ: entryOffset, offset: f2, gen: int(f3)}
			case 2:
				x.entries[num] = xrefEntry{typ: entryInStream, streamNum: int(f2), streamIdx: int(f3)}
			}
		}
	}
	return stm.Dict, nil
}

func beInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// decodeStream decodes a stream's raw data. Only FlateDecode (with
// optional PNG predictors) and unfiltered streams are supported, which
// covers cross-reference and object streams in practice.
func decodeStream(s Stream) ([]byte, error) {
	filter := s.Dict["Filter"]
	switch f := filter.(type) {
	case nil:
		return s.Raw, nil
	case Name:
		if f != "FlateDecode" {
			return nil, fmt.Errorf("unsupported stream filter /%s", f)
		}
	case Array:
		if len(f) != 1 {
			return nil, fmt.Errorf("unsupported filter chain")
		}
		if n, ok := f[0].(Name); !ok || n != "FlateDecode" {
			return nil, fmt.Errorf("unsupported stream filter %v", f[0])
		}
	default:
		return nil, fmt.Errorf("unsupported filter object %T", filter)
	}

	zr, err := zlib.NewReader(bytes.NewReader(s.Raw))
	if err != nil {
		return nil, fmt.Errorf("flate: %w", err)
	}
	defer zr.Close()
	decoded, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("flate: %w", err)
	}

	parms, ok := asDict(s.Dict["DecodeParms"])
	if !ok {
		return decoded, nil
	}
	predictor, _ := asInt(parms["Predictor"])
	if predictor < 2 {
		return decoded, nil
	}
	columns := int64(1)
	if v, ok := asInt(parms["Columns"]); ok {
		columns = v
	}
	colors := int64(1)
	if v, ok := asInt(parms["Colors"]); ok {
		colors = v
	}
	bpc := int64(8)
	if v, ok := asInt(parms["BitsPerComponent"]); ok {
		bpc = v
	}
	if predictor == 2 {
		return nil, fmt.Errorf("TIFF predictor not supported")
	}
	return pngPredictor(decoded, int(columns), int(colors), int(bpc))
}

// pngPredictor undoes PNG row filters (predictors 10-15).
func pngPredictor(data []byte, columns, colors, bpc int) ([]byte, error) {
	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc + 7) / 8
	if rowLen <= 0 {
		return nil, fmt.Errorf("bad predictor row length")
	}
	if len(data)%(rowLen+1) != 0 {
		return nil, fmt.Errorf("predictor data not row-aligned")
	}

	rows := len(data) / (rowLen + 1)
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	row := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*(rowLen+1)]
		copy(row, data[r*(rowLen+1)+1:(r+1)*(rowLen+1)])
		switch ft {
		case 0: // none
		case 1: // sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // average
			for i := 0; i < rowLen; i++ {
				left := 0
				if i >= bpp {
					left = int(row[i-bpp])
				}
				row[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft int
				if i >= bpp {
					left = int(row[i-bpp])
					upLeft = int(prev[i-bpp])
				}
				row[i] += byte(paeth(left, int(prev[i]), upLeft))
			}
		default:
			return nil, fmt.Errorf("unknown PNG filter type %d", ft)
		}
		out = append(out, row...)
		copy(prev, row)
	}
	return out, nil
}

func paeth(a, b, c int) int {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
