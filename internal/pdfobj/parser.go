package pdfobj

import (
	"bytes"
	"fmt"
	"strconv"
)

// parser is a recursive-descent reader over the raw file bytes.
type parser struct {
	data []byte
	pos  int
	// resolveLength dereferences an indirect /Length when slicing
	// stream data. Nil outside full-file parsing.
	resolveLength func(Ref) (int64, bool)
}

func isWhite(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isWhite(c) && !isDelim(c) }

func (p *parser) eof() bool { return p.pos >= len(p.data) }

func (p *parser) skipSpace() {
	for !p.eof() {
		c := p.data[p.pos]
		if isWhite(c) {
			p.pos++
			continue
		}
		if c == '%' { // comment runs to end of line
			for !p.eof() && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
			continue
		}
		return
	}
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.data[p.pos]
}

func (p *parser) readKeyword() string {
	start := p.pos
	for !p.eof() && isRegular(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

func (p *parser) expect(keyword string) error {
	p.skipSpace()
	if got := p.readKeyword(); got != keyword {
		return fmt.Errorf("expected %q at offset %d, found %q", keyword, p.pos, got)
	}
	return nil
}

// parseObject reads the next object value.
func (p *parser) parseObject() (Object, error) {
	p.skipSpace()
	if p.eof() {
		return nil, fmt.Errorf("unexpected end of data")
	}
	switch c := p.data[p.pos]; {
	case c == '<':
		if p.pos+1 < len(p.data) && p.data[p.pos+1] == '<' {
			return p.parseDict()
		}
		return p.parseHexString()
	case c == '(':
		return p.parseLiteralString()
	case c == '/':
		return p.parseName()
	case c == '[':
		return p.parseArray()
	case c == '+' || c == '-' || c == '.' || c >= '0' && c <= '9':
		return p.parseNumberOrRef()
	default:
		switch kw := p.readKeyword(); kw {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null{}, nil
		default:
			return nil, fmt.Errorf("unexpected token %q at offset %d", kw, p.pos)
		}
	}
}

func (p *parser) parseName() (Name, error) {
	p.pos++ // consume '/'
	var out []byte
	for !p.eof() && isRegular(p.data[p.pos]) {
		c := p.data[p.pos]
		if c == '#' && p.pos+2 < len(p.data) {
			if v, err := strconv.ParseUint(string(p.data[p.pos+1:p.pos+3]), 16, 8); err == nil {
				out = append(out, byte(v))
				p.pos += 3
				continue
			}
		}
		out = append(out, c)
		p.pos++
	}
	return Name(out), nil
}

func (p *parser) parseLiteralString() (String, error) {
	p.pos++ // consume '('
	var out []byte
	depth := 1
	for !p.eof() {
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '\\':
			if p.eof() {
				return nil, fmt.Errorf("unterminated string escape")
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\n': // line continuation
			case '\r':
				if !p.eof() && p.data[p.pos] == '\n' {
					p.pos++
				}
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && !p.eof(); i++ {
						d := p.data[p.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						p.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return String(out), nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return nil, fmt.Errorf("unterminated literal string")
}

func (p *parser) parseHexString() (String, error) {
	p.pos++ // consume '<'
	var out []byte
	var hi = -1
	for !p.eof() {
		c := p.data[p.pos]
		p.pos++
		if c == '>' {
			if hi >= 0 {
				out = append(out, byte(hi<<4))
			}
			return String(out), nil
		}
		if isWhite(c) {
			continue
		}
		v := hexVal(c)
		if v < 0 {
			return nil, fmt.Errorf("bad hex digit %q", c)
		}
		if hi < 0 {
			hi = v
		} else {
			out = append(out, byte(hi<<4|v))
			hi = -1
		}
	}
	return nil, fmt.Errorf("unterminated hex string")
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func (p *parser) parseArray() (Array, error) {
	p.pos++ // consume '['
	var out Array
	for {
		p.skipSpace()
		if p.eof() {
			return nil, fmt.Errorf("unterminated array")
		}
		if p.data[p.pos] == ']' {
			p.pos++
			return out, nil
		}
		obj, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
}

func (p *parser) parseDict() (Object, error) {
	p.pos += 2 // consume '<<'
	d := Dict{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, fmt.Errorf("unterminated dictionary")
		}
		if bytes.HasPrefix(p.data[p.pos:], []byte(">>")) {
			p.pos += 2
			break
		}
		if p.data[p.pos] != '/' {
			return nil, fmt.Errorf("expected name key at offset %d", p.pos)
		}
		key, err := p.parseName()
		if err != nil {
			return nil, err
		}
		val, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		d[key] = val
	}

	// A stream keyword after the dict turns it into a stream object.
	save := p.pos
	p.skipSpace()
	if !bytes.HasPrefix(p.data[p.pos:], []byte("stream")) {
		p.pos = save
		return d, nil
	}
	p.pos += len("stream")
	if p.peek() == '\r' {
		p.pos++
	}
	if p.peek() == '\n' {
		p.pos++
	}
	length, ok := p.streamLength(d)
	if !ok || p.pos+int(length) > len(p.data) {
		// Fall back to scanning for endstream.
		end := bytes.Index(p.data[p.pos:], []byte("endstream"))
		if end < 0 {
			return nil, fmt.Errorf("unterminated stream")
		}
		length = int64(end)
	}
	raw := p.data[p.pos : p.pos+int(length)]
	p.pos += int(length)
	p.skipSpace()
	p.readKeyword() // endstream
	return Stream{Dict: d, Raw: raw}, nil
}

func (p *parser) streamLength(d Dict) (int64, bool) {
	switch v := d["Length"].(type) {
	case Integer:
		return int64(v), true
	case Ref:
		if p.resolveLength != nil {
			return p.resolveLength(v)
		}
	}
	return 0, false
}

// parseNumberOrRef distinguishes "12", "12.5" and "12 0 R".
func (p *parser) parseNumberOrRef() (Object, error) {
	first, isInt, err := p.readNumber()
	if err != nil {
		return nil, err
	}
	if !isInt {
		return Real(first), nil
	}

	save := p.pos
	p.skipSpace()
	if p.eof() || p.data[p.pos] < '0' || p.data[p.pos] > '9' {
		p.pos = save
		return Integer(first), nil
	}
	gen, genInt, err := p.readNumber()
	if err != nil || !genInt {
		p.pos = save
		return Integer(first), nil
	}
	p.skipSpace()
	if !p.eof() && p.data[p.pos] == 'R' && (p.pos+1 >= len(p.data) || !isRegular(p.data[p.pos+1])) {
		p.pos++
		return Ref{Num: int(first), Gen: int(gen)}, nil
	}
	p.pos = save
	return Integer(first), nil
}

func (p *parser) readNumber() (float64, bool, error) {
	start := p.pos
	isInt := true
	if c := p.peek(); c == '+' || c == '-' {
		p.pos++
	}
	for !p.eof() {
		c := p.data[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
		} else if c == '.' {
			isInt = false
			p.pos++
		} else {
			break
		}
	}
	if p.pos == start {
		return 0, false, fmt.Errorf("expected number at offset %d", start)
	}
	v, err := strconv.ParseFloat(string(p.data[start:p.pos]), 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad number at offset %d: %w", start, err)
	}
	return v, isInt, nil
}

// parseIndirectAt reads "N G obj ... endobj" starting at offset.
func (p *parser) parseIndirectAt(offset int64) (Ref, Object, error) {
	if offset < 0 || offset >= int64(len(p.data)) {
		return Ref{}, nil, fmt.Errorf("object offset %d out of range", offset)
	}
	p.pos = int(offset)
	p.skipSpace()
	num, numInt, err := p.readNumber()
	if err != nil || !numInt {
		return Ref{}, nil, fmt.Errorf("expected object number at offset %d", offset)
	}
	p.skipSpace()
	gen, genInt, err := p.readNumber()
	if err != nil || !genInt {
		return Ref{}, nil, fmt.Errorf("expected generation at offset %d", offset)
	}
	if err := p.expect("obj"); err != nil {
		return Ref{}, nil, err
	}
	obj, err := p.parseObject()
	if err != nil {
		return Ref{}, nil, err
	}
	return Ref{Num: int(num), Gen: int(gen)}, obj, nil
}
