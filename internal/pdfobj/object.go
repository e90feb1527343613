// Package pdfobj is a minimal PDF object layer: enough parsing to
// locate page objects in an existing file, and enough serialization to
// append an incremental update. It deliberately covers only what the
// annotation applicator needs; content streams are never interpreted.
package pdfobj

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"
)

// Object is any PDF object value.
type Object interface {
	write(buf *bytes.Buffer)
}

// Null is the PDF null object.
type Null struct{}

func (Null) write(buf *bytes.Buffer) { buf.WriteString("null") }

// Bool is a PDF boolean.
type Bool bool

func (b Bool) write(buf *bytes.Buffer) {
	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
}

// Integer is a PDF integer.
type Integer int64

func (i Integer) write(buf *bytes.Buffer) { buf.WriteString(strconv.FormatInt(int64(i), 10)) }

// Real is a PDF real number.
type Real float64

func (r Real) write(buf *bytes.Buffer) {
	buf.WriteString(strconv.FormatFloat(float64(r), 'f', -1, 64))
}

// String is a PDF string. The bytes are the decoded value.
type String []byte

func (s String) write(buf *bytes.Buffer) {
	buf.WriteByte('(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

// Name is a PDF name (without the leading slash).
type Name string

func (n Name) write(buf *bytes.Buffer) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c <= ' ' || c == '/' || c == '#' || c == '(' || c == ')' || c == '<' || c == '>' || c == '[' || c == ']' {
			fmt.Fprintf(buf, "#%02X", c)
		} else {
			buf.WriteByte(c)
		}
	}
}

// Array is a PDF array.
type Array []Object

func (a Array) write(buf *bytes.Buffer) {
	buf.WriteByte('[')
	for i, item := range a {
		if i > 0 {
			buf.WriteByte(' ')
		}
		item.write(buf)
	}
	buf.WriteByte(']')
}

// Dict is a PDF dictionary. Serialization orders keys alphabetically
// so output is deterministic.
type Dict map[Name]Object

func (d Dict) write(buf *bytes.Buffer) {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteByte(' ')
		Name(k).write(buf)
		buf.WriteByte(' ')
		d[Name(k)].write(buf)
	}
	buf.WriteString(" >>")
}

// Ref is an indirect object reference.
type Ref struct {
	Num int
	Gen int
}

func (r Ref) write(buf *bytes.Buffer) { fmt.Fprintf(buf, "%d %d R", r.Num, r.Gen) }

// Stream is a PDF stream; Raw holds the still-encoded data exactly as
// stored in the file.
type Stream struct {
	Dict Dict
	Raw  []byte
}

func (s Stream) write(buf *bytes.Buffer) {
	d := Dict{}
	for k, v := range s.Dict {
		d[k] = v
	}
	d["Length"] = Integer(len(s.Raw))
	d.write(buf)
	buf.WriteString("\nstream\n")
	buf.Write(s.Raw)
	buf.WriteString("\nendstream")
}

// Serialize renders any object to its PDF syntax.
func Serialize(obj Object) []byte {
	var buf bytes.Buffer
	obj.write(&buf)
	return buf.Bytes()
}

// TextString encodes a Go string as a PDF text string: plain latin
// text stays a literal string, anything beyond is encoded UTF-16BE
// with a byte order mark, which viewers require for non-ASCII
// annotation contents.
func TextString(s string) String {
	ascii := true
	for _, r := range s {
		if r > 0x7e || r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			ascii = false
			break
		}
	}
	if ascii {
		return String(s)
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2+2*len(units))
	out = append(out, 0xfe, 0xff)
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return String(out)
}

// Text decodes the string as a pdf text string: UTF-16BE when the BOM
// is present, raw bytes otherwise.
func (s String) Text() string {
	b := []byte(s)
	if len(b) >= 2 && b[0] == 0xfe && b[1] == 0xff {
		units := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	return string(b)
}

// Helpers used when reading parsed structures.

func asDict(obj Object) (Dict, bool) {
	switch v := obj.(type) {
	case Dict:
		return v, true
	case Stream:
		return v.Dict, true
	}
	return nil, false
}

func asInt(obj Object) (int64, bool) {
	switch v := obj.(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	}
	return 0, false
}

func asNumber(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case Integer:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}
