package pdfobj

import (
	"fmt"
)

// File is a parsed PDF file. It keeps the original bytes untouched so
// callers can append an incremental update section after them.
type File struct {
	data  []byte
	xref  *xrefData
	cache map[int]Object
}

// Open parses the cross-reference information of a PDF file. Object
// bodies are parsed lazily on access.
func Open(data []byte) (*File, error) {
	x, err := readXRef(data)
	if err != nil {
		return nil, err
	}
	if _, ok := x.trailer["Root"].(Ref); !ok {
		return nil, fmt.Errorf("trailer has no /Root")
	}
	return &File{data: data, xref: x, cache: make(map[int]Object)}, nil
}

// Data returns the original file bytes.
func (f *File) Data() []byte { return f.data }

// Trailer returns the newest trailer dictionary.
func (f *File) Trailer() Dict { return f.xref.trailer }

// StartXRef returns the byte offset of the newest xref section, used
// as /Prev when appending an update.
func (f *File) StartXRef() int64 { return f.xref.startXRef }

// XRefIsStream reports whether the newest xref section is a
// cross-reference stream rather than a classic table.
func (f *File) XRefIsStream() bool { return f.xref.isStream }

// Size returns the trailer /Size, the number past the highest object
// number in use.
func (f *File) Size() int64 {
	n, _ := asInt(f.xref.trailer["Size"])
	return n
}

// Object returns the indirect object with the given number.
func (f *File) Object(num int) (Object, error) {
	if obj, ok := f.cache[num]; ok {
		return obj, nil
	}
	entry, ok := f.xref.entries[num]
	if !ok || entry.typ == entryFree {
		return Null{}, nil
	}

	var obj Object
	switch entry.typ {
	case entryOffset:
		p := &parser{data: f.data, resolveLength: f.lengthResolver}
		ref, o, err := p.parseIndirectAt(entry.offset)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", num, err)
		}
		if ref.Num != num {
			return nil, fmt.Errorf("object %d: found %d at its offset", num, ref.Num)
		}
		obj = o
	case entryInStream:
		o, err := f.objectFromStream(entry.streamNum, entry.streamIdx, num)
		if err != nil {
			return nil, err
		}
		obj = o
	}
	f.cache[num] = obj
	return obj, nil
}

func (f *File) lengthResolver(r Ref) (int64, bool) {
	entry, ok := f.xref.entries[r.Num]
	if !ok || entry.typ != entryOffset {
		return 0, false
	}
	p := &parser{data: f.data}
	_, o, err := p.parseIndirectAt(entry.offset)
	if err != nil {
		return 0, false
	}
	return asInt(o)
}

// objectFromStream extracts a compressed object from an /ObjStm.
func (f *File) objectFromStream(streamNum, idx, wantNum int) (Object, error) {
	container, err := f.Object(streamNum)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	stm, ok := container.(Stream)
	if !ok {
		return nil, fmt.Errorf("object %d is not an object stream", streamNum)
	}
	if t, _ := stm.Dict["Type"].(Name); t != "ObjStm" {
		return nil, fmt.Errorf("object %d is not an object stream", streamNum)
	}
	decoded, err := decodeStream(stm)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	n, ok := asInt(stm.Dict["N"])
	if !ok {
		return nil, fmt.Errorf("object stream %d missing /N", streamNum)
	}
	first, ok := asInt(stm.Dict["First"])
	if !ok {
		return nil, fmt.Errorf("object stream %d missing /First", streamNum)
	}
	if idx < 0 || int64(idx) >= n {
		return nil, fmt.Errorf("object stream %d: index %d out of range", streamNum, idx)
	}

	// Header: N pairs of "objnum offset" before /First.
	hp := &parser{data: decoded}
	var num, off int64
	for i := 0; i <= idx; i++ {
		hp.skipSpace()
		v, isInt, err := hp.readNumber()
		if err != nil || !isInt {
			return nil, fmt.Errorf("object stream %d: bad header", streamNum)
		}
		num = int64(v)
		hp.skipSpace()
		v, isInt, err = hp.readNumber()
		if err != nil || !isInt {
			return nil, fmt.Errorf("object stream %d: bad header", streamNum)
		}
		off = int64(v)
	}
	if int(num) != wantNum {
		return nil, fmt.Errorf("object stream %d: slot %d holds object %d, want %d", streamNum, idx, num, wantNum)
	}

	op := &parser{data: decoded, pos: int(first + off)}
	return op.parseObject()
}

// Resolve follows indirect references until a direct object is
// reached.
func (f *File) Resolve(obj Object) (Object, error) {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(Ref)
		if !ok {
			return obj, nil
		}
		next, err := f.Object(ref.Num)
		if err != nil {
			return nil, err
		}
		obj = next
	}
	return nil, fmt.Errorf("reference chain too deep")
}

// ResolveDict resolves obj and asserts it is a dictionary (a bare
// Dict or a Stream's dictionary).
func (f *File) ResolveDict(obj Object) (Dict, error) {
	o, err := f.Resolve(obj)
	if err != nil {
		return nil, err
	}
	d, ok := asDict(o)
	if !ok {
		return nil, fmt.Errorf("expected dictionary, got %T", o)
	}
	return d, nil
}

// Page is a leaf of the page tree.
type Page struct {
	Ref  Ref
	Dict Dict
}

// Pages walks the page tree in document order and returns the leaf
// page objects.
func (f *File) Pages() ([]Page, error) {
	root, err := f.ResolveDict(f.xref.trailer["Root"])
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	pagesRef, ok := root["Pages"].(Ref)
	if !ok {
		return nil, fmt.Errorf("catalog has no /Pages reference")
	}
	var pages []Page
	seen := make(map[int]bool)
	if err := f.walkPages(pagesRef, seen, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func (f *File) walkPages(ref Ref, seen map[int]bool, out *[]Page) error {
	if seen[ref.Num] {
		return fmt.Errorf("cycle in page tree at object %d", ref.Num)
	}
	seen[ref.Num] = true

	node, err := f.ResolveDict(ref)
	if err != nil {
		return fmt.Errorf("page tree node %d: %w", ref.Num, err)
	}
	switch t, _ := node["Type"].(Name); t {
	case "Pages":
		kids, err := f.Resolve(node["Kids"])
		if err != nil {
			return err
		}
		arr, ok := kids.(Array)
		if !ok {
			return fmt.Errorf("page tree node %d: /Kids is not an array", ref.Num)
		}
		for _, kid := range arr {
			kidRef, ok := kid.(Ref)
			if !ok {
				return fmt.Errorf("page tree node %d: kid is not a reference", ref.Num)
			}
			if err := f.walkPages(kidRef, seen, out); err != nil {
				return err
			}
		}
		return nil
	case "Page":
		*out = append(*out, Page{Ref: ref, Dict: node})
		return nil
	default:
		return fmt.Errorf("page tree node %d has type /%s", ref.Num, t)
	}
}
