package pdfobj

import (
	"bytes"
	"testing"

	"github.com/jbgab/klartext/internal/testdocs"
)

func TestOpen_FixturePages(t *testing.T) {
	data := testdocs.PDF([]testdocs.PDFPage{
		{Lines: []string{"first page"}},
		{Lines: []string{"second page", "with two lines"}},
	})

	f, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pages, err := f.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	for i, pg := range pages {
		if typ, _ := pg.Dict["Type"].(Name); typ != "Page" {
			t.Errorf("page %d has type %q", i, typ)
		}
	}
}

func TestOpen_NoStartXRef(t *testing.T) {
	if _, err := Open([]byte("%PDF-1.4\nnot a real file")); err == nil {
		t.Fatal("expected error for file without startxref")
	}
}

func TestParseObject_Primitives(t *testing.T) {
	cases := []struct {
		src  string
		want Object
	}{
		{"true", Bool(true)},
		{"null", Null{}},
		{"42", Integer(42)},
		{"-3.5", Real(-3.5)},
		{"/Name#20with#20spaces", Name("Name with spaces")},
		{"(literal \\(nested\\))", String("literal (nested)")},
		{"<48656C6C6F>", String("Hello")},
		{"7 0 R", Ref{Num: 7}},
	}
	for _, tc := range cases {
		p := &parser{data: []byte(tc.src)}
		got, err := p.parseObject()
		if err != nil {
			t.Errorf("%q: %v", tc.src, err)
			continue
		}
		if !objectEqual(got, tc.want) {
			t.Errorf("%q: got %#v, want %#v", tc.src, got, tc.want)
		}
	}
}

func TestParseObject_DictAndArray(t *testing.T) {
	p := &parser{data: []byte("<< /Kids [3 0 R 5 0 R] /Count 2 >>")}
	obj, err := p.parseObject()
	if err != nil {
		t.Fatalf("parseObject: %v", err)
	}
	d, ok := obj.(Dict)
	if !ok {
		t.Fatalf("got %T, want Dict", obj)
	}
	if n, _ := asInt(d["Count"]); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
	kids, ok := d["Kids"].(Array)
	if !ok || len(kids) != 2 {
		t.Fatalf("Kids = %#v", d["Kids"])
	}
	if kids[1] != (Ref{Num: 5}) {
		t.Errorf("Kids[1] = %#v", kids[1])
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	in := Dict{
		"Type":     Name("Annot"),
		"Subtype":  Name("Text"),
		"Rect":     Array{Real(72), Real(700), Real(90), Real(718)},
		"Contents": TextString("ändra till: nytt värde"),
		"Open":     Bool(false),
	}
	p := &parser{data: Serialize(in)}
	obj, err := p.parseObject()
	if err != nil {
		t.Fatalf("parse serialized dict: %v", err)
	}
	out, ok := obj.(Dict)
	if !ok {
		t.Fatalf("got %T, want Dict", obj)
	}
	if out["Subtype"] != Name("Text") {
		t.Errorf("Subtype = %#v", out["Subtype"])
	}
	got, ok := out["Contents"].(String)
	if !ok {
		t.Fatalf("Contents = %#v", out["Contents"])
	}
	// Non-ASCII text strings carry the UTF-16BE BOM.
	if !bytes.HasPrefix(got, []byte{0xFE, 0xFF}) {
		t.Errorf("Contents missing UTF-16 BOM: % x", got[:4])
	}
	if got.Text() != "ändra till: nytt värde" {
		t.Errorf("Text() = %q", got.Text())
	}
	if plain := String("plain ascii"); plain.Text() != "plain ascii" {
		t.Errorf("Text() = %q", plain.Text())
	}
}

func TestUpdater_AppendsAnnotation(t *testing.T) {
	original := testdocs.PDF([]testdocs.PDFPage{{Lines: []string{"hello"}}})

	f, err := Open(original)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pages, err := f.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}

	u := NewUpdater(f)
	annotRef := u.Add(Dict{
		"Type":     Name("Annot"),
		"Subtype":  Name("Text"),
		"Rect":     Array{Real(72), Real(700), Real(90), Real(718)},
		"Contents": TextString("note"),
	})
	pageDict := Dict{}
	for k, v := range pages[0].Dict {
		pageDict[k] = v
	}
	pageDict["Annots"] = Array{annotRef}
	u.Replace(pages[0].Ref, pageDict)

	out, err := u.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.HasPrefix(out, original) {
		t.Fatal("update does not preserve the original bytes")
	}

	f2, err := Open(out)
	if err != nil {
		t.Fatalf("Open updated file: %v", err)
	}
	pages2, err := f2.Pages()
	if err != nil {
		t.Fatalf("Pages of updated file: %v", err)
	}
	if len(pages2) != 1 {
		t.Fatalf("got %d pages after update, want 1", len(pages2))
	}
	annots, ok := pages2[0].Dict["Annots"].(Array)
	if !ok || len(annots) != 1 {
		t.Fatalf("Annots = %#v", pages2[0].Dict["Annots"])
	}
	annot, err := f2.ResolveDict(annots[0])
	if err != nil {
		t.Fatalf("resolve annotation: %v", err)
	}
	if annot["Subtype"] != Name("Text") {
		t.Errorf("annotation Subtype = %#v", annot["Subtype"])
	}
	if prev, ok := asInt(f2.Trailer()["Prev"]); !ok || prev != f.StartXRef() {
		t.Errorf("trailer /Prev = %v, want %d", f2.Trailer()["Prev"], f.StartXRef())
	}
}

func TestUpdater_NoChangesReturnsOriginal(t *testing.T) {
	original := testdocs.PDF([]testdocs.PDFPage{{Lines: []string{"hello"}}})
	f, err := Open(original)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	out, err := NewUpdater(f).Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(out, original) {
		t.Fatal("empty update modified the file")
	}
}

func TestPNGPredictor_UpFilter(t *testing.T) {
	// Two 3-byte rows, both using the "up" filter.
	data := []byte{
		2, 1, 2, 3,
		2, 1, 1, 1,
	}
	got, err := pngPredictor(data, 3, 1, 8)
	if err != nil {
		t.Fatalf("pngPredictor: %v", err)
	}
	want := []byte{1, 2, 3, 2, 3, 4}
	if !bytes.Equal(got, want) {
		t.Errorf("got % d, want % d", got, want)
	}
}

func objectEqual(a, b Object) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && bytes.Equal(av, bv)
	default:
		return a == b
	}
}
