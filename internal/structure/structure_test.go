package structure

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/testdocs"
	pdflib "github.com/ledongthuc/pdf"
)

func TestExtract_DocxParagraphs(t *testing.T) {
	data := testdocs.Docx([][]string{
		{"Handläggaren ", "fattar beslut."},
		{"Andra stycket."},
	})

	var e Extractor
	units, err := e.Extract(data, document.FormatDocx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].Content != "Handläggaren fattar beslut." {
		t.Errorf("run boundaries not discarded: %q", units[0].Content)
	}
	if units[0].Address != document.ParagraphAddress(1) {
		t.Errorf("unexpected address: %v", units[0].Address)
	}
	if units[1].ID != 2 || units[1].Address.Paragraph != 2 {
		t.Errorf("unexpected second unit: %+v", units[1])
	}
}

func TestExtract_DocxEmptyParagraphKeepsIndex(t *testing.T) {
	data := testdocs.Docx([][]string{
		{"Första stycket."},
		{},
		{"Tredje stycket."},
	})

	var e Extractor
	units, err := e.Extract(data, document.FormatDocx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}
	if units[1].Content != "" {
		t.Errorf("expected empty content for paragraph 2, got %q", units[1].Content)
	}
	for i, u := range units {
		if u.Address.Paragraph != i+1 {
			t.Errorf("unit %d has paragraph index %d", i, u.Address.Paragraph)
		}
	}
}

func TestExtract_Deterministic(t *testing.T) {
	data := testdocs.Docx([][]string{{"En mening."}, {"En till."}})

	var e Extractor
	first, err := e.Extract(data, document.FormatDocx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.Extract(data, document.FormatDocx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical unit sequences from repeated extraction")
	}
}

func TestExtract_EmptyDocument(t *testing.T) {
	data := testdocs.Docx(nil)

	var e Extractor
	_, err := e.Extract(data, document.FormatDocx)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestExtract_SignatureMismatch(t *testing.T) {
	var e Extractor
	_, err := e.Extract([]byte("%PDF-1.4 not a docx"), document.FormatDocx)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat for pdf bytes as docx, got %v", err)
	}
	_, err = e.Extract([]byte("PK\x03\x04junk"), document.FormatPDF)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat for zip bytes as pdf, got %v", err)
	}
}

func TestExtract_CorruptDocx(t *testing.T) {
	var e Extractor
	_, err := e.Extract([]byte("PK\x03\x04this is not a zip"), document.FormatDocx)
	if !errors.Is(err, ErrCorruptDocument) {
		t.Errorf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestFormatForFile(t *testing.T) {
	if f, err := FormatForFile("brev.docx"); err != nil || f != document.FormatDocx {
		t.Errorf("docx: got %v, %v", f, err)
	}
	if f, err := FormatForFile("Beslut.PDF"); err != nil || f != document.FormatPDF {
		t.Errorf("pdf: got %v, %v", f, err)
	}
	if _, err := FormatForFile("anteckningar.txt"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("txt: expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestGroupLines_ClustersByBaseline(t *testing.T) {
	texts := []pdflib.Text{
		{FontSize: 12, X: 72, Y: 720, W: 30, S: "Andra"},
		{FontSize: 12, X: 110, Y: 719.5, W: 20, S: "raden"}, // within tolerance of 720
		{FontSize: 12, X: 72, Y: 704, W: 40, S: "Nästa rad"},
	}
	lines := groupLines(texts, 2.0)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].text != "Andra raden" {
		t.Errorf("expected gap-joined first line, got %q", lines[0].text)
	}
	if lines[1].text != "Nästa rad" {
		t.Errorf("unexpected second line %q", lines[1].text)
	}
	if lines[0].y < lines[1].y {
		t.Error("lines not ordered top-down")
	}
}

func TestGroupLines_FragmentOrderWithinLine(t *testing.T) {
	// Fragments arrive out of x order but share a baseline.
	texts := []pdflib.Text{
		{FontSize: 12, X: 140, Y: 500, W: 30, S: "slutet"},
		{FontSize: 12, X: 72, Y: 500, W: 60, S: "Början och"},
	}
	lines := groupLines(texts, 2.0)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].text != "Början och slutet" {
		t.Errorf("expected x-ordered join, got %q", lines[0].text)
	}
	if lines[0].box.X0 != 72 || lines[0].box.X1 != 170 {
		t.Errorf("unexpected line box: %+v", lines[0].box)
	}
}
