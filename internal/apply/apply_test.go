package apply

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/pdfobj"
	"github.com/jbgab/klartext/internal/resolve"
	"github.com/jbgab/klartext/internal/structure"
	"github.com/jbgab/klartext/internal/suggest"
	"github.com/jbgab/klartext/internal/testdocs"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func extractUnits(t *testing.T, data []byte, format document.Format) []document.TextUnit {
	t.Helper()
	ex := &structure.Extractor{}
	units, err := ex.Extract(data, format)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return units
}

func zipEntry(t *testing.T, data []byte, name string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return b
	}
	t.Fatalf("entry %s not found", name)
	return nil
}

func TestApply_DocxTrackedChange(t *testing.T) {
	input := testdocs.Docx([][]string{
		{"Myndigheten har fattat beslutet."},
		{"Ni anmodas inkomma med svar."},
	})
	units := extractUnits(t, input, document.FormatDocx)
	edits := resolve.Resolve(units, []suggest.Suggestion{
		{Paragraph: 2, Old: "anmodas inkomma med", New: "ska lämna"},
	})

	res, err := Apply(input, document.FormatDocx, units, edits, Options{
		DocxMode: ModeTracked, Author: "Granskaren", Now: testTime,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("Applied = %d, want 1", res.Applied)
	}

	docXML := string(zipEntry(t, res.Output, "word/document.xml"))
	for _, want := range []string{
		"<w:del", "<w:ins",
		`w:author="Granskaren"`,
		`w:date="2026-03-14T09:30:00Z"`,
		"anmodas inkomma med</w:delText>",
		"ska lämna</w:t>",
	} {
		if !strings.Contains(docXML, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
	// The untouched first paragraph keeps its text as a plain run.
	if !strings.Contains(docXML, "Myndigheten har fattat beslutet.") {
		t.Error("unedited paragraph text lost")
	}
}

func TestApply_DocxTrackedEnablesTrackRevisions(t *testing.T) {
	input := testdocs.Docx([][]string{{"Texten behöver ses över."}})
	units := extractUnits(t, input, document.FormatDocx)
	edits := resolve.Resolve(units, []suggest.Suggestion{
		{Paragraph: 1, Old: "ses över", New: "granskas"},
	})

	res, err := Apply(input, document.FormatDocx, units, edits, Options{DocxMode: ModeTracked, Now: testTime})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	settings := string(zipEntry(t, res.Output, "word/settings.xml"))
	if !strings.Contains(settings, "w:trackRevisions") {
		t.Error("settings.xml missing w:trackRevisions")
	}
}

func TestApply_DocxMarkupMode(t *testing.T) {
	input := testdocs.Docx([][]string{{"Beslutet expedieras omgående."}})
	units := extractUnits(t, input, document.FormatDocx)
	edits := resolve.Resolve(units, []suggest.Suggestion{
		{Paragraph: 1, Old: "expedieras", New: "skickas", Motivation: "enklare ordval"},
	})

	res, err := Apply(input, document.FormatDocx, units, edits, Options{
		DocxMode: ModeMarkup, IncludeMotivations: true, Now: testTime,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	docXML := string(zipEntry(t, res.Output, "word/document.xml"))
	for _, want := range []string{
		"<w:strike/>",
		`w:val="FF0000"`,
		`w:val="008000"`,
		`w:val="808080"`,
		"[enklare ordval]",
	} {
		if !strings.Contains(docXML, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
	if strings.Contains(docXML, "<w:del") {
		t.Error("markup mode must not emit revision elements")
	}
}

func TestApply_DocxUnaffectedEntriesIdentical(t *testing.T) {
	input := testdocs.Docx([][]string{{"En mening."}, {"En annan mening."}})
	units := extractUnits(t, input, document.FormatDocx)
	edits := resolve.Resolve(units, []suggest.Suggestion{
		{Paragraph: 1, Old: "En mening.", New: "En kort mening."},
	})

	res, err := Apply(input, document.FormatDocx, units, edits, Options{DocxMode: ModeTracked, Now: testTime})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/styles.xml"} {
		if !bytes.Equal(zipEntry(t, input, name), zipEntry(t, res.Output, name)) {
			t.Errorf("entry %s was modified", name)
		}
	}
}

func TestApply_DocxSequentialEditsOneParagraph(t *testing.T) {
	input := testdocs.Docx([][]string{{"The cat sat."}})
	units := extractUnits(t, input, document.FormatDocx)
	edits := resolve.Resolve(units, []suggest.Suggestion{
		{Paragraph: 1, Old: "cat", New: "dog"},
		{Paragraph: 1, Old: "sat", New: "slept"},
	})

	res, err := Apply(input, document.FormatDocx, units, edits, Options{DocxMode: ModeMarkup, Now: testTime})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Applied != 2 {
		t.Errorf("Applied = %d, want 2", res.Applied)
	}
	docXML := string(zipEntry(t, res.Output, "word/document.xml"))
	for _, want := range []string{"cat", "dog", "sat", "slept"} {
		if !strings.Contains(docXML, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
}

func TestApply_NoApplicableEditsReturnsInput(t *testing.T) {
	input := testdocs.Docx([][]string{{"Orörd text."}})
	units := extractUnits(t, input, document.FormatDocx)
	edits := []resolve.ResolvedEdit{{
		Address: document.ParagraphAddress(1),
		Old:     "finns inte", New: "ersättning",
		Quality: resolve.MatchUnresolved,
	}}

	res, err := Apply(input, document.FormatDocx, units, edits, Options{Now: testTime})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.Equal(res.Output, input) {
		t.Error("output differs from input with no applicable edits")
	}
	if res.Applied != 0 {
		t.Errorf("Applied = %d, want 0", res.Applied)
	}
}

func TestApply_StaleEditReportsNoEditsApplied(t *testing.T) {
	input := testdocs.Docx([][]string{{"Aktuell text."}})
	units := extractUnits(t, input, document.FormatDocx)
	// Marked applicable but the text is no longer present.
	edits := []resolve.ResolvedEdit{{
		Address: document.ParagraphAddress(1),
		Old:     "försvunnen text", New: "nytt",
		Quality: resolve.MatchExact,
	}}

	_, err := Apply(input, document.FormatDocx, units, edits, Options{Now: testTime})
	if err != ErrNoEditsApplied {
		t.Fatalf("err = %v, want ErrNoEditsApplied", err)
	}
}

func TestApply_PDFAnnotation(t *testing.T) {
	input := testdocs.PDF([]testdocs.PDFPage{
		{Lines: []string{"Myndigheten avslar ansokan.", "Beslutet kan overklagas."}},
	})
	units := extractUnits(t, input, document.FormatPDF)
	edits := resolve.Resolve(units, []suggest.Suggestion{
		{Page: 1, Line: 2, Old: "kan overklagas", New: "gar att overklaga", Motivation: "aktiv form"},
	})

	res, err := Apply(input, document.FormatPDF, units, edits, Options{
		IncludeMotivations: true, Author: "Granskaren", Now: testTime,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.HasPrefix(res.Output, input) {
		t.Fatal("pdf output does not start with the original bytes")
	}

	f, err := pdfobj.Open(res.Output)
	if err != nil {
		t.Fatalf("reopen output: %v", err)
	}
	pages, err := f.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	annots, ok := pages[0].Dict["Annots"].(pdfobj.Array)
	if !ok || len(annots) != 1 {
		t.Fatalf("Annots = %#v", pages[0].Dict["Annots"])
	}
	annot, err := f.ResolveDict(annots[0])
	if err != nil {
		t.Fatalf("resolve annotation: %v", err)
	}
	if annot["Subtype"] != pdfobj.Name("Text") {
		t.Errorf("Subtype = %#v", annot["Subtype"])
	}
	if m, _ := annot["M"].(pdfobj.String); string(m) != "D:20260314093000Z" {
		t.Errorf("M = %q", m)
	}
}

func TestApply_PDFMotivationAlwaysInBody(t *testing.T) {
	input := testdocs.PDF([]testdocs.PDFPage{
		{Lines: []string{"Beslutet kan overklagas."}},
	})
	units := extractUnits(t, input, document.FormatPDF)
	edits := resolve.Resolve(units, []suggest.Suggestion{
		{Page: 1, Line: 1, Old: "kan overklagas", New: "gar att overklaga", Motivation: "aktiv form"},
	})

	res, err := Apply(input, document.FormatPDF, units, edits, Options{
		IncludeMotivations: false, Now: testTime,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	f, err := pdfobj.Open(res.Output)
	if err != nil {
		t.Fatalf("reopen output: %v", err)
	}
	pages, err := f.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	annots, _ := pages[0].Dict["Annots"].(pdfobj.Array)
	if len(annots) != 1 {
		t.Fatalf("Annots = %#v", pages[0].Dict["Annots"])
	}
	annot, err := f.ResolveDict(annots[0])
	if err != nil {
		t.Fatalf("resolve annotation: %v", err)
	}
	body, _ := annot["Contents"].(pdfobj.String)
	if !strings.Contains(body.Text(), "Motivering: aktiv form") {
		t.Errorf("annotation body missing motivation: %q", body.Text())
	}
}

func TestApply_PDFTwoEditsOneLineShareAnnotation(t *testing.T) {
	input := testdocs.PDF([]testdocs.PDFPage{
		{Lines: []string{"Ni anmodas inkomma med kompletterande handlingar."}},
	})
	units := extractUnits(t, input, document.FormatPDF)
	edits := resolve.Resolve(units, []suggest.Suggestion{
		{Page: 1, Line: 1, Old: "anmodas", New: "uppmanas"},
		{Page: 1, Line: 1, Old: "inkomma med", New: "lämna"},
	})

	res, err := Apply(input, document.FormatPDF, units, edits, Options{Now: testTime})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Applied != 2 {
		t.Errorf("Applied = %d, want 2", res.Applied)
	}

	f, err := pdfobj.Open(res.Output)
	if err != nil {
		t.Fatalf("reopen output: %v", err)
	}
	pages, err := f.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	annots, ok := pages[0].Dict["Annots"].(pdfobj.Array)
	if !ok || len(annots) != 1 {
		t.Fatalf("want one shared annotation, Annots = %#v", pages[0].Dict["Annots"])
	}
}

func TestApply_UnsupportedFormat(t *testing.T) {
	edits := []resolve.ResolvedEdit{{Quality: resolve.MatchExact, Old: "a", New: "b"}}
	if _, err := Apply(nil, document.Format("odt"), nil, edits, Options{}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
