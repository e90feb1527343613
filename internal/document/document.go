// Package document holds the addressable text model shared by the
// extraction, resolution and application stages.
package document

import "fmt"

// Format identifies the container format of an uploaded document.
type Format string

const (
	FormatDocx Format = "docx"
	FormatPDF  Format = "pdf"
)

// AddressKind tags the addressing scheme of a TextUnit.
type AddressKind string

const (
	// KindParagraph addresses a docx body paragraph by 1-based index.
	KindParagraph AddressKind = "paragraph"
	// KindPageLine addresses a pdf line by 1-based page and line number.
	KindPageLine AddressKind = "page_line"
)

// Address locates one text unit within a document. It is a tagged
// variant: paragraph index for docx, page/line pair for pdf. Address
// values are comparable and usable as map keys.
type Address struct {
	Kind      AddressKind
	Paragraph int
	Page      int
	Line      int
}

// ParagraphAddress returns a docx paragraph address.
func ParagraphAddress(index int) Address {
	return Address{Kind: KindParagraph, Paragraph: index}
}

// PageLineAddress returns a pdf page/line address.
func PageLineAddress(page, line int) Address {
	return Address{Kind: KindPageLine, Page: page, Line: line}
}

// MatchesFormat reports whether the address kind is valid for the
// given document format.
func (a Address) MatchesFormat(f Format) bool {
	switch f {
	case FormatDocx:
		return a.Kind == KindParagraph
	case FormatPDF:
		return a.Kind == KindPageLine
	}
	return false
}

func (a Address) String() string {
	switch a.Kind {
	case KindParagraph:
		return fmt.Sprintf("paragraph %d", a.Paragraph)
	case KindPageLine:
		return fmt.Sprintf("page %d, line %d", a.Page, a.Line)
	}
	return "unknown address"
}

// Rect is an axis-aligned box in PDF user space (origin bottom-left).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// OriginRef is a non-owning back-reference into the parsed source
// document, used only by the applicator to locate the right node.
// It is never used for identity comparison between units.
type OriginRef struct {
	// BodyIndex is the 0-based ordinal of the paragraph among the
	// document body's direct w:p children. Docx only.
	BodyIndex int
	// Box is the bounding box of the extracted line. PDF only.
	Box Rect
}

// TextUnit is one addressable piece of extractable text. IDs are
// assigned in extraction order and are stable for the lifetime of
// one job; extraction happens exactly once per job.
type TextUnit struct {
	ID      int
	Content string
	Address Address
	Ref     OriginRef
}
