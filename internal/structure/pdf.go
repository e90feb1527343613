package structure

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/jbgab/klartext/internal/document"
	pdflib "github.com/ledongthuc/pdf"
)

const defaultLineTolerance = 2.0

// extractPDF re-flows the text of each physical page into lines. A pdf
// has no semantic paragraph structure, so lines are grouped positionally:
// fragments whose baselines lie within LineTolerance points of each other
// belong to the same line. Pages and lines are 1-based; line numbers
// reset per page and count only non-empty lines.
func (e *Extractor) extractPDF(data []byte) (units []document.TextUnit, err error) {
	// ledongthuc/pdf panics on malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			units = nil
			err = fmt.Errorf("%w: parse pdf: %v", ErrCorruptDocument, r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse pdf: %v", ErrCorruptDocument, err)
	}

	tolerance := e.LineTolerance
	if tolerance <= 0 {
		tolerance = defaultLineTolerance
	}

	id := 0
	numPages := reader.NumPage()
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		lines := groupLines(page.Content().Text, tolerance)
		lineNum := 0
		for _, ln := range lines {
			text := strings.TrimSpace(ln.text)
			if text == "" {
				continue
			}
			lineNum++
			id++
			units = append(units, document.TextUnit{
				ID:      id,
				Content: text,
				Address: document.PageLineAddress(pageNum, lineNum),
				Ref:     document.OriginRef{Box: ln.box},
			})
		}
	}
	return units, nil
}

type pdfLine struct {
	y    float64
	text string
	box  document.Rect
}

// groupLines clusters text fragments by baseline Y coordinate, orders
// lines top-down and fragments left-to-right, and joins fragment text.
// A single space is inserted where the horizontal gap between adjacent
// fragments exceeds a third of the font size. The clustering is
// deterministic for a given input, which suggestion addressing depends on.
func groupLines(texts []pdflib.Text, tolerance float64) []pdfLine {
	frags := make([]pdflib.Text, len(texts))
	copy(frags, texts)
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Y != frags[j].Y {
			return frags[i].Y > frags[j].Y // top of page first
		}
		return frags[i].X < frags[j].X
	})

	var lines []pdfLine
	var current []pdflib.Text
	flush := func() {
		if len(current) == 0 {
			return
		}
		lines = append(lines, joinFragments(current))
		current = nil
	}
	for _, f := range frags {
		if len(current) > 0 && current[0].Y-f.Y > tolerance {
			flush()
		}
		current = append(current, f)
	}
	flush()
	return lines
}

func joinFragments(frags []pdflib.Text) pdfLine {
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].X < frags[j].X })

	var buf strings.Builder
	box := document.Rect{X0: frags[0].X, Y0: frags[0].Y, X1: frags[0].X, Y1: frags[0].Y}
	prevEnd := frags[0].X
	for i, f := range frags {
		if i > 0 && f.S != "" {
			gap := f.X - prevEnd
			if gap > f.FontSize/3 && !strings.HasSuffix(buf.String(), " ") && !strings.HasPrefix(f.S, " ") {
				buf.WriteByte(' ')
			}
		}
		buf.WriteString(f.S)
		prevEnd = f.X + f.W
		if f.X < box.X0 {
			box.X0 = f.X
		}
		if end := f.X + f.W; end > box.X1 {
			box.X1 = end
		}
		if f.Y < box.Y0 {
			box.Y0 = f.Y
		}
		if top := f.Y + f.FontSize; top > box.Y1 {
			box.Y1 = top
		}
	}
	return pdfLine{y: frags[0].Y, text: buf.String(), box: box}
}
