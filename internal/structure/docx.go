package structure

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/jbgab/klartext/internal/document"
)

// extractDocx walks the document body in order. Every direct body
// paragraph becomes one unit, empty ones included — they still occupy
// a paragraph index so that paragraph-addressed edits stay valid.
func extractDocx(data []byte) ([]document.TextUnit, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse docx: %v", ErrCorruptDocument, err)
	}

	var units []document.TextUnit
	index := 0
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		index++
		units = append(units, document.TextUnit{
			ID:      index,
			Content: paragraphText(para),
			Address: document.ParagraphAddress(index),
			Ref:     document.OriginRef{BodyIndex: index - 1},
		})
	}
	return units, nil
}

// paragraphText concatenates all run text within a paragraph. Run
// boundaries are discarded; run-level formatting is not modeled.
func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
