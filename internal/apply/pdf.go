package apply

import (
	"fmt"
	"strings"

	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/pdfobj"
	"github.com/jbgab/klartext/internal/resolve"
)

// applyPDF layers one note annotation per edited line onto the file
// with an incremental update. The original bytes are preserved as-is;
// a viewer that ignores the update still renders the input document.
func applyPDF(data []byte, units []document.TextUnit, edits []resolve.ResolvedEdit, opts Options) (Result, error) {
	f, err := pdfobj.Open(data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}
	pages, err := f.Pages()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}

	grouped := editsByUnit(units, edits)
	u := pdfobj.NewUpdater(f)
	newAnnots := make(map[int][]pdfobj.Ref) // page index -> annotation refs
	applied := 0
	for _, unit := range units {
		unitEdits := grouped[unit.Address]
		if len(unitEdits) == 0 {
			continue
		}
		pageIdx := unit.Address.Page - 1
		if pageIdx < 0 || pageIdx >= len(pages) {
			continue
		}
		segs := resolve.SegmentContent(unit.Content, unitEdits)
		body := annotationBody(segs)
		if body == "" {
			continue
		}
		for _, s := range segs {
			if s.Changed {
				applied++
			}
		}
		ref := u.Add(annotationDict(unit, body, opts))
		newAnnots[pageIdx] = append(newAnnots[pageIdx], ref)
	}
	if applied == 0 {
		return Result{}, ErrNoEditsApplied
	}

	for pageIdx, refs := range newAnnots {
		page := pages[pageIdx]
		annots, err := existingAnnots(f, page.Dict)
		if err != nil {
			return Result{}, fmt.Errorf("%w: page %d: %v", ErrContainerWrite, pageIdx+1, err)
		}
		for _, r := range refs {
			annots = append(annots, r)
		}
		updated := make(pdfobj.Dict, len(page.Dict)+1)
		for k, v := range page.Dict {
			updated[k] = v
		}
		updated["Annots"] = annots
		u.Replace(page.Ref, updated)
	}

	out, err := u.Bytes()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}
	if _, err := pdfobj.Open(out); err != nil {
		return Result{}, fmt.Errorf("%w: output verification: %v", ErrContainerWrite, err)
	}
	return Result{Output: out, Applied: applied}, nil
}

func existingAnnots(f *pdfobj.File, page pdfobj.Dict) (pdfobj.Array, error) {
	raw, ok := page["Annots"]
	if !ok {
		return nil, nil
	}
	obj, err := f.Resolve(raw)
	if err != nil {
		return nil, err
	}
	switch v := obj.(type) {
	case pdfobj.Array:
		return append(pdfobj.Array(nil), v...), nil
	case pdfobj.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("/Annots is %T, not an array", obj)
	}
}

// annotationBody renders the edits for one line as the note text.
// Motivations are always included here; the IncludeMotivations option
// only governs docx markup.
func annotationBody(segs []resolve.Segment) string {
	var parts []string
	for _, s := range segs {
		if !s.Changed {
			continue
		}
		text := fmt.Sprintf("Ändra %q till %q.", s.Old, s.New)
		if s.Motivation != "" {
			text += "\nMotivering: " + s.Motivation
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// annotationDict builds a /Text (note) annotation anchored just left
// of the line's bounding box.
func annotationDict(unit document.TextUnit, body string, opts Options) pdfobj.Dict {
	box := unit.Ref.Box
	rect := pdfobj.Array{
		pdfobj.Real(box.X0 - 22),
		pdfobj.Real(box.Y0),
		pdfobj.Real(box.X0 - 4),
		pdfobj.Real(box.Y0 + 18),
	}
	return pdfobj.Dict{
		"Type":     pdfobj.Name("Annot"),
		"Subtype":  pdfobj.Name("Text"),
		"Rect":     rect,
		"Contents": pdfobj.TextString(body),
		"T":        pdfobj.TextString(opts.author()),
		"M":        pdfobj.String(opts.now().Format("D:20060102150405Z")),
		"Name":     pdfobj.Name("Comment"),
		"C":        pdfobj.Array{pdfobj.Real(1), pdfobj.Real(0.82), pdfobj.Real(0.2)},
		"F":        pdfobj.Integer(4), // print flag
	}
}
