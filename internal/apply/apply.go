// Package apply writes accepted edits back into the original document
// container. Docx edits become tracked changes (or colored markup);
// pdf edits become note annotations layered on via an incremental
// update. In both cases every byte the edits do not touch is carried
// over from the input unchanged.
package apply

import (
	"errors"
	"fmt"
	"time"

	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/resolve"
)

var (
	// ErrContainerWrite signals a failure rebuilding the output
	// container, as opposed to a problem with the edits themselves.
	ErrContainerWrite = errors.New("apply: container write failed")

	// ErrNoEditsApplied signals that applicable edits were given but
	// none could be located in the document content.
	ErrNoEditsApplied = errors.New("apply: no edits applied")
)

// DocxMode selects how docx edits are rendered.
type DocxMode string

const (
	// ModeTracked emits real w:del/w:ins revisions that Word shows in
	// its review pane.
	ModeTracked DocxMode = "tracked"
	// ModeMarkup emits visible strike-through and colored runs, for
	// viewers without revision support.
	ModeMarkup DocxMode = "markup"
)

// Options controls how edits are written.
type Options struct {
	DocxMode           DocxMode
	IncludeMotivations bool
	// Author is recorded on tracked revisions and pdf annotations.
	Author string
	// Now stamps revisions and annotations; the zero value means
	// time.Now.
	Now time.Time
}

func (o Options) author() string {
	if o.Author == "" {
		return "Klartext"
	}
	return o.Author
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now.UTC()
}

// Result reports what Apply did.
type Result struct {
	Output []byte
	// Applied counts edits written into the output.
	Applied int
}

// Apply writes the applicable edits into data. With no applicable
// edits the input comes back byte-identical. The output is re-opened
// before returning so a corrupt container never leaves this package.
func Apply(data []byte, format document.Format, units []document.TextUnit, edits []resolve.ResolvedEdit, opts Options) (Result, error) {
	applicable := 0
	for _, e := range edits {
		if e.Applicable() {
			applicable++
		}
	}
	if applicable == 0 {
		return Result{Output: data}, nil
	}

	switch format {
	case document.FormatDocx:
		return applyDocx(data, units, edits, opts)
	case document.FormatPDF:
		return applyPDF(data, units, edits, opts)
	default:
		return Result{}, fmt.Errorf("apply: unsupported format %q", format)
	}
}

// editsByUnit groups applicable edits under their target unit,
// preserving suggestion order within each unit.
func editsByUnit(units []document.TextUnit, edits []resolve.ResolvedEdit) map[document.Address][]resolve.ResolvedEdit {
	known := make(map[document.Address]bool, len(units))
	for _, u := range units {
		known[u.Address] = true
	}
	grouped := make(map[document.Address][]resolve.ResolvedEdit)
	for _, e := range edits {
		if !e.Applicable() || !known[e.Address] {
			continue
		}
		grouped[e.Address] = append(grouped[e.Address], e)
	}
	return grouped
}
