// Package suggest holds the wire contract with the external suggestion
// generator: the outbound unit payload and the inbound suggestion list.
// Everything the generator returns is untrusted input.
package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jbgab/klartext/internal/document"
)

// ErrMalformedResponse marks a generator response that cannot be used at
// all (not a JSON array, or empty body). It is job-fatal: no suggestion
// from such a response can be trusted.
var ErrMalformedResponse = errors.New("malformed generator response")

// Suggestion is one proposed edit keyed to a document address. The
// address shape depends on the active format: docx suggestions carry
// paragraph, pdf suggestions carry page and line.
type Suggestion struct {
	Paragraph  int    `json:"paragraph,omitempty"`
	Page       int    `json:"page,omitempty"`
	Line       int    `json:"line,omitempty"`
	Old        string `json:"old"`
	New        string `json:"new"`
	Motivation string `json:"motivation,omitempty"`
}

// Address returns the tagged address this suggestion targets, derived
// from whichever coordinate fields are set.
func (s Suggestion) Address() document.Address {
	if s.Paragraph > 0 {
		return document.ParagraphAddress(s.Paragraph)
	}
	return document.PageLineAddress(s.Page, s.Line)
}

// ParseStats reports per-suggestion drops during validation. Dropped
// suggestions never abort the batch; they only appear in the report.
type ParseStats struct {
	Received      int `json:"received"`
	ShapeMismatch int `json:"shape_mismatch"`
	EmptyFields   int `json:"empty_fields"`
	NoOps         int `json:"no_ops"`
}

// Dropped is the total number of suggestions removed by validation.
func (st ParseStats) Dropped() int {
	return st.ShapeMismatch + st.EmptyFields + st.NoOps
}

// Parse validates a raw generator response for the given format. It
// returns the usable suggestions in received order plus drop counters.
// Duplicate addresses are retained; resolution decides their fate.
func Parse(raw []byte, format document.Format) ([]Suggestion, ParseStats, error) {
	var stats ParseStats

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, stats, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	var items []Suggestion
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	stats.Received = len(items)

	var out []Suggestion
	for _, s := range items {
		switch {
		case !validShape(s, format):
			stats.ShapeMismatch++
		case s.Old == "" || s.New == "":
			stats.EmptyFields++
		case s.Old == s.New:
			stats.NoOps++
		default:
			out = append(out, s)
		}
	}
	return out, stats, nil
}

func validShape(s Suggestion, format document.Format) bool {
	switch format {
	case document.FormatDocx:
		return s.Paragraph >= 1 && s.Page == 0 && s.Line == 0
	case document.FormatPDF:
		return s.Page >= 1 && s.Line >= 1 && s.Paragraph == 0
	}
	return false
}
