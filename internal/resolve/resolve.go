// Package resolve matches untrusted suggestions against the extracted
// unit sequence. It never fails: what cannot be safely matched is
// classified unresolved and reported, not applied. All trust decisions
// about generator output live here.
package resolve

import (
	"fmt"
	"strings"

	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/suggest"
)

// MatchQuality classifies how a suggestion matched its target unit.
type MatchQuality string

const (
	MatchExact      MatchQuality = "exact"
	MatchFuzzy      MatchQuality = "fuzzy"
	MatchUnresolved MatchQuality = "unresolved"
)

// ResolvedEdit is one suggestion after matching. Unresolved edits are
// excluded from application but retained for the summary report.
type ResolvedEdit struct {
	UnitID     int
	Address    document.Address
	Old        string
	New        string
	Motivation string
	Quality    MatchQuality
	// Reason explains an unresolved classification.
	Reason string
	// Hint points at a nearby unit whose content does contain Old.
	Hint string
}

// Applicable reports whether the edit survived matching.
func (e ResolvedEdit) Applicable() bool {
	return e.Quality == MatchExact || e.Quality == MatchFuzzy
}

// Summary counts match outcomes for the user-visible status report.
// It is mandatory output: the engine never returns a document that
// looks fully edited while edits were silently skipped.
type Summary struct {
	Exact      int      `json:"exact"`
	Fuzzy      int      `json:"fuzzy"`
	Unresolved int      `json:"unresolved"`
	Hints      []string `json:"hints,omitempty"`
}

// Resolve classifies each suggestion against the unit sequence, in the
// order received. Matching for later suggestions runs against content
// already rewritten by earlier ones, so overlapping edits on one unit
// either chain cleanly or come back unresolved.
func Resolve(units []document.TextUnit, suggestions []suggest.Suggestion) []ResolvedEdit {
	byAddr := make(map[document.Address]document.TextUnit, len(units))
	for _, u := range units {
		byAddr[u.Address] = u
	}
	state := make(map[int][]Segment)

	edits := make([]ResolvedEdit, 0, len(suggestions))
	for _, s := range suggestions {
		addr := s.Address()
		edit := ResolvedEdit{
			Address:    addr,
			Old:        s.Old,
			New:        s.New,
			Motivation: s.Motivation,
		}

		unit, ok := byAddr[addr]
		if !ok {
			edit.Quality = MatchUnresolved
			edit.Reason = "no such location"
			edit.Hint = nearbyHint(byAddr, addr, s.Old)
			edits = append(edits, edit)
			continue
		}
		edit.UnitID = unit.ID

		segs, ok := state[unit.ID]
		if !ok {
			segs = []Segment{{Text: unit.Content}}
		}
		newSegs, quality := applyEdit(segs, edit)
		if quality == MatchUnresolved {
			edit.Quality = MatchUnresolved
			edit.Reason = "text not found at location"
			edit.Hint = nearbyHint(byAddr, addr, s.Old)
			edits = append(edits, edit)
			continue
		}
		state[unit.ID] = newSegs
		edit.Quality = quality
		edits = append(edits, edit)
	}
	return edits
}

// Summarize aggregates resolution outcomes.
func Summarize(edits []ResolvedEdit) Summary {
	var s Summary
	for _, e := range edits {
		switch e.Quality {
		case MatchExact:
			s.Exact++
		case MatchFuzzy:
			s.Fuzzy++
		default:
			s.Unresolved++
			if e.Hint != "" {
				s.Hints = append(s.Hints, e.Hint)
			}
		}
	}
	return s
}

// nearbyHint checks the units within two positions of addr for the
// missing text and names the first that contains it.
func nearbyHint(byAddr map[document.Address]document.TextUnit, addr document.Address, old string) string {
	for _, offset := range []int{-2, -1, 1, 2} {
		var candidate document.Address
		switch addr.Kind {
		case document.KindParagraph:
			candidate = document.ParagraphAddress(addr.Paragraph + offset)
		case document.KindPageLine:
			candidate = document.PageLineAddress(addr.Page, addr.Line+offset)
		default:
			return ""
		}
		unit, ok := byAddr[candidate]
		if !ok {
			continue
		}
		if _, _, found := findSpan(unit.Content, old); found {
			return fmt.Sprintf("could not find %q at %s — did you mean %s?", old, addr, candidate)
		}
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
