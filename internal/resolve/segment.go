package resolve

import (
	"regexp"
	"strings"
)

// Segment is one piece of a unit's content after edits: either an
// unchanged literal stretch, or a replacement carrying the matched
// original text and its substitute.
type Segment struct {
	// Text is the literal content. Set only when Changed is false.
	Text string
	// Old is the matched original substring, New its replacement.
	Old        string
	New        string
	Motivation string
	Changed    bool
}

// SegmentContent replays applicable edits over content in order and
// returns the resulting segment sequence. Edits that no longer match
// (for example because the content passed here differs slightly from
// the extracted content they were classified against) contribute
// nothing; the surrounding text is never touched. A content with zero
// matching edits comes back as a single literal segment.
func SegmentContent(content string, edits []ResolvedEdit) []Segment {
	segs := []Segment{{Text: content}}
	for _, e := range edits {
		if !e.Applicable() {
			continue
		}
		if next, quality := applyEdit(segs, e); quality != MatchUnresolved {
			segs = next
		}
	}
	return segs
}

// Changed reports whether any replacement was applied.
func Changed(segs []Segment) bool {
	for _, s := range segs {
		if s.Changed {
			return true
		}
	}
	return false
}

// Render returns the post-edit visible text of a segment sequence.
func Render(segs []Segment) string {
	var buf strings.Builder
	for _, s := range segs {
		if s.Changed {
			buf.WriteString(s.New)
		} else {
			buf.WriteString(s.Text)
		}
	}
	return buf.String()
}

// applyEdit matches one edit against the current segment state.
// Exact requires the unit to be untouched and the whole content to
// equal Old under whitespace normalization. Otherwise a substring
// match inside a literal segment is attempted, scoping the edit to
// just the matched span so one unit can absorb several partial edits.
func applyEdit(segs []Segment, e ResolvedEdit) ([]Segment, MatchQuality) {
	if len(segs) == 1 && !segs[0].Changed &&
		segs[0].Text != "" && normalizeSpace(segs[0].Text) == normalizeSpace(e.Old) {
		return []Segment{{
			Old:        segs[0].Text,
			New:        e.New,
			Motivation: e.Motivation,
			Changed:    true,
		}}, MatchExact
	}

	for i, seg := range segs {
		if seg.Changed {
			continue
		}
		start, end, ok := findSpan(seg.Text, e.Old)
		if !ok {
			continue
		}
		var out []Segment
		out = append(out, segs[:i]...)
		if before := seg.Text[:start]; before != "" {
			out = append(out, Segment{Text: before})
		}
		out = append(out, Segment{
			Old:        seg.Text[start:end],
			New:        e.New,
			Motivation: e.Motivation,
			Changed:    true,
		})
		if after := seg.Text[end:]; after != "" {
			out = append(out, Segment{Text: after})
		}
		out = append(out, segs[i+1:]...)
		return out, MatchFuzzy
	}
	return segs, MatchUnresolved
}

// findSpan locates old within text, first verbatim, then tolerating
// whitespace differences (line wraps, double spaces). Case-sensitive.
func findSpan(text, old string) (start, end int, ok bool) {
	if old == "" {
		return 0, 0, false
	}
	if idx := strings.Index(text, old); idx >= 0 {
		return idx, idx + len(old), true
	}
	fields := strings.Fields(old)
	if len(fields) == 0 {
		return 0, 0, false
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}
	re, err := regexp.Compile(strings.Join(quoted, `\s+`))
	if err != nil {
		return 0, 0, false
	}
	if loc := re.FindStringIndex(text); loc != nil {
		return loc[0], loc[1], true
	}
	return 0, 0, false
}
