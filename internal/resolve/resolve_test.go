package resolve

import (
	"reflect"
	"strings"
	"testing"

	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/suggest"
)

func paragraphUnits(contents ...string) []document.TextUnit {
	units := make([]document.TextUnit, len(contents))
	for i, c := range contents {
		units[i] = document.TextUnit{
			ID:      i + 1,
			Content: c,
			Address: document.ParagraphAddress(i + 1),
		}
	}
	return units
}

func TestResolve_ExactMatch(t *testing.T) {
	units := paragraphUnits("Myndigheten äger rätt att besluta.")
	suggs := []suggest.Suggestion{
		{Paragraph: 1, Old: "Myndigheten äger rätt att besluta.", New: "Myndigheten får besluta."},
	}
	edits := Resolve(units, suggs)
	if len(edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(edits))
	}
	if edits[0].Quality != MatchExact {
		t.Errorf("expected exact match, got %s", edits[0].Quality)
	}
	if edits[0].UnitID != 1 {
		t.Errorf("unexpected unit id %d", edits[0].UnitID)
	}
}

func TestResolve_ExactMatchWhitespaceNormalized(t *testing.T) {
	units := paragraphUnits("En  mening   med ojämna mellanslag.")
	suggs := []suggest.Suggestion{
		{Paragraph: 1, Old: "En mening med ojämna mellanslag.", New: "En jämn mening."},
	}
	edits := Resolve(units, suggs)
	if edits[0].Quality != MatchExact {
		t.Errorf("expected whitespace-normalized exact match, got %s", edits[0].Quality)
	}
}

func TestResolve_FuzzySubstringScopesSpan(t *testing.T) {
	units := paragraphUnits("Beslutet kan ej överklagas till domstol.")
	suggs := []suggest.Suggestion{
		{Paragraph: 1, Old: "kan ej", New: "kan inte"},
	}
	edits := Resolve(units, suggs)
	if edits[0].Quality != MatchFuzzy {
		t.Fatalf("expected fuzzy match, got %s", edits[0].Quality)
	}
	segs := SegmentContent(units[0].Content, edits)
	if got := Render(segs); got != "Beslutet kan inte överklagas till domstol." {
		t.Errorf("unexpected rendered content: %q", got)
	}
	// Surrounding text must remain in literal segments.
	if segs[0].Changed || segs[0].Text != "Beslutet " {
		t.Errorf("prefix not preserved: %+v", segs[0])
	}
}

func TestResolve_NoSuchLocation(t *testing.T) {
	units := paragraphUnits("Enda stycket.")
	suggs := []suggest.Suggestion{
		{Paragraph: 9, Old: "saknas", New: "finns"},
	}
	edits := Resolve(units, suggs)
	if edits[0].Quality != MatchUnresolved || edits[0].Reason != "no such location" {
		t.Errorf("expected unresolved/no such location, got %+v", edits[0])
	}
}

func TestResolve_ContentDrift(t *testing.T) {
	units := paragraphUnits("Texten har redan ändrats.")
	suggs := []suggest.Suggestion{
		{Paragraph: 1, Old: "denna text finns inte", New: "något"},
	}
	edits := Resolve(units, suggs)
	if edits[0].Quality != MatchUnresolved {
		t.Errorf("expected unresolved for hallucinated old text, got %s", edits[0].Quality)
	}
}

func TestResolve_EmptyParagraphUnresolved(t *testing.T) {
	units := paragraphUnits("Första.", "", "Tredje.")
	suggs := []suggest.Suggestion{
		{Paragraph: 2, Old: "något", New: "annat"},
	}
	edits := Resolve(units, suggs)
	if edits[0].Quality != MatchUnresolved {
		t.Errorf("expected unresolved against empty paragraph, got %s", edits[0].Quality)
	}
}

func TestResolve_OffsetSafetyAcrossSequentialEdits(t *testing.T) {
	units := paragraphUnits("The cat sat.")
	suggs := []suggest.Suggestion{
		{Paragraph: 1, Old: "cat", New: "dog"},
		{Paragraph: 1, Old: "sat", New: "slept"},
	}
	edits := Resolve(units, suggs)
	if edits[0].Quality != MatchFuzzy || edits[1].Quality != MatchFuzzy {
		t.Fatalf("expected both fuzzy, got %s and %s", edits[0].Quality, edits[1].Quality)
	}
	segs := SegmentContent(units[0].Content, edits)
	if got := Render(segs); got != "The dog slept." {
		t.Errorf("unexpected final text: %q", got)
	}
	var changes []string
	for _, s := range segs {
		if s.Changed {
			changes = append(changes, s.Old+"→"+s.New)
		}
	}
	if !reflect.DeepEqual(changes, []string{"cat→dog", "sat→slept"}) {
		t.Errorf("unexpected change spans: %v", changes)
	}
}

func TestResolve_LaterEditAgainstConsumedTextUnresolved(t *testing.T) {
	units := paragraphUnits("ett två tre")
	suggs := []suggest.Suggestion{
		{Paragraph: 1, Old: "två", New: "fyra"},
		{Paragraph: 1, Old: "två tre", New: "fem"}, // "två" no longer present
	}
	edits := Resolve(units, suggs)
	if edits[0].Quality != MatchFuzzy {
		t.Fatalf("first edit should apply, got %s", edits[0].Quality)
	}
	if edits[1].Quality != MatchUnresolved {
		t.Errorf("expected conflicting later edit unresolved, got %s", edits[1].Quality)
	}
}

func TestResolve_OrderingIdempotence(t *testing.T) {
	units := paragraphUnits("Handläggningen av ärendet tar tid.", "Beslut fattas senare.")
	suggs := []suggest.Suggestion{
		{Paragraph: 1, Old: "Handläggningen av ärendet", New: "Handläggningen"},
		{Paragraph: 2, Old: "fattas", New: "tas"},
		{Paragraph: 2, Old: "finns inte", New: "x"},
	}
	first := Resolve(units, suggs)
	second := Resolve(units, suggs)
	for i := range first {
		if first[i].Quality != second[i].Quality {
			t.Errorf("edit %d: quality changed between runs: %s vs %s", i, first[i].Quality, second[i].Quality)
		}
	}
}

func TestResolve_NearbyHint(t *testing.T) {
	units := paragraphUnits("Inledning.", "Här finns frasen som söks.", "Avslutning.")
	suggs := []suggest.Suggestion{
		{Paragraph: 3, Old: "frasen som söks", New: "den sökta frasen"},
	}
	edits := Resolve(units, suggs)
	if edits[0].Quality != MatchUnresolved {
		t.Fatalf("expected unresolved, got %s", edits[0].Quality)
	}
	if !strings.Contains(edits[0].Hint, "paragraph 2") {
		t.Errorf("expected hint pointing at paragraph 2, got %q", edits[0].Hint)
	}
}

func TestResolve_PageLineAddressing(t *testing.T) {
	units := []document.TextUnit{
		{ID: 1, Content: "Rad ett på sidan.", Address: document.PageLineAddress(7, 19)},
		{ID: 2, Content: "Rad två på sidan.", Address: document.PageLineAddress(7, 20)},
	}
	suggs := []suggest.Suggestion{
		{Page: 7, Line: 20, Old: "Rad två", New: "Andra raden"},
		{Page: 7, Line: 20, Old: "sidan", New: "sida sju"},
	}
	edits := Resolve(units, suggs)
	if edits[0].Quality != MatchFuzzy || edits[1].Quality != MatchFuzzy {
		t.Errorf("expected both pdf edits to apply, got %s and %s", edits[0].Quality, edits[1].Quality)
	}
	if edits[0].UnitID != 2 || edits[1].UnitID != 2 {
		t.Errorf("expected both edits on unit 2, got %d and %d", edits[0].UnitID, edits[1].UnitID)
	}
}

func TestSummarize(t *testing.T) {
	edits := []ResolvedEdit{
		{Quality: MatchExact},
		{Quality: MatchFuzzy},
		{Quality: MatchFuzzy},
		{Quality: MatchUnresolved, Hint: "could not find x — did you mean paragraph 2?"},
	}
	s := Summarize(edits)
	if s.Exact != 1 || s.Fuzzy != 2 || s.Unresolved != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if len(s.Hints) != 1 {
		t.Errorf("expected 1 hint, got %d", len(s.Hints))
	}
}

func TestFindSpan_WhitespaceFlexible(t *testing.T) {
	text := "en mening  som\nbryts över rader"
	start, end, ok := findSpan(text, "som bryts över")
	if !ok {
		t.Fatal("expected flexible whitespace match")
	}
	if got := text[start:end]; got != "som\nbryts över" {
		t.Errorf("unexpected span %q", got)
	}
}
