package suggest

import (
	"encoding/json"

	"github.com/jbgab/klartext/internal/document"
)

// UnitPayload mirrors one TextUnit on the generator wire: the text plus
// its tagged address. This array is the sole outbound contract with the
// model layer.
type UnitPayload struct {
	Paragraph int    `json:"paragraph,omitempty"`
	Page      int    `json:"page,omitempty"`
	Line      int    `json:"line,omitempty"`
	Text      string `json:"text"`
}

func payloadFor(u document.TextUnit) UnitPayload {
	p := UnitPayload{Text: u.Content}
	switch u.Address.Kind {
	case document.KindParagraph:
		p.Paragraph = u.Address.Paragraph
	case document.KindPageLine:
		p.Page = u.Address.Page
		p.Line = u.Address.Line
	}
	return p
}

// Batch splits the unit sequence into payload batches that fit under a
// token budget per model call, using the ~4 chars/token heuristic. The
// policy prompt is resent with every call, so its length counts against
// each batch. A batch always holds at least one unit.
func Batch(units []document.TextUnit, policyLen, maxTokensPerCall int) [][]UnitPayload {
	if maxTokensPerCall <= 0 {
		maxTokensPerCall = 3000
	}
	budget := maxTokensPerCall * 4

	var batches [][]UnitPayload
	var current []UnitPayload
	chars := policyLen
	for _, u := range units {
		p := payloadFor(u)
		encoded, _ := json.Marshal(p)
		if len(current) > 0 && chars+len(encoded) > budget {
			batches = append(batches, current)
			current = nil
			chars = policyLen
		}
		current = append(current, p)
		chars += len(encoded)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// MarshalBatch renders a batch as the JSON array sent to the generator.
func MarshalBatch(batch []UnitPayload) ([]byte, error) {
	return json.Marshal(batch)
}
