package suggest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/jbgab/klartext/internal/document"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultPolicy is the built-in Klarspråk review prompt, used when no
// policy file is configured. It doubles as the schema definition for
// the suggestion JSON the generator must return.
const DefaultPolicy = `Du är en språkgranskare som förbättrar svenska myndighetstexter enligt klarspråksprinciperna.

Granska varje textavsnitt du får och föreslå omformuleringar som gör texten
enklare, tydligare och mer direkt. Ändra aldrig sakinnehållet. Föreslå bara
ändringar som tydligt förbättrar texten.

Svara med ENBART en JSON-lista. Varje förslag är ett objekt med fälten:
- "paragraph" (heltal, för docx) ELLER "page" och "line" (heltal, för pdf) — samma adress som avsnittet hade i indata
- "old": den exakta text som ska ersättas
- "new": den föreslagna nya texten
- "motivation": kort motivering till ändringen

Returnera en tom lista [] om inget behöver ändras. Ingen annan text utanför JSON-listan.`

// LoadPolicy reads a markdown policy file and normalizes it to plain
// prompt text via the markdown AST: headings become single lines and
// block content is re-flowed, so the prompt stays stable regardless of
// how the policy file is wrapped. Custom per-request instructions are
// appended at the end.
func LoadPolicy(path, custom string) (string, error) {
	policy := DefaultPolicy
	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read policy file: %w", err)
		}
		policy = NormalizeMarkdown(src)
	}
	if custom = strings.TrimSpace(custom); custom != "" {
		policy += "\n\n" + custom
	}
	return policy, nil
}

// NormalizeMarkdown flattens a markdown document into plain text blocks.
func NormalizeMarkdown(src []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if t := string(node.Text(src)); t != "" {
				blocks = append(blocks, t)
			}
		default:
			if t := blockText(n, src); t != "" {
				blocks = append(blocks, t)
			}
		}
	}
	return strings.Join(blocks, "\n\n")
}

// blockText gets the text content of a goldmark block node. Blocks with
// children yield their inline text; only leaf blocks (code blocks and the
// like) are read from the raw source lines, so content is never emitted
// twice.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(blockText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}

// BuildUserPrompt wraps one payload batch in the review instruction.
func BuildUserPrompt(batch []UnitPayload, format document.Format) (string, error) {
	encoded, err := MarshalBatch(batch)
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}
	return fmt.Sprintf("Här är en del av dokumentet (%s) som ska granskas: %s", format, encoded), nil
}
