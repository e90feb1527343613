package apply

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/beevik/etree"
	docx "github.com/fumiama/go-docx"
	"golang.org/x/net/html/charset"

	"github.com/jbgab/klartext/internal/document"
	"github.com/jbgab/klartext/internal/resolve"
)

const (
	docEntry      = "word/document.xml"
	settingsEntry = "word/settings.xml"
)

// applyDocx rewrites word/document.xml with the edits and copies every
// other archive entry verbatim. Tracked mode additionally switches on
// w:trackRevisions in word/settings.xml.
func applyDocx(data []byte, units []document.TextUnit, edits []resolve.ResolvedEdit, opts Options) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}

	docXML, err := readEntry(zr, docEntry)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}

	tree := etree.NewDocument()
	tree.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := tree.ReadFromBytes(docXML); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrContainerWrite, docEntry, err)
	}
	body := tree.FindElement("//w:body")
	if body == nil {
		return Result{}, fmt.Errorf("%w: %s has no w:body", ErrContainerWrite, docEntry)
	}
	paras := body.SelectElements("w:p")

	grouped := editsByUnit(units, edits)
	rev := revisionMarks{author: opts.author(), date: opts.now().Format("2006-01-02T15:04:05Z")}
	applied := 0
	for _, unit := range units {
		unitEdits := grouped[unit.Address]
		if len(unitEdits) == 0 {
			continue
		}
		idx := unit.Ref.BodyIndex
		if idx < 0 || idx >= len(paras) {
			continue
		}
		segs := resolve.SegmentContent(unit.Content, unitEdits)
		if !resolve.Changed(segs) {
			continue
		}
		rewriteParagraph(paras[idx], segs, opts, &rev)
		for _, s := range segs {
			if s.Changed {
				applied++
			}
		}
	}
	if applied == 0 {
		return Result{}, ErrNoEditsApplied
	}

	newDocXML, err := tree.WriteToBytes()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}

	var settingsXML []byte
	if opts.DocxMode == ModeTracked {
		if raw, err := readEntry(zr, settingsEntry); err == nil {
			settingsXML, err = withTrackRevisions(raw)
			if err != nil {
				return Result{}, fmt.Errorf("%w: %s: %v", ErrContainerWrite, settingsEntry, err)
			}
		}
	}

	out, err := rebuildArchive(zr, newDocXML, settingsXML)
	if err != nil {
		return Result{}, err
	}

	// The container must still open as a docx before it leaves.
	if _, err := docx.Parse(bytes.NewReader(out), int64(len(out))); err != nil {
		return Result{}, fmt.Errorf("%w: output verification: %v", ErrContainerWrite, err)
	}
	return Result{Output: out, Applied: applied}, nil
}

// rebuildArchive writes a new zip with the rewritten entries; all
// other entries keep their exact compressed bytes.
func rebuildArchive(zr *zip.Reader, docXML, settingsXML []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		switch {
		case f.Name == docEntry:
			if err := writeEntry(zw, f.Name, docXML); err != nil {
				return nil, err
			}
		case f.Name == settingsEntry && settingsXML != nil:
			if err := writeEntry(zw, f.Name, settingsXML); err != nil {
				return nil, err
			}
		default:
			raw, err := f.OpenRaw()
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrContainerWrite, f.Name, err)
			}
			header := f.FileHeader
			w, err := zw.CreateRaw(&header)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrContainerWrite, f.Name, err)
			}
			if _, err := io.Copy(w, raw); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrContainerWrite, f.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainerWrite, err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrContainerWrite, name, err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrContainerWrite, name, err)
	}
	return nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s: entry not found", name)
}

// revisionMarks stamps w:ins/w:del elements. Word wants unique ids
// within the document; starting high keeps clear of existing ones.
type revisionMarks struct {
	author string
	date   string
	nextID int
}

func (m *revisionMarks) decorate(el *etree.Element) {
	m.nextID++
	el.CreateAttr("w:id", strconv.Itoa(9000+m.nextID))
	el.CreateAttr("w:author", m.author)
	el.CreateAttr("w:date", m.date)
}

// rewriteParagraph replaces the paragraph's runs with runs built from
// the segments. Paragraph properties stay in place.
func rewriteParagraph(p *etree.Element, segs []resolve.Segment, opts Options, rev *revisionMarks) {
	for _, ch := range p.ChildElements() {
		if ch.Tag == "pPr" {
			continue
		}
		p.RemoveChild(ch)
	}
	for _, seg := range segs {
		if !seg.Changed {
			appendRun(p, seg.Text, nil)
			continue
		}
		switch opts.DocxMode {
		case ModeMarkup:
			appendRun(p, seg.Old, func(rpr *etree.Element) {
				rpr.CreateElement("w:strike")
				rpr.CreateElement("w:color").CreateAttr("w:val", "FF0000")
			})
			appendRun(p, seg.New, func(rpr *etree.Element) {
				rpr.CreateElement("w:color").CreateAttr("w:val", "008000")
			})
		default:
			del := p.CreateElement("w:del")
			rev.decorate(del)
			appendText(del.CreateElement("w:r"), "w:delText", seg.Old)

			ins := p.CreateElement("w:ins")
			rev.decorate(ins)
			appendText(ins.CreateElement("w:r"), "w:t", seg.New)
		}
		if opts.IncludeMotivations && seg.Motivation != "" {
			appendRun(p, " ["+seg.Motivation+"]", func(rpr *etree.Element) {
				rpr.CreateElement("w:i")
				rpr.CreateElement("w:color").CreateAttr("w:val", "808080")
			})
		}
	}
}

// appendRun adds a w:r with the text; props, when non-nil, populates
// its w:rPr.
func appendRun(p *etree.Element, text string, props func(*etree.Element)) {
	if text == "" {
		return
	}
	r := p.CreateElement("w:r")
	if props != nil {
		props(r.CreateElement("w:rPr"))
	}
	appendText(r, "w:t", text)
}

func appendText(r *etree.Element, tag, text string) {
	t := r.CreateElement(tag)
	t.CreateAttr("xml:space", "preserve")
	t.SetText(text)
}

// withTrackRevisions returns settings.xml with w:trackRevisions
// present, so Word opens the document with change tracking on.
func withTrackRevisions(raw []byte) ([]byte, error) {
	tree := etree.NewDocument()
	tree.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := tree.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	root := tree.FindElement("//w:settings")
	if root == nil {
		return raw, nil
	}
	if root.SelectElement("w:trackRevisions") == nil {
		el := etree.NewElement("w:trackRevisions")
		root.InsertChildAt(0, el)
	}
	return tree.WriteToBytes()
}
