// Package structure decomposes a source document into an ordered,
// addressable sequence of text units.
package structure

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jbgab/klartext/internal/document"
)

// Extraction error categories. All are fatal to the job; ErrEmptyDocument
// is reported upward as a user-visible "nothing to improve" condition.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrEmptyDocument     = errors.New("document contains no extractable text")
)

var (
	zipSignature = []byte("PK\x03\x04")
	pdfSignature = []byte("%PDF-")
)

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".docx": true,
	".pdf":  true,
}

// IsSupportedExtension checks if a filename has a supported extension.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// FormatForFile maps a filename extension to a document format.
func FormatForFile(filename string) (document.Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx":
		return document.FormatDocx, nil
	case ".pdf":
		return document.FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Extractor turns raw document bytes into TextUnits. The zero value is
// usable; LineTolerance controls pdf line clustering (see extractPDF).
type Extractor struct {
	// LineTolerance is the maximum vertical distance, in points, between
	// two text fragments grouped into the same pdf line. Zero means the
	// default of 2.0.
	LineTolerance float64
}

// Extract reads the document and produces its unit sequence. The input
// bytes are never mutated; the original buffer stays valid as the
// applicator's base. Unit IDs count up from 1 in extraction order.
func (e *Extractor) Extract(data []byte, format document.Format) ([]document.TextUnit, error) {
	if err := checkSignature(data, format); err != nil {
		return nil, err
	}

	var units []document.TextUnit
	var err error
	switch format {
	case document.FormatDocx:
		units, err = extractDocx(data)
	case document.FormatPDF:
		units, err = e.extractPDF(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, ErrEmptyDocument
	}
	return units, nil
}

// checkSignature verifies the file magic against the declared format
// before handing the bytes to a container parser.
func checkSignature(data []byte, format document.Format) error {
	switch format {
	case document.FormatDocx:
		if !bytes.HasPrefix(data, zipSignature) {
			return fmt.Errorf("%w: not a docx container", ErrUnsupportedFormat)
		}
	case document.FormatPDF:
		if !bytes.HasPrefix(data, pdfSignature) {
			return fmt.Errorf("%w: not a pdf file", ErrUnsupportedFormat)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return nil
}
