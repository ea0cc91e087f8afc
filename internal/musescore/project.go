// Package musescore projects a merged MusicXML score into an editor-openable
// MuseScore XML document.
//
// The projection is a structural repackaging, not a notation-level
// conversion: the part-list and every part body are carried over verbatim
// under a museScore root with a provenance metaTag. The result is a lossy,
// best-effort approximation of the editor's native format, readable by
// MuseScore but not a certified conversion.
package musescore

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"

	"github.com/thedivergentai/pdf2muse/internal/musicxml"
)

// FormatVersion is the MuseScore format marker written on the root element.
const FormatVersion = "4.20"

// Provenance is the fixed source tag recorded in the projected document.
const Provenance = "pdf2muse"

// ErrMalformedInput means the merged score violated the part-list/part-body
// cardinality invariant. This indicates a contract breach upstream and is
// fatal.
var ErrMalformedInput = errors.New("musescore: part list does not match part bodies")

// Document is a MuseScore XML project file.
type Document struct {
	XMLName xml.Name `xml:"museScore"`
	Version string   `xml:"version,attr"`
	Score   Score    `xml:"Score"`
}

// Score is the single score element of a MuseScore document.
type Score struct {
	MetaTags []MetaTag          `xml:"metaTag"`
	PartList *musicxml.PartList `xml:"part-list"`
	Parts    []musicxml.Part    `xml:"part"`
}

// MetaTag is a named metadata entry.
type MetaTag struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Project repackages a merged score as a MuseScore document. The source
// score is moved into the result; callers must not use it afterwards.
func Project(src *musicxml.Score) (*Document, error) {
	if declared := src.PartList.ScorePartCount(); declared != len(src.Parts) {
		return nil, fmt.Errorf("%w: %d declared, %d bodies", ErrMalformedInput, declared, len(src.Parts))
	}

	return &Document{
		Version: FormatVersion,
		Score: Score{
			MetaTags: []MetaTag{{Name: "source", Value: Provenance}},
			PartList: &src.PartList,
			Parts:    src.Parts,
		},
	}, nil
}

// Marshal serializes a document with an XML declaration and two-space
// indentation.
func Marshal(d *Document) ([]byte, error) {
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// WriteFile serializes a document to path.
func WriteFile(d *Document, path string) error {
	data, err := Marshal(d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
