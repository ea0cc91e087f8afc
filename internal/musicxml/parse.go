package musicxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
)

// ErrMalformedDocument marks a page-scoped document that fails to parse as a
// partwise MusicXML score. At the merge stage this is recoverable: the page
// is skipped, not fatal.
var ErrMalformedDocument = errors.New("musicxml: malformed document")

// Parse decodes a partwise MusicXML document.
func Parse(data []byte) (*Score, error) {
	var s Score
	if err := xml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return &s, nil
}

// ParseFile reads and decodes a partwise MusicXML document from disk.
func ParseFile(path string) (*Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal serializes a score with an XML declaration and two-space
// indentation. Opaque measure and header payloads are written verbatim.
func Marshal(s *Score) ([]byte, error) {
	body, err := xml.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding score: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// WriteFile serializes a score to path.
func WriteFile(s *Score, path string) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
