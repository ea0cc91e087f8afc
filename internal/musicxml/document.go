// Package musicxml models partwise MusicXML notation documents and merges
// the page-scoped documents produced by per-page transcription into one
// continuous score.
//
// The model is deliberately shallow: the part-list and part/measure skeleton
// is typed, while everything inside a measure (and every header element such
// as work or identification) is carried as opaque markup. Measure contents
// are never interpreted or validated, only moved.
package musicxml

import "encoding/xml"

// Score is a partwise MusicXML document (score-partwise root).
type Score struct {
	XMLName xml.Name `xml:"score-partwise"`
	Version string   `xml:"version,attr,omitempty"`

	// Header collects work, identification, defaults, credit and any other
	// elements preceding the part-list, passed through untouched.
	Header []RawNode `xml:",any"`

	PartList PartList `xml:"part-list"`
	Parts    []Part   `xml:"part"`
}

// PartList is the ordered list of part declarations. Entries keep score-part
// and part-group elements interleaved in document order.
type PartList struct {
	Entries []RawNode `xml:",any"`
}

// ScorePartCount returns the number of part declarations (score-part
// entries), ignoring part-group markers.
func (pl *PartList) ScorePartCount() int {
	return len(pl.scorePartIndices())
}

// scorePartIndices returns the indices of score-part entries in Entries.
func (pl *PartList) scorePartIndices() []int {
	var idx []int
	for i, e := range pl.Entries {
		if e.XMLName.Local == "score-part" {
			idx = append(idx, i)
		}
	}
	return idx
}

// Part is one part body: an ordered sequence of measures.
type Part struct {
	ID       string    `xml:"id,attr"`
	Measures []Measure `xml:"measure"`
}

// Measure is one measure of one part. Its content is opaque markup.
type Measure struct {
	Number string     `xml:"number,attr,omitempty"`
	Attrs  []xml.Attr `xml:",any,attr"`
	Inner  string     `xml:",innerxml"`
}

// RawNode is an arbitrary XML element carried through without interpretation.
type RawNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

// Attr returns the value of the named attribute, or "" when absent.
func (n *RawNode) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
