package musicxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/thedivergentai/pdf2muse/internal/logfields"
)

// Merge errors.
var (
	// ErrEmptyInput means Merge was called with zero sources.
	ErrEmptyInput = errors.New("musicxml: no page documents to merge")
	// ErrNoUsableDocument means every source failed to parse.
	ErrNoUsableDocument = errors.New("musicxml: no parseable page document")
)

// Report summarizes one merge: how many sources were seen, how many
// contributed, and which were skipped with why.
type Report struct {
	Sources int
	Merged  int
	Skipped []Skipped
}

// Skipped records one source dropped from the merge.
type Skipped struct {
	Source string
	Reason string
}

// Merge combines page-scoped partwise documents into one continuous score.
//
// Sources are ordered lexicographically, which the transcription stage
// guarantees equals page order (zero-padded page stems). The first parseable
// document seeds the result; each later document's part bodies are aligned
// to the seed's parts positionally and their measures appended in page
// order. Pages declaring more parts than the seed grow the part-list with
// the trailing declarations; pages declaring fewer align over the prefix.
// Malformed documents are skipped with a warning and recorded in the report.
//
// Measure numbers are preserved verbatim from each page, so numbering in
// the merged score restarts at every page boundary. That weakening is
// deliberate; callers wanting continuous numbers must renumber themselves.
//
// The merge is a strict left fold: deterministic for a given source order
// and not commutative.
func Merge(sources []string) (*Score, *Report, error) {
	if len(sources) == 0 {
		return nil, nil, ErrEmptyInput
	}

	ordered := slices.Clone(sources)
	slices.Sort(ordered)

	report := &Report{Sources: len(ordered)}

	// Seed with the first parseable document. A malformed seed candidate is
	// skipped like any other malformed page.
	var seed *Score
	var rest []string
	for i, src := range ordered {
		doc, err := ParseFile(src)
		if err != nil {
			report.skip(src, err)
			continue
		}
		seed = doc
		report.Merged++
		rest = ordered[i+1:]
		break
	}
	if seed == nil {
		return nil, report, fmt.Errorf("%w (%d sources)", ErrNoUsableDocument, len(ordered))
	}

	for _, src := range rest {
		page, err := ParseFile(src)
		if err != nil {
			report.skip(src, err)
			continue
		}
		appendPage(seed, page, src)
		report.Merged++
	}

	return seed, report, nil
}

func (r *Report) skip(source string, err error) {
	r.Skipped = append(r.Skipped, Skipped{Source: source, Reason: err.Error()})
	slog.Warn("Skipping page document", logfields.File(source), logfields.Error(err))
}

// appendPage folds one page document into the seed score.
func appendPage(seed, page *Score, source string) {
	if len(page.Parts) != len(seed.Parts) {
		slog.Warn("Page part count differs from score, aligning positionally",
			logfields.File(source),
			slog.Int("score_parts", len(seed.Parts)),
			slog.Int("page_parts", len(page.Parts)))
	}

	declared := page.PartList.scorePartIndices()
	for i, part := range page.Parts {
		if i < len(seed.Parts) {
			seed.Parts[i].Measures = append(seed.Parts[i].Measures, part.Measures...)
			continue
		}

		// A trailing part the score has not seen before becomes a new part.
		// Earlier pages contribute no measures under it.
		seed.Parts = append(seed.Parts, part)
		if i < len(declared) {
			seed.PartList.Entries = append(seed.PartList.Entries, page.PartList.Entries[declared[i]])
		} else {
			seed.PartList.Entries = append(seed.PartList.Entries, scorePartDecl(part.ID))
		}
	}
}

// scorePartDecl synthesizes a minimal part declaration for a part body that
// arrived without one.
func scorePartDecl(id string) RawNode {
	return RawNode{
		XMLName: xml.Name{Local: "score-part"},
		Attrs:   []xml.Attr{{Name: xml.Name{Local: "id"}, Value: id}},
		Inner:   "<part-name></part-name>",
	}
}
