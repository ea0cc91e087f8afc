package musescore

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thedivergentai/pdf2muse/internal/musicxml"
)

const mergedScore = `<?xml version="1.0" encoding="UTF-8"?>
<score-partwise version="4.0">
  <part-list>
    <score-part id="P1"><part-name>Piano</part-name></score-part>
  </part-list>
  <part id="P1">
    <measure number="1"><note><pitch><step>C</step><octave>4</octave></pitch></note></measure>
    <measure number="2"><note><rest/></note></measure>
  </part>
</score-partwise>
`

func TestProjectWrapsScoreWithProvenance(t *testing.T) {
	src, err := musicxml.Parse([]byte(mergedScore))
	require.NoError(t, err)

	doc, err := Project(src)
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, doc.Version)
	require.Len(t, doc.Score.MetaTags, 1)
	assert.Equal(t, "source", doc.Score.MetaTags[0].Name)
	assert.Equal(t, Provenance, doc.Score.MetaTags[0].Value)
}

func TestProjectPreservesMeasureContentVerbatim(t *testing.T) {
	src, err := musicxml.Parse([]byte(mergedScore))
	require.NoError(t, err)

	wantMeasures := make([]string, len(src.Parts[0].Measures))
	for i, m := range src.Parts[0].Measures {
		wantMeasures[i] = m.Inner
	}
	wantDecls := len(src.PartList.Entries)

	doc, err := Project(src)
	require.NoError(t, err)

	require.Len(t, doc.Score.Parts, 1)
	assert.Equal(t, "P1", doc.Score.Parts[0].ID)
	require.Len(t, doc.Score.Parts[0].Measures, len(wantMeasures))
	for i, m := range doc.Score.Parts[0].Measures {
		assert.Equal(t, wantMeasures[i], m.Inner)
	}
	assert.Len(t, doc.Score.PartList.Entries, wantDecls)
}

func TestProjectRejectsPartListMismatch(t *testing.T) {
	src, err := musicxml.Parse([]byte(mergedScore))
	require.NoError(t, err)

	// A second declaration without a matching part body violates the
	// cardinality invariant.
	src.PartList.Entries = append(src.PartList.Entries, musicxml.RawNode{
		XMLName: xml.Name{Local: "score-part"},
		Attrs:   []xml.Attr{{Name: xml.Name{Local: "id"}, Value: "P2"}},
	})

	_, err = Project(src)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestMarshalProducesEditorOpenableDocument(t *testing.T) {
	src, err := musicxml.Parse([]byte(mergedScore))
	require.NoError(t, err)
	doc, err := Project(src)
	require.NoError(t, err)

	out, err := Marshal(doc)
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "<?xml"))
	assert.Contains(t, text, `<museScore version="4.20">`)
	assert.Contains(t, text, `<metaTag name="source">pdf2muse</metaTag>`)
	assert.Contains(t, text, `<step>C</step>`)
}
