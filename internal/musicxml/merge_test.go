package musicxml

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageXML builds a page-scoped partwise document with the given number of
// parts and measures per part. marker makes measure content distinguishable
// across pages.
func pageXML(marker string, parts, measures int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<score-partwise version="4.0">` + "\n")
	b.WriteString("  <work><work-title>Test Piece</work-title></work>\n")
	b.WriteString("  <part-list>\n")
	for p := 1; p <= parts; p++ {
		fmt.Fprintf(&b, `    <score-part id="P%d"><part-name>Part %d</part-name></score-part>`+"\n", p, p)
	}
	b.WriteString("  </part-list>\n")
	for p := 1; p <= parts; p++ {
		fmt.Fprintf(&b, `  <part id="P%d">`+"\n", p)
		for m := 1; m <= measures; m++ {
			fmt.Fprintf(&b, `    <measure number="%d"><note><lyric>%s-p%d-m%d</lyric></note></measure>`+"\n", m, marker, p, m)
		}
		b.WriteString("  </part>\n")
	}
	b.WriteString("</score-partwise>\n")
	return b.String()
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func measureMarkers(p *Part) []string {
	var markers []string
	for _, m := range p.Measures {
		start := strings.Index(m.Inner, "<lyric>")
		end := strings.Index(m.Inner, "</lyric>")
		markers = append(markers, m.Inner[start+len("<lyric>"):end])
	}
	return markers
}

func TestMergeConcatenatesMeasuresInPageOrder(t *testing.T) {
	dir := t.TempDir()
	var sources []string
	for i := 0; i < 3; i++ {
		sources = append(sources, writeDoc(t, dir,
			fmt.Sprintf("page_%03d.musicxml", i), pageXML(fmt.Sprintf("page%d", i), 1, 2)))
	}

	score, report, err := Merge(sources)
	require.NoError(t, err)
	require.NotNil(t, score)

	assert.Equal(t, 3, report.Sources)
	assert.Equal(t, 3, report.Merged)
	assert.Empty(t, report.Skipped)

	require.Len(t, score.Parts, 1)
	assert.Equal(t, 1, score.PartList.ScorePartCount())

	want := []string{
		"page0-p1-m1", "page0-p1-m2",
		"page1-p1-m1", "page1-p1-m2",
		"page2-p1-m1", "page2-p1-m2",
	}
	assert.Equal(t, want, measureMarkers(&score.Parts[0]))

	// Measure numbers are preserved verbatim, restarting at page boundaries.
	var numbers []string
	for _, m := range score.Parts[0].Measures {
		numbers = append(numbers, m.Number)
	}
	assert.Equal(t, []string{"1", "2", "1", "2", "1", "2"}, numbers)
}

func TestMergeSkipsMalformedPage(t *testing.T) {
	dir := t.TempDir()
	good1 := writeDoc(t, dir, "page_000.musicxml", pageXML("page0", 1, 2))
	bad := writeDoc(t, dir, "page_001.musicxml", "<score-partwise><part-list>truncated")
	good2 := writeDoc(t, dir, "page_002.musicxml", pageXML("page2", 1, 2))

	score, report, err := Merge([]string{good1, bad, good2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Merged)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, bad, report.Skipped[0].Source)

	// Result must equal the merge of only the valid documents.
	cleanDir := t.TempDir()
	c1 := writeDoc(t, cleanDir, "page_000.musicxml", pageXML("page0", 1, 2))
	c2 := writeDoc(t, cleanDir, "page_002.musicxml", pageXML("page2", 1, 2))
	clean, _, err := Merge([]string{c1, c2})
	require.NoError(t, err)

	got, err := Marshal(score)
	require.NoError(t, err)
	want, err := Marshal(clean)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestMergeMalformedSeedIsSkipped(t *testing.T) {
	dir := t.TempDir()
	bad := writeDoc(t, dir, "page_000.musicxml", "not xml at all")
	good := writeDoc(t, dir, "page_001.musicxml", pageXML("page1", 1, 2))

	score, report, err := Merge([]string{bad, good})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Merged)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, []string{"page1-p1-m1", "page1-p1-m2"}, measureMarkers(&score.Parts[0]))
}

func TestMergeEmptyInput(t *testing.T) {
	_, _, err := Merge(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestMergeAllMalformed(t *testing.T) {
	dir := t.TempDir()
	b1 := writeDoc(t, dir, "page_000.musicxml", "<garbage")
	b2 := writeDoc(t, dir, "page_001.musicxml", "also garbage")

	_, report, err := Merge([]string{b1, b2})
	assert.ErrorIs(t, err, ErrNoUsableDocument)
	require.NotNil(t, report)
	assert.Len(t, report.Skipped, 2)
}

func TestMergeIsOrderSensitive(t *testing.T) {
	dirAB := t.TempDir()
	a1 := writeDoc(t, dirAB, "page_000.musicxml", pageXML("alpha", 1, 1))
	a2 := writeDoc(t, dirAB, "page_001.musicxml", pageXML("beta", 1, 1))

	dirBA := t.TempDir()
	b1 := writeDoc(t, dirBA, "page_000.musicxml", pageXML("beta", 1, 1))
	b2 := writeDoc(t, dirBA, "page_001.musicxml", pageXML("alpha", 1, 1))

	ab, _, err := Merge([]string{a1, a2})
	require.NoError(t, err)
	ba, _, err := Merge([]string{b1, b2})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha-p1-m1", "beta-p1-m1"}, measureMarkers(&ab.Parts[0]))
	assert.Equal(t, []string{"beta-p1-m1", "alpha-p1-m1"}, measureMarkers(&ba.Parts[0]))
}

func TestMergeSortsSourcesLexicographically(t *testing.T) {
	dir := t.TempDir()
	p0 := writeDoc(t, dir, "page_000.musicxml", pageXML("first", 1, 1))
	p1 := writeDoc(t, dir, "page_001.musicxml", pageXML("second", 1, 1))

	// Passing sources out of order must not change the result.
	score, _, err := Merge([]string{p1, p0})
	require.NoError(t, err)
	assert.Equal(t, []string{"first-p1-m1", "second-p1-m1"}, measureMarkers(&score.Parts[0]))
}

func TestMergeGrowsPartListForTrailingParts(t *testing.T) {
	dir := t.TempDir()
	one := writeDoc(t, dir, "page_000.musicxml", pageXML("page0", 1, 2))
	two := writeDoc(t, dir, "page_001.musicxml", pageXML("page1", 2, 2))

	score, _, err := Merge([]string{one, two})
	require.NoError(t, err)

	require.Len(t, score.Parts, 2)
	assert.Equal(t, 2, score.PartList.ScorePartCount())

	// First part accumulates both pages; the grown part only has page 1's
	// measures.
	assert.Equal(t,
		[]string{"page0-p1-m1", "page0-p1-m2", "page1-p1-m1", "page1-p1-m2"},
		measureMarkers(&score.Parts[0]))
	assert.Equal(t,
		[]string{"page1-p2-m1", "page1-p2-m2"},
		measureMarkers(&score.Parts[1]))
	assert.Equal(t, "P2", score.Parts[1].ID)
}

func TestMergeAlignsFewerPartsOverPrefix(t *testing.T) {
	dir := t.TempDir()
	two := writeDoc(t, dir, "page_000.musicxml", pageXML("page0", 2, 1))
	one := writeDoc(t, dir, "page_001.musicxml", pageXML("page1", 1, 1))

	score, _, err := Merge([]string{two, one})
	require.NoError(t, err)

	require.Len(t, score.Parts, 2)
	assert.Equal(t, []string{"page0-p1-m1", "page1-p1-m1"}, measureMarkers(&score.Parts[0]))
	assert.Equal(t, []string{"page0-p2-m1"}, measureMarkers(&score.Parts[1]))
}
