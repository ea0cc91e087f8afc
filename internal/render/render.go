// Package render turns a PDF into an ordered sequence of page images by
// driving the poppler pdftoppm binary.
//
// Rendered pages are normalized to zero-padded names (page_000.png,
// page_001.png, ...) so that lexicographic order equals presentation order,
// which the merge stage depends on.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/thedivergentai/pdf2muse/internal/execrun"
)

// Rendering errors.
var (
	// ErrInputNotFound means the source PDF does not exist or is unreadable.
	ErrInputNotFound = errors.New("render: source document not found")
	// ErrNoPages means rendering succeeded but produced zero page images.
	ErrNoPages = errors.New("render: rendering produced no pages")
)

// pagePrefix is the output stem passed to pdftoppm and the prefix of the
// normalized page names.
const pagePrefix = "page"

// Renderer renders PDF pages to PNG images.
type Renderer struct {
	binary string
	dpi    int
	runner execrun.Runner
}

// New creates a renderer using the given pdftoppm binary and resolution.
func New(binary string, dpi int, runner execrun.Runner) *Renderer {
	return &Renderer{binary: binary, dpi: dpi, runner: runner}
}

// RenderPages rasterizes every page of pdfPath into outDir and returns the
// image paths in ascending page order.
func (r *Renderer) RenderPages(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, pdfPath)
		}
		return nil, fmt.Errorf("checking %s: %w", pdfPath, err)
	}

	args := []string{"-png", "-r", strconv.Itoa(r.dpi), pdfPath, filepath.Join(outDir, pagePrefix)}
	_, stderr, err := r.runner.Run(ctx, execrun.Command{Name: r.binary, Args: args})
	if err != nil {
		return nil, fmt.Errorf("running %s: %s: %w", r.binary, strings.TrimSpace(stderr), err)
	}

	return normalizePages(outDir)
}

// normalizePages renames pdftoppm's output (page-1.png, page-02.png, ...)
// to zero-padded stems and returns the resulting paths in page order.
func normalizePages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var pages []renderedPage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx, ok := pageIndex(e.Name())
		if !ok {
			continue
		}
		pages = append(pages, renderedPage{index: idx, path: filepath.Join(dir, e.Name())})
	}

	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	slices.SortFunc(pages, func(a, b renderedPage) int { return a.index - b.index })

	// pdftoppm numbers pages from 1; normalized names count from 0 like the
	// rest of the pipeline.
	ordered := make([]string, 0, len(pages))
	for _, p := range pages {
		target := filepath.Join(dir, fmt.Sprintf("%s_%03d.png", pagePrefix, p.index-1))
		if p.path != target {
			if err := os.Rename(p.path, target); err != nil {
				return nil, fmt.Errorf("renaming %s: %w", p.path, err)
			}
		}
		ordered = append(ordered, target)
	}
	return ordered, nil
}

type renderedPage struct {
	index int
	path  string
}

// pageIndex extracts the 1-based page number from a pdftoppm output name
// such as page-7.png or page-007.png.
func pageIndex(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, ".png")
	if !ok {
		return 0, false
	}
	rest, ok := strings.CutPrefix(base, pagePrefix)
	if !ok {
		return 0, false
	}
	rest = strings.TrimLeft(rest, "-_")
	idx, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return idx, true
}
