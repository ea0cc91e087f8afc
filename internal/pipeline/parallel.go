package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/thedivergentai/pdf2muse/internal/logfields"
	"github.com/thedivergentai/pdf2muse/internal/transcribe"
)

type pageResult struct {
	image string
	doc   string
	err   error
}

// transcribePages runs the transcriber over images with a bounded worker
// pool. Pages share no mutable state, so they are safe to process
// concurrently; results are collected by page index so the returned
// document list is in ascending page order regardless of completion order,
// which the order-sensitive merge depends on.
func (p *Pipeline) transcribePages(ctx context.Context, images []string, docsDir string, opts transcribe.Options) ([]string, []PageFailure) {
	workers := p.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(images) {
		workers = len(images)
	}

	results := make([]pageResult, len(images))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, img := range images {
		wg.Add(1)
		go func(i int, img string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			slog.Debug("Transcribing page", logfields.Page(i), logfields.File(img))
			doc, err := p.transcriber.Transcribe(ctx, img, docsDir, opts)
			results[i] = pageResult{image: img, doc: doc, err: err}
		}(i, img)
	}
	wg.Wait()

	var docs []string
	var failures []PageFailure
	for i, res := range results {
		if res.err != nil {
			slog.Warn("Page transcription failed",
				logfields.Page(i), logfields.File(res.image), logfields.Error(res.err))
			failures = append(failures, PageFailure{Page: i, Source: res.image, Reason: res.err.Error()})
			continue
		}
		docs = append(docs, res.doc)
	}
	return docs, failures
}
