// Package pipeline orchestrates one conversion run: render the PDF to page
// images, transcribe each page, merge the page documents into one score,
// and project the score into a MuseScore document.
//
// A run moves through Rendering -> Transcribing -> Merging -> Projecting ->
// Done, with Failed reachable from any non-terminal state. Per-page
// transcription or parse failures exclude the page and continue; only zero
// usable pages fails the run. Intermediate files live in a run-scoped
// workspace that is removed on every exit path, and no partial artifacts
// are left in the output directory on failure.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/thedivergentai/pdf2muse/internal/errors"
	"github.com/thedivergentai/pdf2muse/internal/logfields"
	"github.com/thedivergentai/pdf2muse/internal/metrics"
	"github.com/thedivergentai/pdf2muse/internal/musescore"
	"github.com/thedivergentai/pdf2muse/internal/musicxml"
	"github.com/thedivergentai/pdf2muse/internal/render"
	"github.com/thedivergentai/pdf2muse/internal/transcribe"
	"github.com/thedivergentai/pdf2muse/internal/workspace"
)

// State names one phase of a conversion run.
type State string

const (
	StateRendering    State = "rendering"
	StateTranscribing State = "transcribing"
	StateMerging      State = "merging"
	StateProjecting   State = "projecting"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Output artifact names inside the output directory.
const (
	MusicXMLName  = "combined.musicxml"
	MuseScoreName = "combined.mscx"
)

// PageRenderer renders a source document into ordered page images.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// Pipeline runs conversions. Construct once, run many times.
type Pipeline struct {
	renderer      PageRenderer
	transcriber   transcribe.Transcriber
	workers       int
	recorder      metrics.Recorder
	workspaceBase string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds the parallel transcription pool (1 = sequential).
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithWorkspaceBase overrides the base directory for run workspaces.
func WithWorkspaceBase(dir string) Option {
	return func(p *Pipeline) { p.workspaceBase = dir }
}

// New creates a pipeline over the given renderer and transcriber.
func New(renderer PageRenderer, transcriber transcribe.Transcriber, opts ...Option) *Pipeline {
	p := &Pipeline{
		renderer:    renderer,
		transcriber: transcriber,
		workers:     1,
		recorder:    metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOptions parameterizes one conversion run.
type RunOptions struct {
	Input      string
	OutputDir  string
	Transcribe transcribe.Options
}

// PageFailure records one excluded page.
type PageFailure struct {
	Page   int
	Source string
	Reason string
}

// Summary reports the outcome of one run.
type Summary struct {
	RunID            string
	State            State
	Input            string
	PagesTotal       int
	PagesTranscribed int
	PagesExcluded    int
	Failures         []PageFailure
	MusicXMLPath     string
	MuseScorePath    string
	Duration         time.Duration
}

// Run executes the full conversion. The returned summary is non-nil even on
// failure and reflects how far the run got.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	start := time.Now()
	ws := workspace.NewManager(p.workspaceBase)
	summary := &Summary{RunID: ws.RunID(), Input: opts.Input, State: StateFailed}

	p.recorder.RunStarted()
	defer func() {
		summary.Duration = time.Since(start)
		status := "failed"
		if summary.State == StateDone {
			status = "success"
		} else {
			summary.State = StateFailed
		}
		p.recorder.RunFinished(status, summary.Duration)
	}()

	if _, err := os.Stat(opts.Input); err != nil {
		return summary, errors.InputNotFound(opts.Input)
	}

	if err := ws.Create(); err != nil {
		return summary, errors.WorkspaceError("create", err)
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Failed to cleanup workspace", logfields.RunID(summary.RunID), logfields.Error(err))
		}
	}()

	imageDir, err := ws.CreateSubdir("images")
	if err != nil {
		return summary, errors.WorkspaceError("create images dir", err)
	}
	docsDir, err := ws.CreateSubdir("musicxml")
	if err != nil {
		return summary, errors.WorkspaceError("create musicxml dir", err)
	}

	// Rendering
	images, err := p.renderStage(ctx, summary, opts.Input, imageDir)
	if err != nil {
		return summary, err
	}

	// Transcribing
	docs := p.transcribeStage(ctx, summary, images, docsDir, opts.Transcribe)
	if len(docs) == 0 {
		return summary, errors.NoUsableDocument(musicxml.ErrNoUsableDocument)
	}

	// Merging. The merged document is serialized before projection because
	// projection takes ownership of the score's part-list and bodies.
	score, musicXMLData, err := p.mergeStage(summary, docs)
	if err != nil {
		return summary, err
	}

	// Projecting
	museScoreData, err := p.projectStage(summary, score)
	if err != nil {
		return summary, err
	}

	if err := p.writeOutputs(summary, opts.OutputDir, musicXMLData, museScoreData); err != nil {
		return summary, err
	}

	summary.State = StateDone
	slog.Info("Conversion complete",
		logfields.RunID(summary.RunID),
		logfields.Count(summary.PagesTranscribed),
		slog.Int("excluded", summary.PagesExcluded),
		logfields.Path(summary.MuseScorePath))
	return summary, nil
}

func (p *Pipeline) renderStage(ctx context.Context, summary *Summary, input, imageDir string) ([]string, error) {
	p.enterStage(summary, StateRendering)
	defer p.observeStage(StateRendering, time.Now())

	images, err := p.renderer.RenderPages(ctx, input, imageDir)
	if err != nil {
		switch {
		case stderrors.Is(err, render.ErrInputNotFound):
			return nil, errors.InputNotFound(input)
		case stderrors.Is(err, render.ErrNoPages):
			return nil, errors.NoPages(input)
		default:
			return nil, errors.RenderFailed(err)
		}
	}

	summary.PagesTotal = len(images)
	p.recorder.PagesRendered(len(images))
	slog.Info("Rendered pages", logfields.RunID(summary.RunID), logfields.Count(len(images)))
	return images, nil
}

func (p *Pipeline) transcribeStage(ctx context.Context, summary *Summary, images []string, docsDir string, opts transcribe.Options) []string {
	p.enterStage(summary, StateTranscribing)
	defer p.observeStage(StateTranscribing, time.Now())

	docs, failures := p.transcribePages(ctx, images, docsDir, opts)
	summary.PagesTranscribed = len(docs)
	summary.Failures = append(summary.Failures, failures...)
	summary.PagesExcluded += len(failures)
	for range failures {
		p.recorder.PageExcluded()
	}
	for range docs {
		p.recorder.PageTranscribed()
	}

	slog.Info("Transcribed pages",
		logfields.RunID(summary.RunID),
		logfields.Count(len(docs)),
		slog.Int("excluded", len(failures)))
	return docs
}

func (p *Pipeline) mergeStage(summary *Summary, docs []string) (*musicxml.Score, []byte, error) {
	p.enterStage(summary, StateMerging)
	defer p.observeStage(StateMerging, time.Now())

	score, report, err := musicxml.Merge(docs)
	if err != nil {
		if stderrors.Is(err, musicxml.ErrNoUsableDocument) {
			return nil, nil, errors.NoUsableDocument(err)
		}
		return nil, nil, errors.MergeFailed(err)
	}

	// Documents that reached the merge but failed to parse count as excluded
	// pages too.
	for _, skipped := range report.Skipped {
		summary.Failures = append(summary.Failures, PageFailure{
			Page:   pageIndexOf(skipped.Source),
			Source: skipped.Source,
			Reason: skipped.Reason,
		})
		summary.PagesExcluded++
		summary.PagesTranscribed--
		p.recorder.PageExcluded()
	}

	data, err := musicxml.Marshal(score)
	if err != nil {
		return nil, nil, errors.MergeFailed(err)
	}
	return score, data, nil
}

func (p *Pipeline) projectStage(summary *Summary, score *musicxml.Score) ([]byte, error) {
	p.enterStage(summary, StateProjecting)
	defer p.observeStage(StateProjecting, time.Now())

	doc, err := musescore.Project(score)
	if err != nil {
		return nil, errors.ProjectionFailed(err)
	}
	data, err := musescore.Marshal(doc)
	if err != nil {
		return nil, errors.ProjectionFailed(err)
	}
	return data, nil
}

// writeOutputs persists both artifacts, removing the first if the second
// fails so a fatal failure never leaves partial outputs behind.
func (p *Pipeline) writeOutputs(summary *Summary, outputDir string, musicXMLData, museScoreData []byte) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.OutputWriteError(outputDir, err)
	}

	musicXMLPath := filepath.Join(outputDir, MusicXMLName)
	museScorePath := filepath.Join(outputDir, MuseScoreName)

	if err := os.WriteFile(musicXMLPath, musicXMLData, 0o644); err != nil {
		return errors.OutputWriteError(musicXMLPath, err)
	}
	if err := os.WriteFile(museScorePath, museScoreData, 0o644); err != nil {
		os.Remove(musicXMLPath)
		return errors.OutputWriteError(museScorePath, err)
	}

	summary.MusicXMLPath = musicXMLPath
	summary.MuseScorePath = museScorePath
	return nil
}

func (p *Pipeline) enterStage(summary *Summary, state State) {
	summary.State = state
	slog.Debug("Stage starting", logfields.RunID(summary.RunID), logfields.Stage(string(state)))
}

func (p *Pipeline) observeStage(state State, start time.Time) {
	p.recorder.StageDuration(string(state), time.Since(start))
}

// pageIndexOf recovers the zero-based page index from a page document path
// such as .../page_004.musicxml. Returns -1 when the name does not follow
// the pipeline's naming scheme.
func pageIndexOf(docPath string) int {
	base := filepath.Base(docPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	_, num, ok := strings.Cut(stem, "_")
	if !ok {
		return -1
	}
	idx, err := strconv.Atoi(num)
	if err != nil {
		return -1
	}
	return idx
}

// String renders a human-readable status block for the end of a run.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pages: %d total, %d transcribed, %d excluded\n",
		s.PagesTotal, s.PagesTranscribed, s.PagesExcluded)
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "  excluded page %d: %s\n", f.Page, f.Reason)
	}
	if s.MusicXMLPath != "" {
		fmt.Fprintf(&b, "MusicXML:  %s\n", s.MusicXMLPath)
	}
	if s.MuseScorePath != "" {
		fmt.Fprintf(&b, "MuseScore: %s\n", s.MuseScorePath)
	}
	return b.String()
}
