package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/thedivergentai/pdf2muse/internal/checkpoints"
	"github.com/thedivergentai/pdf2muse/internal/config"
	"github.com/thedivergentai/pdf2muse/internal/execrun"
	"github.com/thedivergentai/pdf2muse/internal/history"
	"github.com/thedivergentai/pdf2muse/internal/logfields"
	"github.com/thedivergentai/pdf2muse/internal/metrics"
	"github.com/thedivergentai/pdf2muse/internal/pipeline"
	"github.com/thedivergentai/pdf2muse/internal/render"
	"github.com/thedivergentai/pdf2muse/internal/transcribe"
	"github.com/thedivergentai/pdf2muse/internal/version"
	"github.com/thedivergentai/pdf2muse/internal/watch"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"pdf2muse.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Convert struct {
		Input     string `arg:"" help:"Path to the PDF file to convert"`
		Output    string `short:"o" help:"Directory to save output files" default:"output"`
		NoDeskew  bool   `help:"Disable image deskewing"`
		UseTF     bool   `name:"use-tf" help:"Use TensorFlow instead of ONNX Runtime"`
		SaveCache bool   `help:"Save model predictions for future use"`
		Workers   int    `help:"Parallel transcription workers (0 = config/CPU default)"`
	} `cmd:"" help:"Convert a PDF sheet music file to MusicXML and MuseScore formats"`

	DownloadModels struct {
		Force bool `short:"f" help:"Force re-download even if checkpoints exist"`
	} `cmd:"" name:"download-models" help:"Download OMR model checkpoints"`

	Watch struct {
		Dir    string `arg:"" help:"Directory to watch for incoming PDFs"`
		Output string `short:"o" help:"Root directory for conversion outputs" default:"output"`
	} `cmd:"" help:"Watch a directory and convert PDFs as they appear"`

	History struct {
		Limit int `short:"n" help:"Number of runs to show" default:"20"`
	} `cmd:"" help:"Show recent conversion runs"`

	Version struct{} `cmd:"" help:"Show version information"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := config.LoadOrDefault(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}

	setupLogging(cfg, CLI.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch kctx.Command() {
	case "convert <input>":
		opts := transcribe.Options{
			SkipDeskew:          CLI.Convert.NoDeskew || cfg.Transcribe.SkipDeskew,
			UseAlternateBackend: CLI.Convert.UseTF || cfg.Transcribe.UseAlternateBackend,
			PersistPredictions:  CLI.Convert.SaveCache || cfg.Transcribe.PersistPredictions,
		}
		if err := runConvert(ctx, cfg, CLI.Convert.Input, CLI.Convert.Output, opts, CLI.Convert.Workers); err != nil {
			slog.Error("Conversion failed", logfields.Error(err))
			os.Exit(1)
		}
	case "download-models":
		fetcher := checkpoints.NewFetcher(cfg.Checkpoints.BaseURL, cfg.Checkpoints.Dir)
		if err := fetcher.Download(ctx, CLI.DownloadModels.Force); err != nil {
			slog.Error("Checkpoint download failed", logfields.Error(err))
			os.Exit(1)
		}
	case "watch <dir>":
		if err := runWatch(ctx, cfg, CLI.Watch.Dir, CLI.Watch.Output); err != nil {
			slog.Error("Watch failed", logfields.Error(err))
			os.Exit(1)
		}
	case "history":
		if err := runHistory(ctx, cfg, CLI.History.Limit); err != nil {
			slog.Error("History failed", logfields.Error(err))
			os.Exit(1)
		}
	case "version":
		fmt.Printf("pdf2muse version %s (built %s, commit %s)\n",
			version.Version, version.BuildTime, version.GitCommit)
	}
}

func setupLogging(cfg *config.Config, verbose bool) {
	level := slog.LevelInfo
	switch config.NormalizeLogLevel(cfg.Logging.Level) {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if config.NormalizeLogFormat(cfg.Logging.Format) == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildPipeline wires the production renderer and transcriber.
func buildPipeline(cfg *config.Config, workers int, recorder metrics.Recorder) *pipeline.Pipeline {
	runner := &execrun.ExecRunner{}
	renderer := render.New(cfg.Tools.Pdftoppm, cfg.Render.DPI, runner)
	transcriber := transcribe.NewOemer(cfg.Tools.Oemer, cfg.Checkpoints.Dir, runner)

	if workers <= 0 {
		workers = cfg.EffectiveWorkers()
	}
	return pipeline.New(renderer, transcriber,
		pipeline.WithWorkers(workers),
		pipeline.WithRecorder(recorder),
	)
}

func runConvert(ctx context.Context, cfg *config.Config, input, output string, opts transcribe.Options, workers int) error {
	fetcher := checkpoints.NewFetcher(cfg.Checkpoints.BaseURL, cfg.Checkpoints.Dir)
	if err := fetcher.Ensure(ctx); err != nil {
		return err
	}

	p := buildPipeline(cfg, workers, metrics.NoopRecorder{})
	store := openHistory(cfg)
	if store != nil {
		defer store.Close()
	}

	started := time.Now()
	summary, err := p.Run(ctx, pipeline.RunOptions{Input: input, OutputDir: output, Transcribe: opts})
	recordRun(ctx, store, input, output, started, summary, err)
	if err != nil {
		return err
	}

	fmt.Println("Conversion complete.")
	fmt.Print(summary.String())
	return nil
}

func runWatch(ctx context.Context, cfg *config.Config, dir, outputRoot string) error {
	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		server := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("Serving metrics", slog.String("listen", cfg.Metrics.Listen))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	fetcher := checkpoints.NewFetcher(cfg.Checkpoints.BaseURL, cfg.Checkpoints.Dir)
	if err := fetcher.Ensure(ctx); err != nil {
		return err
	}

	p := buildPipeline(cfg, 0, recorder)
	store := openHistory(cfg)
	if store != nil {
		defer store.Close()
	}

	opts := transcribe.Options{
		SkipDeskew:          cfg.Transcribe.SkipDeskew,
		UseAlternateBackend: cfg.Transcribe.UseAlternateBackend,
		PersistPredictions:  cfg.Transcribe.PersistPredictions,
	}

	convert := func(ctx context.Context, pdfPath string) error {
		// Each input gets its own output directory named after the file.
		stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
		outDir := filepath.Join(outputRoot, stem)

		started := time.Now()
		summary, err := p.Run(ctx, pipeline.RunOptions{Input: pdfPath, OutputDir: outDir, Transcribe: opts})
		recordRun(ctx, store, pdfPath, outDir, started, summary, err)
		return err
	}

	watcher, err := watch.New(dir, cfg.Watch.Debounce.Std(), cfg.Watch.SweepInterval.Std(), convert)
	if err != nil {
		return err
	}
	return watcher.Run(ctx)
}

func runHistory(ctx context.Context, cfg *config.Config, limit int) error {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No conversion runs recorded.")
		return nil
	}

	for _, r := range runs {
		line := fmt.Sprintf("%s  %-7s  %s  pages %d/%d (excluded %d)  %s",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.ID[:8],
			r.PagesTranscribed, r.PagesTotal, r.PagesExcluded, r.Input)
		if r.Error != "" {
			line += "  error: " + r.Error
		}
		fmt.Println(line)
	}
	return nil
}

// openHistory opens the run-history store; failures are logged but never
// block a conversion.
func openHistory(cfg *config.Config) *history.Store {
	if cfg.History.Path == "" {
		return nil
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		slog.Warn("Run history unavailable", logfields.Path(cfg.History.Path), logfields.Error(err))
		return nil
	}
	return store
}

func recordRun(ctx context.Context, store *history.Store, input, output string, started time.Time, summary *pipeline.Summary, runErr error) {
	if store == nil || summary == nil {
		return
	}
	run := history.Run{
		ID:               summary.RunID,
		Input:            input,
		OutputDir:        output,
		MusicXMLPath:     summary.MusicXMLPath,
		MuseScorePath:    summary.MuseScorePath,
		PagesTotal:       summary.PagesTotal,
		PagesTranscribed: summary.PagesTranscribed,
		PagesExcluded:    summary.PagesExcluded,
		Status:           "success",
		StartedAt:        started,
		Duration:         summary.Duration,
	}
	if runErr != nil {
		run.Status = "failed"
		run.Error = runErr.Error()
	}
	if err := store.Record(ctx, run); err != nil {
		slog.Warn("Failed to record run history", logfields.Error(err))
	}
}
