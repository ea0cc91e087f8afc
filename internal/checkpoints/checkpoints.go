// Package checkpoints fetches the OMR engine's model checkpoint bundles.
//
// Downloads are idempotent: files already present are skipped unless force
// is set, so Ensure can run before every conversion at negligible cost.
package checkpoints

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/thedivergentai/pdf2muse/internal/logfields"
)

// Bundle is one named checkpoint bundle and its files.
type Bundle struct {
	Name  string
	Files []string
}

// Bundles are the two checkpoint bundles the engine requires.
var Bundles = []Bundle{
	{Name: "unet_big", Files: []string{"1st_model.onnx", "1st_weights.h5"}},
	{Name: "seg_net", Files: []string{"2nd_model.onnx", "2nd_weights.h5"}},
}

// critical are the files whose presence marks the checkpoints as usable.
var critical = []string{
	filepath.Join("unet_big", "1st_model.onnx"),
	filepath.Join("seg_net", "2nd_model.onnx"),
}

// Fetcher downloads checkpoint bundles into a local directory.
type Fetcher struct {
	baseURL string
	dir     string
	client  *http.Client
}

// NewFetcher creates a fetcher downloading from baseURL into dir.
func NewFetcher(baseURL, dir string) *Fetcher {
	return &Fetcher{
		baseURL: baseURL,
		dir:     dir,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// Dir returns the local checkpoint directory.
func (f *Fetcher) Dir() string { return f.dir }

// Missing returns the critical checkpoint files not present locally.
func (f *Fetcher) Missing() []string {
	var missing []string
	for _, rel := range critical {
		if _, err := os.Stat(filepath.Join(f.dir, rel)); err != nil {
			missing = append(missing, rel)
		}
	}
	return missing
}

// Ensure downloads the checkpoint bundles if any critical file is absent.
func (f *Fetcher) Ensure(ctx context.Context) error {
	if len(f.Missing()) == 0 {
		slog.Debug("All checkpoints present", logfields.Path(f.dir))
		return nil
	}
	slog.Info("Checkpoints missing, downloading", logfields.Path(f.dir))
	return f.Download(ctx, false)
}

// Download fetches every bundle file, skipping files already present unless
// force is set.
func (f *Fetcher) Download(ctx context.Context, force bool) error {
	for _, bundle := range Bundles {
		targetDir := filepath.Join(f.dir, bundle.Name)
		if err := os.MkdirAll(targetDir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", targetDir, err)
		}

		for _, name := range bundle.Files {
			targetPath := filepath.Join(targetDir, name)
			if !force {
				if _, err := os.Stat(targetPath); err == nil {
					slog.Debug("Checkpoint already present, skipping", logfields.File(targetPath))
					continue
				}
			}
			if err := f.fetchFile(ctx, name, targetPath); err != nil {
				return err
			}
		}
	}
	slog.Info("All checkpoints ready", logfields.Path(f.dir))
	return nil
}

func (f *Fetcher) fetchFile(ctx context.Context, name, targetPath string) error {
	url := f.baseURL + name
	slog.Info("Downloading checkpoint", logfields.URL(url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	// Stream to a temp file first so an interrupted download never leaves a
	// half-written checkpoint behind.
	tmp, err := os.CreateTemp(filepath.Dir(targetPath), name+".partial-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalizing %s: %w", name, err)
	}

	slog.Debug("Saved checkpoint", logfields.File(targetPath))
	return nil
}
