// Package transcribe invokes an optical-music-recognition engine on one
// rendered page image, producing one page-scoped MusicXML document.
//
// The engine is modeled as the Transcriber capability interface so the
// pipeline and its tests can substitute a double that returns canned
// documents or failures without running the real binary.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thedivergentai/pdf2muse/internal/execrun"
)

// Options is the per-page option set of the transcription boundary.
type Options struct {
	// SkipDeskew disables the engine's image deskewing pass.
	SkipDeskew bool
	// UseAlternateBackend selects the TensorFlow backend instead of ONNX.
	UseAlternateBackend bool
	// PersistPredictions keeps the engine's intermediate model predictions.
	PersistPredictions bool
}

// Transcriber converts one page image into one page-scoped notation
// document inside outDir, returning the document path.
type Transcriber interface {
	Transcribe(ctx context.Context, imagePath, outDir string, opts Options) (string, error)
}

// ErrNoDocument means the engine exited successfully but produced no
// MusicXML document.
var ErrNoDocument = errors.New("transcribe: engine produced no document")

// Oemer drives the oemer OMR binary.
type Oemer struct {
	binary string
	// checkpointDir is resolved once per run and passed explicitly; the
	// engine must not depend on process-global checkpoint discovery.
	checkpointDir string
	runner        execrun.Runner
}

// NewOemer creates a Transcriber backed by the oemer binary.
func NewOemer(binary, checkpointDir string, runner execrun.Runner) *Oemer {
	return &Oemer{binary: binary, checkpointDir: checkpointDir, runner: runner}
}

// Transcribe runs oemer on imagePath. The engine writes into a private
// scratch directory so concurrent page transcriptions cannot race on output
// discovery; the produced document is then moved to outDir under the page's
// stem (page_003.png -> page_003.musicxml), keeping lexicographic order
// equal to page order.
func (o *Oemer) Transcribe(ctx context.Context, imagePath, outDir string, opts Options) (string, error) {
	stem := pageStem(imagePath)

	workDir := filepath.Join(outDir, stem+".work")
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	args := []string{imagePath}
	if opts.SkipDeskew {
		args = append(args, "--without-deskew")
	}
	if opts.UseAlternateBackend {
		args = append(args, "--use-tf")
	}
	if opts.PersistPredictions {
		args = append(args, "--save-cache")
	}

	var env []string
	if o.checkpointDir != "" {
		env = append(env, "OEMER_CHECKPOINT_DIR="+o.checkpointDir)
	}

	_, stderr, err := o.runner.Run(ctx, execrun.Command{
		Name: o.binary,
		Args: args,
		Dir:  workDir,
		Env:  env,
	})
	if err != nil {
		return "", fmt.Errorf("running %s on %s: %s: %w",
			o.binary, filepath.Base(imagePath), strings.TrimSpace(stderr), err)
	}

	produced, err := findDocument(workDir)
	if err != nil {
		return "", err
	}

	target := filepath.Join(outDir, stem+".musicxml")
	if err := os.Rename(produced, target); err != nil {
		return "", fmt.Errorf("moving %s: %w", produced, err)
	}
	return target, nil
}

// pageStem returns the image filename without extension.
func pageStem(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// findDocument locates the engine's output document in dir. The engine names
// its output after the input image, but that is not guaranteed across
// versions, so any .musicxml file counts; with several, the last in sorted
// order wins.
func findDocument(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.musicxml"))
	if err != nil {
		return "", fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return "", ErrNoDocument
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
