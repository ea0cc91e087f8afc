package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thedivergentai/pdf2muse/internal/execrun"
)

// oemerStub simulates the OMR engine: it drops the configured documents into
// its working directory.
type oemerStub struct {
	documents map[string]string // filename -> content
	err       error

	gotCmd execrun.Command
}

func (s *oemerStub) Run(_ context.Context, cmd execrun.Command) (string, string, error) {
	s.gotCmd = cmd
	if s.err != nil {
		return "", "model crashed", s.err
	}
	for name, content := range s.documents {
		if err := os.WriteFile(filepath.Join(cmd.Dir, name), []byte(content), 0o644); err != nil {
			return "", err.Error(), err
		}
	}
	return "", "", nil
}

func TestTranscribeMovesDocumentToPageStem(t *testing.T) {
	stub := &oemerStub{documents: map[string]string{"page_002.musicxml": "<score-partwise/>"}}
	o := NewOemer("oemer", "", stub)
	outDir := t.TempDir()

	path, err := o.Transcribe(context.Background(), "/images/page_002.png", outDir, Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "page_002.musicxml"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<score-partwise/>", string(content))

	// Scratch directory is gone.
	_, err = os.Stat(filepath.Join(outDir, "page_002.work"))
	assert.True(t, os.IsNotExist(err))
}

func TestTranscribeFlagMapping(t *testing.T) {
	stub := &oemerStub{documents: map[string]string{"out.musicxml": "x"}}
	o := NewOemer("oemer", "/ckpt", stub)

	_, err := o.Transcribe(context.Background(), "/images/page_000.png", t.TempDir(), Options{
		SkipDeskew:          true,
		UseAlternateBackend: true,
		PersistPredictions:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, "oemer", stub.gotCmd.Name)
	assert.Equal(t, []string{"/images/page_000.png", "--without-deskew", "--use-tf", "--save-cache"}, stub.gotCmd.Args)
	assert.Contains(t, stub.gotCmd.Env, "OEMER_CHECKPOINT_DIR=/ckpt")
}

func TestTranscribeDefaultsOmitFlags(t *testing.T) {
	stub := &oemerStub{documents: map[string]string{"out.musicxml": "x"}}
	o := NewOemer("oemer", "", stub)

	_, err := o.Transcribe(context.Background(), "/images/page_000.png", t.TempDir(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"/images/page_000.png"}, stub.gotCmd.Args)
	assert.Empty(t, stub.gotCmd.Env)
}

func TestTranscribeNoDocument(t *testing.T) {
	o := NewOemer("oemer", "", &oemerStub{})
	_, err := o.Transcribe(context.Background(), "/images/page_000.png", t.TempDir(), Options{})
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestTranscribeEngineFailure(t *testing.T) {
	stub := &oemerStub{err: errors.New("exit status 2")}
	o := NewOemer("oemer", "", stub)
	_, err := o.Transcribe(context.Background(), "/images/page_000.png", t.TempDir(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestFindDocumentPicksLastSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.musicxml", "b.musicxml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	got, err := findDocument(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.musicxml"), got)
}
