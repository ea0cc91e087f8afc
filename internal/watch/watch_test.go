package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records converted paths.
type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) convert(_ context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
	return nil
}

func (c *collector) converted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestNewRejectsMissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), time.Second, time.Minute, nil)
	assert.Error(t, err)
}

func TestNewRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := New(path, time.Second, time.Minute, nil)
	assert.Error(t, err)
}

func TestStartupSweepConvertsExistingPDFs(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "existing.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	c := &collector{}
	w, err := New(dir, 10*time.Millisecond, time.Hour, c.convert)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		got := c.converted()
		return len(got) == 1 && got[0] == pdf
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestNewPDFIsConvertedOnce(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	w, err := New(dir, 10*time.Millisecond, time.Hour, c.convert)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	pdf := filepath.Join(dir, "incoming.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))

	assert.Eventually(t, func() bool {
		return len(c.converted()) >= 1
	}, 3*time.Second, 20*time.Millisecond)

	// Give the debouncer time to fire again if it were going to.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{pdf}, c.converted())

	cancel()
	<-done
}

func TestSweepReconvertsRewrittenFile(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "score.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("v1"), 0o644))

	c := &collector{}
	w, err := New(dir, 10*time.Millisecond, 50*time.Millisecond, c.convert)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return len(c.converted()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Rewrite with a newer modtime; the sweep must pick it up again.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(pdf, []byte("v2"), 0o644))
	require.NoError(t, os.Chtimes(pdf, future, future))

	assert.Eventually(t, func() bool {
		return len(c.converted()) >= 2
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("score.pdf"))
	assert.True(t, isPDF("SCORE.PDF"))
	assert.False(t, isPDF("score.png"))
	assert.False(t, isPDF("score"))
}
