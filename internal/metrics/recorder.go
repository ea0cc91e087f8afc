// Package metrics provides conversion metrics behind a Recorder interface.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics cost nothing unless a real implementation is
// wired in (watch mode wires the Prometheus recorder and serves it over
// HTTP).
package metrics

import "time"

// Recorder receives conversion pipeline measurements.
type Recorder interface {
	RunStarted()
	RunFinished(status string, d time.Duration)
	PagesRendered(n int)
	PageTranscribed()
	PageExcluded()
	StageDuration(stage string, d time.Duration)
}

// NoopRecorder is the default Recorder; every method does nothing.
type NoopRecorder struct{}

func (NoopRecorder) RunStarted()                         {}
func (NoopRecorder) RunFinished(string, time.Duration)   {}
func (NoopRecorder) PagesRendered(int)                   {}
func (NoopRecorder) PageTranscribed()                    {}
func (NoopRecorder) PageExcluded()                       {}
func (NoopRecorder) StageDuration(string, time.Duration) {}
