package errors

// Convenience constructors for the conversion error taxonomy.

// Input errors

func InputNotFound(path string) *PipelineError {
	return New(CategoryInput, SeverityFatal, "source document not found").
		WithContext("path", path)
}

func ConfigInvalid(field, reason string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "invalid configuration").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Stage errors

func NoPages(input string) *PipelineError {
	return New(CategoryRender, SeverityFatal, "rendering produced no pages").
		WithContext("input", input)
}

func RenderFailed(cause error) *PipelineError {
	return Wrap(cause, CategoryRender, SeverityFatal, "page rendering failed")
}

// PageTranscriptionFailure is per-page and non-fatal; the page is excluded
// from the merge and the run continues.
func PageTranscriptionFailure(page int, cause error) *PipelineError {
	return Wrap(cause, CategoryTranscribe, SeverityWarning, "page transcription failed").
		WithContext("page", page)
}

func NoUsableDocument(cause error) *PipelineError {
	return Wrap(cause, CategoryTranscribe, SeverityFatal, "no page could be transcribed or parsed")
}

func MergeFailed(cause error) *PipelineError {
	return Wrap(cause, CategoryMerge, SeverityFatal, "document merge failed")
}

func ProjectionFailed(cause error) *PipelineError {
	return Wrap(cause, CategoryProject, SeverityFatal, "score projection failed")
}

// Infrastructure errors

func WorkspaceError(operation string, cause error) *PipelineError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

func OutputWriteError(path string, cause error) *PipelineError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "writing output artifact failed").
		WithContext("path", path)
}

func DownloadError(url string, cause error) *PipelineError {
	return Wrap(cause, CategoryNetwork, SeverityFatal, "checkpoint download failed").
		WithContext("url", url)
}

func InternalError(message string, cause error) *PipelineError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
