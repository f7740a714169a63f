package services

import "fmt"

// APIError is a non-2xx reply from a remote API, kept verbatim so callers can
// surface the upstream diagnostics untranslated.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Service, e.StatusCode, e.Body)
}

// SplitError is a failed ffmpeg segmentation run, carrying the tool's output.
type SplitError struct {
	Output string
}

func (e *SplitError) Error() string {
	return "audio split failed: " + e.Output
}

// ValidationError rejects a request before any remote or storage call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
