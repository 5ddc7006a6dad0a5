package asr

import (
	"fmt"
	"time"
)

// The error types below form the failure taxonomy shared by both backends
// and the dispatcher. Every stage failure is fatal to its Transcribe call;
// nothing here is retried internally. Types wrap their cause where one
// exists so errors.Is / errors.As work through the dispatcher layer.

// UploadError reports a failed audio payload transmission to the remote
// provider. A single attempt is made; the caller decides whether to retry
// the whole operation.
type UploadError struct {
	StatusCode int // 0 on transport failure
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload failed: http %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// SubmitError reports a failed transcription job creation.
type SubmitError struct {
	StatusCode int
	Err        error
}

func (e *SubmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("job submit failed: http %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("job submit failed: %v", e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// TranscriptionError carries a provider-reported job failure verbatim.
type TranscriptionError struct {
	JobID   string
	Message string
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription job %s failed: %s", e.JobID, e.Message)
}

// TimeoutError reports that polling exhausted its attempt ceiling without
// the job reaching a terminal status.
type TimeoutError struct {
	JobID    string
	Attempts int
	Interval time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transcription job %s still pending after %d polls at %v intervals",
		e.JobID, e.Attempts, e.Interval)
}

// CancelledError reports that the caller aborted an operation. Stage names
// the step that observed the cancellation (upload, submit, poll).
type CancelledError struct {
	Stage string
	Err   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("transcription cancelled during %s: %v", e.Stage, e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// ConfigurationError reports a dispatch precondition failure such as
// remote mode without an API key. Raised before any network call.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// UnsupportedOperationError reports an operation the current mode cannot
// perform. Callers get a hard failure instead of a silent no-op.
type UnsupportedOperationError struct {
	Op   string
	Mode Mode
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s is not supported in %s mode", e.Op, e.Mode)
}

// LocalTranscriptionError carries an opaque host failure from the local
// transcription entry point verbatim.
type LocalTranscriptionError struct {
	Message string
	Err     error
}

func (e *LocalTranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("local transcription failed: %s: %v", e.Message, e.Err)
	}
	return "local transcription failed: " + e.Message
}

func (e *LocalTranscriptionError) Unwrap() error { return e.Err }

// DispatchError is the single layer of context the dispatcher adds to a
// backend failure: which mode, which file. The underlying typed error
// remains reachable via Unwrap.
type DispatchError struct {
	Mode Mode
	Path string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("transcribe %s (%s mode): %v", e.Path, e.Mode, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
