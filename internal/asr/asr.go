// Package asr defines the transcription backend contract, the failure
// taxonomy, and the mode-selecting dispatcher that routes between the
// local host adapter and the remote job client.
package asr

import (
	"context"

	"github.com/meetscribe/meetscribe/internal/transcript"
)

// Mode selects which backend the dispatcher routes to.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// Options configures a single transcription request.
type Options struct {
	Language      string // "" = provider default / auto-detect
	ModelName     string // backend-specific model identifier
	SpeakerLabels bool   // request speaker diarization (remote only)
}

// Backend is the uniform contract both backends implement. Transcribe is
// long-running and must not be called on a UI goroutine; cancellation is
// cooperative through ctx.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, filePath string, opts Options) (*transcript.Result, error)
}

// RealtimeToggler is implemented by backends that can stream partial
// results while audio is still being captured. Only the local backend
// supports this.
type RealtimeToggler interface {
	SetRealtime(enabled bool)
}
