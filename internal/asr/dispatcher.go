package asr

import (
	"context"
	"fmt"
	"sync"

	"github.com/meetscribe/meetscribe/internal/diaglog"
	"github.com/meetscribe/meetscribe/internal/transcript"
)

// RemoteFactory builds a remote backend bound to the given API key. The
// dispatcher calls it per transcription so each request uses the key that
// was configured when the request started.
type RemoteFactory func(apiKey string) Backend

// Dispatcher routes transcription requests to the local or remote backend
// based on its current mode. Mode switches never cancel in-flight
// requests: each TranscribeFile snapshots the configuration up front and
// runs to completion under that snapshot.
type Dispatcher struct {
	mu            sync.Mutex
	mode          Mode
	apiKey        string
	speakerLabels bool
	modelName     string
	language      string

	local     Backend
	newRemote RemoteFactory

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewDispatcher creates a dispatcher in local mode.
func NewDispatcher(local Backend, newRemote RemoteFactory) *Dispatcher {
	return &Dispatcher{
		mode:      ModeLocal,
		local:     local,
		newRemote: newRemote,
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (d *Dispatcher) SetLogger(l *diaglog.Logger) {
	d.loggerMu.Lock()
	d.logger = l
	d.loggerMu.Unlock()
}

func (d *Dispatcher) log(entry diaglog.LogEntry) {
	d.loggerMu.RLock()
	l := d.logger
	d.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentDispatcher
	}
	l.Log(entry)
}

// TranscribeFile routes the file to the backend selected by the current
// mode. Remote mode without an API key fails with *ConfigurationError
// before any network call. Backend failures are wrapped exactly once with
// mode and path context; no retries happen at this layer.
func (d *Dispatcher) TranscribeFile(ctx context.Context, path string) (*transcript.Result, error) {
	d.mu.Lock()
	mode := d.mode
	opts := Options{
		Language:      d.language,
		ModelName:     d.modelName,
		SpeakerLabels: d.speakerLabels,
	}
	apiKey := d.apiKey
	d.mu.Unlock()

	var backend Backend
	switch mode {
	case ModeLocal:
		backend = d.local
	case ModeRemote:
		if apiKey == "" {
			return nil, &ConfigurationError{Reason: "remote mode selected but no API key configured"}
		}
		backend = d.newRemote(apiKey)
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown mode %q", mode)}
	}

	d.log(diaglog.LogEntry{
		Event: diaglog.EventDispatch,
		Payload: map[string]interface{}{
			"mode": string(mode), "file": path, "backend": backend.Name(),
			"speaker_labels": opts.SpeakerLabels,
		},
	})

	result, err := backend.Transcribe(ctx, path, opts)
	if err != nil {
		d.log(diaglog.LogEntry{
			Event:   diaglog.EventDispatchFailed,
			Reason:  err.Error(),
			Payload: map[string]interface{}{"mode": string(mode), "file": path},
		})
		return nil, &DispatchError{Mode: mode, Path: path, Err: err}
	}
	return result, nil
}

// SwitchMode changes the routing mode and, for remote mode, records the
// API key. In-flight transcriptions started under the previous mode run
// to their own completion or failure.
func (d *Dispatcher) SwitchMode(mode Mode, apiKey string) error {
	if mode != ModeLocal && mode != ModeRemote {
		return &ConfigurationError{Reason: fmt.Sprintf("unknown mode %q", mode)}
	}

	d.mu.Lock()
	d.mode = mode
	if mode == ModeRemote {
		d.apiKey = apiKey
	}
	d.mu.Unlock()

	d.log(diaglog.LogEntry{
		Event:   diaglog.EventModeSwitch,
		Payload: map[string]interface{}{"mode": string(mode), "api_key": apiKey},
	})
	return nil
}

// Mode returns the current routing mode.
func (d *Dispatcher) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetSpeakerDiarization toggles speaker labels for subsequent remote
// submissions. Has no effect on requests already in flight.
func (d *Dispatcher) SetSpeakerDiarization(enabled bool) {
	d.mu.Lock()
	d.speakerLabels = enabled
	d.mu.Unlock()
}

// SetModel sets the model name passed to subsequent requests.
func (d *Dispatcher) SetModel(name string) {
	d.mu.Lock()
	d.modelName = name
	d.mu.Unlock()
}

// SetLanguage sets the language hint passed to subsequent requests.
func (d *Dispatcher) SetLanguage(lang string) {
	d.mu.Lock()
	d.language = lang
	d.mu.Unlock()
}

// EnableRealtime turns on streaming partial results. Valid only in local
// mode; remote mode has no streaming capability and fails fast so callers
// surface the limitation instead of believing it succeeded.
func (d *Dispatcher) EnableRealtime() error {
	return d.setRealtime(true)
}

// DisableRealtime turns off streaming partial results. Same mode rules as
// EnableRealtime.
func (d *Dispatcher) DisableRealtime() error {
	return d.setRealtime(false)
}

func (d *Dispatcher) setRealtime(enabled bool) error {
	d.mu.Lock()
	mode := d.mode
	d.mu.Unlock()

	if mode != ModeLocal {
		return &UnsupportedOperationError{Op: "realtime transcription", Mode: mode}
	}
	rt, ok := d.local.(RealtimeToggler)
	if !ok {
		return &UnsupportedOperationError{Op: "realtime transcription", Mode: mode}
	}
	rt.SetRealtime(enabled)
	return nil
}
