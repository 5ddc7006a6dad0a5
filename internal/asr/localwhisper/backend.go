// Package localwhisper is the local dispatch adapter: it hands the audio
// file to the host's synchronous transcription entry point (a whisper CLI
// binary) in a single blocking call and wraps whatever comes back.
package localwhisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/meetscribe/meetscribe/internal/asr"
	"github.com/meetscribe/meetscribe/internal/diaglog"
	"github.com/meetscribe/meetscribe/internal/transcript"
)

// Config configures the local host command.
type Config struct {
	BinaryPath     string // path to whisper-cpp or faster-whisper CLI
	ModelPath      string // path to .bin model file
	Threads        int    // CPU threads (0 = auto)
	TimeoutSeconds int    // default 300 (5 minutes for long recordings)
}

// Backend shells out to the host transcription binary. The call blocks
// until the host finishes; callers must run it off the UI goroutine. The
// host is a black box: its failures are surfaced verbatim, never
// interpreted or retried.
type Backend struct {
	cfg Config

	mu       sync.Mutex
	realtime bool

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewBackend creates a local backend with the given config.
func NewBackend(cfg Config) *Backend {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 300
	}
	return &Backend{cfg: cfg}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (b *Backend) SetLogger(l *diaglog.Logger) {
	b.loggerMu.Lock()
	b.logger = l
	b.loggerMu.Unlock()
}

func (b *Backend) log(entry diaglog.LogEntry) {
	b.loggerMu.RLock()
	l := b.logger
	b.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentLocalWhisper
	}
	l.Log(entry)
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return "local_whisper"
}

// SetRealtime toggles streaming partial results. The flag is forwarded to
// the host command; the host owns actual streaming behavior.
func (b *Backend) SetRealtime(enabled bool) {
	b.mu.Lock()
	b.realtime = enabled
	b.mu.Unlock()
}

// hostOutput mirrors the structured payload shape the host may return.
// Legacy hosts return a bare string instead.
type hostOutput struct {
	FullText string `json:"full_text"`
	Segments []struct {
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence"`
	} `json:"segments"`
}

// Transcribe invokes the host binary once and wraps its output. Any host
// failure (missing binary, non-zero exit, timeout kill) surfaces as
// *asr.LocalTranscriptionError with the host's message verbatim; caller
// cancellation surfaces as *asr.CancelledError.
func (b *Backend) Transcribe(ctx context.Context, filePath string, opts asr.Options) (*transcript.Result, error) {
	if _, err := os.Stat(b.cfg.BinaryPath); err != nil {
		return nil, &asr.LocalTranscriptionError{Message: fmt.Sprintf("binary not found at %q", b.cfg.BinaryPath), Err: err}
	}

	args := b.buildArgs(filePath, opts)
	cmd := exec.Command(b.cfg.BinaryPath, args...)

	// Process group so the timeout kill takes the whole tree down.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.log(diaglog.LogEntry{
		Event:   diaglog.EventLocalInvoke,
		Payload: map[string]interface{}{"file": filePath, "args": strings.Join(args, " ")},
	})

	if err := cmd.Start(); err != nil {
		return nil, &asr.LocalTranscriptionError{Message: "failed to start host process", Err: err}
	}

	var mu sync.Mutex
	var killed, cancelled bool
	kill := func(becauseCancel bool) {
		mu.Lock()
		killed = true
		cancelled = cancelled || becauseCancel
		mu.Unlock()
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	timer := time.AfterFunc(time.Duration(b.cfg.TimeoutSeconds)*time.Second, func() { kill(false) })
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			kill(true)
		case <-watchDone:
		}
	}()

	err := cmd.Wait()
	timer.Stop()
	close(watchDone)

	if err != nil {
		mu.Lock()
		wasKilled, wasCancelled := killed, cancelled
		mu.Unlock()
		if wasCancelled {
			return nil, &asr.CancelledError{Stage: "local transcription", Err: ctx.Err()}
		}
		if wasKilled {
			return nil, &asr.LocalTranscriptionError{
				Message: fmt.Sprintf("host process timed out after %d seconds", b.cfg.TimeoutSeconds),
			}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "host process failed"
		}
		b.log(diaglog.LogEntry{Event: diaglog.EventLocalFailed, Reason: msg})
		return nil, &asr.LocalTranscriptionError{Message: msg, Err: err}
	}

	result, err := parseHostOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	b.log(diaglog.LogEntry{
		Event:   diaglog.EventLocalDone,
		Payload: map[string]interface{}{"file": filePath, "segments": len(result.Segments)},
	})
	return result, nil
}

// parseHostOutput accepts either the structured {full_text, segments}
// payload or the legacy bare-string shape, which is wrapped as FullText
// with no segments.
func parseHostOutput(out []byte) (*transcript.Result, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &transcript.Result{
			FullText: string(trimmed),
			Segments: []transcript.Segment{},
		}, nil
	}

	var parsed hostOutput
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return nil, &asr.LocalTranscriptionError{Message: "host returned malformed output", Err: err}
	}

	segments := make([]transcript.Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		seg := transcript.NewSegment(s.Start, s.End, s.Text)
		seg.Confidence = s.Confidence
		segments = append(segments, seg)
	}
	transcript.SortSegments(segments)

	fullText := parsed.FullText
	if fullText == "" && len(segments) > 0 {
		fullText = transcript.JoinText(segments, " ")
	}

	return &transcript.Result{FullText: fullText, Segments: segments}, nil
}

// buildArgs constructs the CLI arguments for the host binary.
func (b *Backend) buildArgs(filePath string, opts asr.Options) []string {
	var args []string

	if b.cfg.ModelPath != "" {
		args = append(args, "--model", b.cfg.ModelPath)
	}

	args = append(args, "--output-json")

	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}

	if b.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(b.cfg.Threads))
	}

	b.mu.Lock()
	if b.realtime {
		args = append(args, "--live")
	}
	b.mu.Unlock()

	args = append(args, filePath)
	return args
}
