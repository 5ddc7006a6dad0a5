// Package assemblyai implements the remote transcription backend: upload
// the audio payload, submit an asynchronous job, poll it to a terminal
// status at a fixed interval under a hard attempt ceiling.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meetscribe/meetscribe/internal/asr"
	"github.com/meetscribe/meetscribe/internal/diaglog"
	"github.com/meetscribe/meetscribe/internal/transcript"
)

const (
	// DefaultBaseURL is the provider's v2 REST endpoint.
	DefaultBaseURL = "https://api.assemblyai.com/v2"

	// DefaultPollInterval and DefaultMaxPollAttempts give the default
	// 5-minute hard ceiling on a single job. Job durations are bounded
	// by audio length, so a fixed interval is enough; the ceiling guards
	// against runaway waits.
	DefaultPollInterval    = 5 * time.Second
	DefaultMaxPollAttempts = 60
)

// JobStatus is the provider-side lifecycle stage of a transcription job.
// Jobs transition only via polling reads and never leave a terminal state.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// IsTerminal reports whether the status ends the job lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Config configures the remote job client.
type Config struct {
	BaseURL         string        // default DefaultBaseURL
	APIKey          string        // sent verbatim in the Authorization header
	PollInterval    time.Duration // default 5s
	MaxPollAttempts int           // default 60
	HTTPTimeout     time.Duration // per-request timeout, default 30s
}

// Client is an asr.Backend that drives the provider's upload/submit/poll
// job lifecycle. Each Transcribe call owns its own job id and polling
// loop, so concurrent calls against different files do not interfere.
type Client struct {
	cfg    Config
	client *http.Client

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a remote job client, filling zero-value config fields
// with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultMaxPollAttempts
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentRemoteClient
	}
	l.Log(entry)
}

// Name returns the backend identifier.
func (c *Client) Name() string {
	return "assemblyai"
}

// ── wire types ───────────────────────────────────────────────────────────────

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type submitRequest struct {
	AudioURL      string `json:"audio_url"`
	SpeechModel   string `json:"speech_model,omitempty"`
	SpeakerLabels bool   `json:"speaker_labels"`
	LanguageCode  string `json:"language_code,omitempty"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// utterance timestamps arrive in milliseconds on the wire.
type utterance struct {
	Speaker    string   `json:"speaker"`
	Text       string   `json:"text"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Confidence *float64 `json:"confidence"`
}

type pollResponse struct {
	ID         string      `json:"id"`
	Status     JobStatus   `json:"status"`
	Text       string      `json:"text"`
	Utterances []utterance `json:"utterances"`
	Error      string      `json:"error"`
}

// ── operations ───────────────────────────────────────────────────────────────

// Upload transmits the raw audio payload to the provider's storage
// endpoint and returns the upload reference URL. A single attempt, no
// retry; the caller decides whether to retry the whole operation.
func (c *Client) Upload(ctx context.Context, audio []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio")
	if err != nil {
		return "", &asr.UploadError{Err: fmt.Errorf("create form file: %w", err)}
	}
	if _, err := part.Write(audio); err != nil {
		return "", &asr.UploadError{Err: fmt.Errorf("write audio payload: %w", err)}
	}
	if err := writer.Close(); err != nil {
		return "", &asr.UploadError{Err: fmt.Errorf("finalize multipart body: %w", err)}
	}

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventUploadStart,
		Payload: map[string]interface{}{"bytes": len(audio)},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/upload", &body)
	if err != nil {
		return "", &asr.UploadError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", &asr.CancelledError{Stage: "upload", Err: ctx.Err()}
		}
		return "", &asr.UploadError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &asr.UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &asr.UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", truncate(respBody, 200))}
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &asr.UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.UploadURL == "" {
		return "", &asr.UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("response missing upload_url")}
	}

	c.log(diaglog.LogEntry{Event: diaglog.EventUploadDone})
	return parsed.UploadURL, nil
}

// Submit creates a transcription job for an uploaded audio reference and
// returns the provider's job id.
func (c *Client) Submit(ctx context.Context, audioURL string, opts asr.Options) (string, error) {
	payload, err := json.Marshal(submitRequest{
		AudioURL:      audioURL,
		SpeechModel:   opts.ModelName,
		SpeakerLabels: opts.SpeakerLabels,
		LanguageCode:  opts.Language,
	})
	if err != nil {
		return "", &asr.SubmitError{Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", &asr.SubmitError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", &asr.CancelledError{Stage: "submit", Err: ctx.Err()}
		}
		return "", &asr.SubmitError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &asr.SubmitError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &asr.SubmitError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", truncate(respBody, 200))}
	}

	var parsed submitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &asr.SubmitError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.ID == "" {
		return "", &asr.SubmitError{StatusCode: resp.StatusCode, Err: fmt.Errorf("response missing job id")}
	}

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventJobSubmitted,
		JobID:   parsed.ID,
		Payload: map[string]interface{}{"speaker_labels": opts.SpeakerLabels, "speech_model": opts.ModelName},
	})
	return parsed.ID, nil
}

// PollUntilDone queries the job at a fixed interval until it reaches a
// terminal status. Cancellation is cooperative: the context is checked
// before every poll and interrupts the sleep between polls, surfacing
// *asr.CancelledError rather than a partial result. Exceeding the attempt
// ceiling without a terminal status yields *asr.TimeoutError.
func (c *Client) PollUntilDone(ctx context.Context, jobID string, speakerLabels bool) (*transcript.Result, error) {
	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			c.log(diaglog.LogEntry{Event: diaglog.EventPollCancel, JobID: jobID})
			return nil, &asr.CancelledError{Stage: "poll", Err: err}
		}

		status, err := c.getJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventPollTick,
			JobID:   jobID,
			Payload: map[string]interface{}{"attempt": attempt, "status": string(status.Status)},
		})

		switch status.Status {
		case StatusCompleted:
			result := normalize(status, speakerLabels)
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventJobCompleted,
				JobID:   jobID,
				Payload: map[string]interface{}{"segments": len(result.Segments)},
			})
			return result, nil
		case StatusError:
			c.log(diaglog.LogEntry{Event: diaglog.EventJobFailed, JobID: jobID, Reason: status.Error})
			return nil, &asr.TranscriptionError{JobID: jobID, Message: status.Error}
		}

		if attempt == c.cfg.MaxPollAttempts {
			break
		}
		if err := sleep(ctx, c.cfg.PollInterval); err != nil {
			c.log(diaglog.LogEntry{Event: diaglog.EventPollCancel, JobID: jobID})
			return nil, &asr.CancelledError{Stage: "poll", Err: err}
		}
	}

	c.log(diaglog.LogEntry{Event: diaglog.EventPollTimeout, JobID: jobID})
	return nil, &asr.TimeoutError{
		JobID:    jobID,
		Attempts: c.cfg.MaxPollAttempts,
		Interval: c.cfg.PollInterval,
	}
}

// Transcribe chains Upload, Submit, and PollUntilDone, surfacing the
// first failure encountered. Implements asr.Backend.
func (c *Client) Transcribe(ctx context.Context, filePath string, opts asr.Options) (*transcript.Result, error) {
	audio, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read audio file %s: %w", filepath.Base(filePath), err)
	}

	uploadURL, err := c.Upload(ctx, audio)
	if err != nil {
		return nil, err
	}

	jobID, err := c.Submit(ctx, uploadURL, opts)
	if err != nil {
		return nil, err
	}

	return c.PollUntilDone(ctx, jobID, opts.SpeakerLabels)
}

// getJob performs one status read. No retry; a poll transport failure
// fails the whole transcription.
func (c *Client) getJob(ctx context.Context, jobID string) (*pollResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/transcript/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("create poll request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &asr.CancelledError{Stage: "poll", Err: ctx.Err()}
		}
		return nil, fmt.Errorf("poll job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("poll job %s: read response: %w", jobID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("poll job %s: http %d: %s", jobID, resp.StatusCode, truncate(respBody, 200))
	}

	var parsed pollResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("poll job %s: decode response: %w", jobID, err)
	}
	return &parsed, nil
}

// normalize converts a completed provider payload into the shared segment
// model. With speaker labels requested and utterances present, each
// utterance becomes a segment with a "Speaker {id}: " prefix and the full
// text is the newline join of those lines; otherwise the provider's flat
// text becomes FullText with no segments. Utterances may arrive out of
// order and are sorted before the text join so line order matches
// segment order.
func normalize(status *pollResponse, speakerLabels bool) *transcript.Result {
	if !speakerLabels || len(status.Utterances) == 0 {
		return &transcript.Result{
			FullText: status.Text,
			Segments: []transcript.Segment{},
		}
	}

	segments := make([]transcript.Segment, 0, len(status.Utterances))
	for _, u := range status.Utterances {
		seg := transcript.NewSegment(u.Start/1000, u.End/1000, fmt.Sprintf("Speaker %s: %s", u.Speaker, u.Text))
		seg.Confidence = u.Confidence
		segments = append(segments, seg)
	}
	transcript.SortSegments(segments)

	return &transcript.Result{
		FullText: transcript.JoinText(segments, "\n"),
		Segments: segments,
	}
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate returns the first n bytes of body as a string.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
