package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meetscribe/meetscribe/internal/asr"
	"github.com/meetscribe/meetscribe/testutil"
)

// newTestClient creates a Client pointing at the given base URL with fast
// poll settings suitable for tests (no hardcoded sleeps).
func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:         baseURL,
		APIKey:          "test-api-key",
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 10,
		HTTPTimeout:     5 * time.Second,
	})
}

// createTempAudio creates a temporary file with dummy audio data.
func createTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audio.wav")
	if err := os.WriteFile(path, []byte("fake-audio-data"), 0644); err != nil {
		t.Fatalf("write temp audio: %v", err)
	}
	return path
}

func TestUpload_RequestShape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/upload" {
			t.Errorf("expected /upload, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "test-api-key" {
			t.Errorf("expected raw api key in Authorization, got %q", got)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart content-type, got %s", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("expected file field: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "raw-audio" {
			t.Errorf("unexpected payload %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"upload_url": "https://cdn.example/u/1"}`))
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	ref, err := c.Upload(context.Background(), []byte("raw-audio"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "https://cdn.example/u/1" {
		t.Errorf("unexpected upload ref %q", ref)
	}
}

func TestUpload_Non2xx(t *testing.T) {
	p := testutil.NewMockProvider()
	defer p.Close()
	p.UploadStatus = http.StatusServiceUnavailable

	c := newTestClient(p.URL())
	_, err := c.Upload(context.Background(), []byte("raw-audio"))

	var ue *asr.UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *asr.UploadError, got %T: %v", err, err)
	}
	if ue.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", ue.StatusCode)
	}
	if p.UploadCalls() != 1 {
		t.Errorf("expected single upload attempt, got %d", p.UploadCalls())
	}
}

func TestSubmit_RequestShape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcript" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["audio_url"] != "https://cdn.example/u/1" {
			t.Errorf("unexpected audio_url %v", body["audio_url"])
		}
		if body["speech_model"] != "best" {
			t.Errorf("unexpected speech_model %v", body["speech_model"])
		}
		if body["speaker_labels"] != true {
			t.Errorf("expected speaker_labels true, got %v", body["speaker_labels"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "job-9"}`))
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	jobID, err := c.Submit(context.Background(), "https://cdn.example/u/1", asr.Options{
		ModelName:     "best",
		SpeakerLabels: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID != "job-9" {
		t.Errorf("unexpected job id %q", jobID)
	}
}

func TestSubmit_Non2xx(t *testing.T) {
	p := testutil.NewMockProvider()
	defer p.Close()
	p.SubmitStatus = http.StatusBadRequest

	c := newTestClient(p.URL())
	_, err := c.Submit(context.Background(), "https://cdn.example/u/1", asr.Options{})

	var se *asr.SubmitError
	if !errors.As(err, &se) {
		t.Fatalf("expected *asr.SubmitError, got %T: %v", err, err)
	}
	if se.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", se.StatusCode)
	}
}

// Remote submit succeeds, first two polls return processing, third returns
// completed with text "ok": Transcribe resolves to {FullText: "ok",
// Segments: []} after exactly 3 poll calls.
func TestTranscribe_CompletesAfterThreePolls(t *testing.T) {
	p := testutil.NewMockProvider()
	defer p.Close()
	p.Statuses = []string{"processing", "processing", "completed"}
	p.Text = "ok"

	c := newTestClient(p.URL())
	result, err := c.Transcribe(context.Background(), createTempAudio(t), asr.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.FullText != "ok" {
		t.Errorf("expected full text %q, got %q", "ok", result.FullText)
	}
	if len(result.Segments) != 0 {
		t.Errorf("expected no segments without diarization, got %d", len(result.Segments))
	}
	if p.PollCalls() != 3 {
		t.Errorf("expected exactly 3 poll calls, got %d", p.PollCalls())
	}
	if p.UploadCalls() != 1 || p.SubmitCalls() != 1 {
		t.Errorf("expected single upload/submit, got %d/%d", p.UploadCalls(), p.SubmitCalls())
	}
}

func TestPollUntilDone_DiarizedNormalization(t *testing.T) {
	conf := 0.97
	p := testutil.NewMockProvider()
	defer p.Close()
	p.Statuses = []string{"completed"}
	// Utterances deliberately out of chronological order; timestamps in ms.
	p.Utterances = []testutil.MockUtterance{
		{Speaker: "2", Text: "I'm well.", Start: 5300, End: 9000},
		{Speaker: "1", Text: "How are you?", Start: 0, End: 5200, Confidence: &conf},
	}

	c := newTestClient(p.URL())
	result, err := c.PollUntilDone(context.Background(), "job-test-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Segments) != 2 {
		t.Fatalf("expected segment per utterance, got %d", len(result.Segments))
	}
	first, second := result.Segments[0], result.Segments[1]
	if first.Text != "Speaker 1: How are you?" {
		t.Errorf("unexpected first segment text %q", first.Text)
	}
	if second.Text != "Speaker 2: I'm well." {
		t.Errorf("unexpected second segment text %q", second.Text)
	}
	if first.Start != 0 || first.End != 5.2 {
		t.Errorf("expected ms->s conversion, got start=%v end=%v", first.Start, first.End)
	}
	if first.Confidence == nil || *first.Confidence != 0.97 {
		t.Errorf("expected confidence 0.97, got %v", first.Confidence)
	}
	if second.Confidence != nil {
		t.Errorf("expected nil confidence for second segment, got %v", second.Confidence)
	}
	want := "Speaker 1: How are you?\nSpeaker 2: I'm well."
	if result.FullText != want {
		t.Errorf("expected full text %q, got %q", want, result.FullText)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Error("expected distinct non-empty segment ids")
	}
}

func TestPollUntilDone_DiarizationRequestedButFlat(t *testing.T) {
	p := testutil.NewMockProvider()
	defer p.Close()
	p.Statuses = []string{"completed"}
	p.Text = "flat transcript"

	c := newTestClient(p.URL())
	result, err := c.PollUntilDone(context.Background(), "job-test-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FullText != "flat transcript" || len(result.Segments) != 0 {
		t.Errorf("expected flat fallback, got %+v", result)
	}
}

func TestPollUntilDone_ProviderError(t *testing.T) {
	p := testutil.NewMockProvider()
	defer p.Close()
	p.Statuses = []string{"queued", "error"}
	p.ErrorMsg = "audio file is corrupted"

	c := newTestClient(p.URL())
	_, err := c.PollUntilDone(context.Background(), "job-test-1", false)

	var te *asr.TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected *asr.TranscriptionError, got %T: %v", err, err)
	}
	if te.Message != "audio file is corrupted" {
		t.Errorf("provider message not carried verbatim: %q", te.Message)
	}
	if p.PollCalls() != 2 {
		t.Errorf("expected polling to stop at error status, got %d polls", p.PollCalls())
	}
}

func TestPollUntilDone_Timeout(t *testing.T) {
	p := testutil.NewMockProvider()
	defer p.Close()
	p.Statuses = []string{"processing"} // never terminal

	c := NewClient(Config{
		BaseURL:         p.URL(),
		APIKey:          "test-api-key",
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 3,
	})

	_, err := c.PollUntilDone(context.Background(), "job-test-1", false)

	var te *asr.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected *asr.TimeoutError, got %T: %v", err, err)
	}
	if te.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", te.Attempts)
	}
	if p.PollCalls() != 3 {
		t.Errorf("expected exactly 3 polls, got %d", p.PollCalls())
	}
}

func TestPollUntilDone_CancelledDuringSleep(t *testing.T) {
	p := testutil.NewMockProvider()
	defer p.Close()
	p.Statuses = []string{"processing"}

	// A poll interval far longer than the context deadline: the first poll
	// happens, then cancellation must interrupt the sleep promptly instead
	// of waiting out the interval.
	c := NewClient(Config{
		BaseURL:         p.URL(),
		APIKey:          "test-api-key",
		PollInterval:    time.Hour,
		MaxPollAttempts: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.PollUntilDone(ctx, "job-test-1", false)
	elapsed := time.Since(start)

	var ce *asr.CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *asr.CancelledError, got %T: %v", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context cause to unwrap, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, expected prompt propagation", elapsed)
	}
	if p.PollCalls() != 1 {
		t.Errorf("expected no further polls after cancellation, got %d", p.PollCalls())
	}
}

func TestPollUntilDone_CancelledBeforeFirstPoll(t *testing.T) {
	p := testutil.NewMockProvider()
	defer p.Close()

	c := newTestClient(p.URL())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.PollUntilDone(ctx, "job-test-1", false)

	var ce *asr.CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *asr.CancelledError, got %T: %v", err, err)
	}
	if p.PollCalls() != 0 {
		t.Errorf("expected no network call after cancellation, got %d polls", p.PollCalls())
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	p := testutil.NewMockProvider()
	defer p.Close()

	c := newTestClient(p.URL())
	_, err := c.Transcribe(context.Background(), "/nonexistent/audio.wav", asr.Options{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if p.UploadCalls() != 0 {
		t.Errorf("expected no upload for missing file, got %d", p.UploadCalls())
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	for status, want := range map[JobStatus]bool{
		StatusQueued:     false,
		StatusProcessing: false,
		StatusCompleted:  true,
		StatusError:      true,
	} {
		if got := status.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s): want %v, got %v", status, want, got)
		}
	}
}
