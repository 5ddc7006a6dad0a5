package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// MockUtterance mirrors the provider's diarized utterance wire shape
// (timestamps in milliseconds).
type MockUtterance struct {
	Speaker    string   `json:"speaker"`
	Text       string   `json:"text"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// MockProvider is a scripted in-process stand-in for the remote
// transcription provider. Each poll consumes the next entry of Statuses;
// the final entry repeats once the script is exhausted.
type MockProvider struct {
	Server *httptest.Server

	// Script.
	JobID      string
	Statuses   []string // e.g. {"queued", "processing", "completed"}
	Text       string   // flat transcript served on completion
	Utterances []MockUtterance
	ErrorMsg   string // served when status is "error"

	// Failure injection.
	UploadStatus int // non-zero forces this HTTP status on /upload
	SubmitStatus int // non-zero forces this HTTP status on /transcript

	uploadCalls int32
	submitCalls int32
	pollCalls   int32
}

// NewMockProvider starts a mock provider HTTP server. Callers must Close it.
func NewMockProvider() *MockProvider {
	p := &MockProvider{JobID: "job-test-1"}
	p.Server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

// Close shuts the underlying test server down.
func (p *MockProvider) Close() {
	p.Server.Close()
}

// URL returns the provider base URL.
func (p *MockProvider) URL() string {
	return p.Server.URL
}

// UploadCalls returns how many upload requests were received.
func (p *MockProvider) UploadCalls() int {
	return int(atomic.LoadInt32(&p.uploadCalls))
}

// SubmitCalls returns how many job submissions were received.
func (p *MockProvider) SubmitCalls() int {
	return int(atomic.LoadInt32(&p.submitCalls))
}

// PollCalls returns how many status polls were received.
func (p *MockProvider) PollCalls() int {
	return int(atomic.LoadInt32(&p.pollCalls))
}

func (p *MockProvider) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload":
		atomic.AddInt32(&p.uploadCalls, 1)
		if p.UploadStatus != 0 {
			http.Error(w, "upload rejected", p.UploadStatus)
			return
		}
		writeJSON(w, map[string]string{"upload_url": p.Server.URL + "/stored/audio"})

	case r.Method == http.MethodPost && r.URL.Path == "/transcript":
		atomic.AddInt32(&p.submitCalls, 1)
		if p.SubmitStatus != 0 {
			http.Error(w, "submit rejected", p.SubmitStatus)
			return
		}
		writeJSON(w, map[string]string{"id": p.JobID})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/transcript/"):
		n := atomic.AddInt32(&p.pollCalls, 1)
		status := "processing"
		if len(p.Statuses) > 0 {
			idx := int(n) - 1
			if idx >= len(p.Statuses) {
				idx = len(p.Statuses) - 1
			}
			status = p.Statuses[idx]
		}
		body := map[string]interface{}{"id": p.JobID, "status": status}
		switch status {
		case "completed":
			body["text"] = p.Text
			if len(p.Utterances) > 0 {
				body["utterances"] = p.Utterances
			}
		case "error":
			body["error"] = p.ErrorMsg
		}
		writeJSON(w, body)

	default:
		http.Error(w, fmt.Sprintf("unexpected request %s %s", r.Method, r.URL.Path), http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
