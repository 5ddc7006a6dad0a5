package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// TranscriptionState describes what the dispatcher is doing right now
type TranscriptionState string

const (
	TranscriptionIdle    TranscriptionState = "idle"
	TranscriptionRunning TranscriptionState = "running"
)

// StatusSnapshot represents the complete daemon state at a point in time
type StatusSnapshot struct {
	Mode            string             `json:"mode"`             // Transcription routing mode
	Transcription   TranscriptionState `json:"transcription"`    // Dispatcher activity
	CurrentFile     string             `json:"current_file"`     // File being transcribed, if any
	LastTranscript  string             `json:"last_transcript"`  // Path of the last written transcript
	Playback        interface{}        `json:"playback"`         // Playback snapshot (defined in playback package)
	PlayerConnected bool               `json:"player_connected"` // Player websocket status
	LastError       string             `json:"last_error"`       // Last error message
	Timestamp       time.Time          `json:"timestamp"`        // Snapshot time
}

// WriteStatus persists StatusSnapshot to ~/.cache/scribed/status.json using atomic write
func WriteStatus(status *StatusSnapshot) error {
	if err := os.MkdirAll(cacheDir(), 0755); err != nil {
		return err
	}
	return atomicWriteJSON(filepath.Join(cacheDir(), "status.json"), status)
}

// ReadStatus loads StatusSnapshot from ~/.cache/scribed/status.json
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(cacheDir(), "status.json"))
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // Prevent defer cleanup

	return os.Rename(tmpPath, path)
}
