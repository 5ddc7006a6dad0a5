package fileutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteMetadata_Basic(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "2026-01-15_1430_standup.wav")
	// Create a dummy audio file so the dir exists.
	if err := os.WriteFile(audioPath, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	meta := &TranscriptMetadata{
		Version:         "1.2.3",
		SourceFile:      audioPath,
		Mode:            "remote",
		Backend:         "assemblyai",
		Model:           "best",
		Language:        "en",
		Formats:         []string{"txt", "srt"},
		SegmentCount:    14,
		DurationSeconds: 1800.5,
		Success:         true,
		TranscribedAt:   time.Date(2026, 1, 15, 15, 1, 0, 0, time.UTC),
	}

	if err := WriteMetadata(audioPath, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	// Verify file exists at expected path.
	metaPath := filepath.Join(dir, "2026-01-15_1430_standup.meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("read meta file: %v", err)
	}

	var got TranscriptMetadata
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Version != "1.2.3" {
		t.Errorf("version = %q, want %q", got.Version, "1.2.3")
	}
	if got.Backend != "assemblyai" {
		t.Errorf("backend = %q, want %q", got.Backend, "assemblyai")
	}
	if got.SegmentCount != 14 {
		t.Errorf("segment_count = %d, want %d", got.SegmentCount, 14)
	}
	if got.DurationSeconds != 1800.5 {
		t.Errorf("duration_seconds = %v, want %v", got.DurationSeconds, 1800.5)
	}
	if !got.Success {
		t.Error("success = false, want true")
	}
}

func TestWriteMetadata_FailureRecord(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "recording.mp3")
	if err := os.WriteFile(audioPath, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	meta := &TranscriptMetadata{
		Version:    "dev",
		SourceFile: audioPath,
		Mode:       "local",
		Backend:    "local_whisper",
		Success:    false,
		Error:      "host process failed",
	}

	if err := WriteMetadata(audioPath, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	got, err := ReadMetadata(audioPath)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got.Success {
		t.Error("success = true, want false")
	}
	if got.Error != "host process failed" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestWriteMetadata_OmitsEmptyOptionalFields(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "recording.wav")
	if err := os.WriteFile(audioPath, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	meta := &TranscriptMetadata{Version: "dev", SourceFile: audioPath, Success: true}
	if err := WriteMetadata(audioPath, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "recording.meta.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"model", "language", "error"} {
		if _, ok := raw[key]; ok {
			t.Errorf("expected %q omitted when empty", key)
		}
	}
}

func TestMetadataPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"recording.wav", "recording.meta.json"},
		{"/path/to/file.mp3", "/path/to/file.meta.json"},
		{"no-ext", "no-ext.meta.json"},
	}
	for _, tt := range tests {
		got := metadataPath(tt.input)
		if got != tt.want {
			t.Errorf("metadataPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWriteMetadata_AtomicNoPartialFile(t *testing.T) {
	// Write to a non-existent directory should fail cleanly.
	badPath := filepath.Join(t.TempDir(), "nonexistent", "sub", "recording.wav")
	meta := &TranscriptMetadata{Version: "dev"}
	err := WriteMetadata(badPath, meta)
	if err == nil {
		t.Fatal("expected error for non-existent directory")
	}
}

func TestTranscriptBase(t *testing.T) {
	if got := TranscriptBase("/rec/meeting.wav"); got != "/rec/meeting" {
		t.Errorf("TranscriptBase = %q", got)
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meeting.txt")

	if got := UniquePath(path); got != path {
		t.Errorf("expected free path unchanged, got %q", got)
	}

	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	got := UniquePath(path)
	if got != filepath.Join(dir, "meeting_2.txt") {
		t.Errorf("expected numbered variant, got %q", got)
	}
}
