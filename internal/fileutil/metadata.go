// Package fileutil provides audio file and transcript path utilities.
package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TranscriptMetadata is the sidecar written alongside each transcript.
type TranscriptMetadata struct {
	Version         string    `json:"version"`
	SourceFile      string    `json:"source_file"`
	Mode            string    `json:"mode"`
	Backend         string    `json:"backend"`
	Model           string    `json:"model,omitempty"`
	Language        string    `json:"language,omitempty"`
	Formats         []string  `json:"formats"`
	SegmentCount    int       `json:"segment_count"`
	DurationSeconds float64   `json:"duration_seconds"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	TranscribedAt   time.Time `json:"transcribed_at"`
}

// WriteMetadata writes a <basepath>.meta.json sidecar file alongside the
// audio file. Uses atomic write (temp + rename) consistent with ipc patterns.
func WriteMetadata(audioPath string, meta *TranscriptMetadata) error {
	metaPath := metadataPath(audioPath)
	dir := filepath.Dir(metaPath)

	tmpFile, err := os.CreateTemp(dir, "meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error.
	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close metadata temp: %w", err)
	}
	success = true // prevent defer cleanup

	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads the sidecar for an audio file.
func ReadMetadata(audioPath string) (*TranscriptMetadata, error) {
	data, err := os.ReadFile(metadataPath(audioPath))
	if err != nil {
		return nil, err
	}
	var meta TranscriptMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

// metadataPath returns <basepath>.meta.json for a given audio file path.
func metadataPath(audioPath string) string {
	return TranscriptBase(audioPath) + ".meta.json"
}
