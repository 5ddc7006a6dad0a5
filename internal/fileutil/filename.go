package fileutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// SanitizeForFilename sanitizes a string for safe use in filenames
func SanitizeForFilename(input string) string {
	if input == "" {
		return "Recording"
	}

	// Replace illegal filename characters with underscores
	// Illegal chars: / \ : * ? " < > |
	illegalChars := regexp.MustCompile(`[\/\\:*?"<>|]`)
	sanitized := illegalChars.ReplaceAllString(input, "_")

	// Replace multiple spaces/underscores with single hyphen
	whitespace := regexp.MustCompile(`[\s_]+`)
	sanitized = whitespace.ReplaceAllString(sanitized, "-")

	// Remove leading/trailing hyphens
	sanitized = strings.Trim(sanitized, "-")

	// Limit length to 50 characters for reasonable filenames
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
		sanitized = strings.TrimRight(sanitized, "-")
	}

	if sanitized == "" {
		return "Recording"
	}
	return sanitized
}

// TranscriptBase returns the path transcripts for an audio file should be
// written under, the audio path minus its extension.
func TranscriptBase(audioPath string) string {
	ext := filepath.Ext(audioPath)
	return audioPath[:len(audioPath)-len(ext)]
}

// UniquePath returns path unchanged when it is free, otherwise the first
// numbered variant (base_2.ext, base_3.ext, ...) that does not exist.
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for i := 2; i < 100; i++ {
		try := base + "_" + strconv.Itoa(i) + ext
		if _, err := os.Stat(try); os.IsNotExist(err) {
			return try
		}
	}
	return path
}
