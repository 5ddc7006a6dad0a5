package transcript

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// WriteText writes a plain text transcript with one segment per line, each
// prefixed by its timestamp in [HH:MM:SS] format. A result with no segments
// is written as its full text alone. The file is written atomically
// (temp file + rename) to avoid partial writes.
func WriteText(path string, r *Result) error {
	var b strings.Builder
	if len(r.Segments) == 0 {
		b.WriteString(r.FullText)
		if r.FullText != "" && !strings.HasSuffix(r.FullText, "\n") {
			b.WriteByte('\n')
		}
		return atomicWrite(path, []byte(b.String()))
	}
	for _, seg := range r.Segments {
		fmt.Fprintf(&b, "[%s] %s\n", formatTextTimestamp(seg.Start), seg.Text)
	}
	return atomicWrite(path, []byte(b.String()))
}

// WriteSRT writes a SubRip (.srt) subtitle file. Each segment is numbered
// sequentially with start/end timestamps in HH:MM:SS,mmm format.
func WriteSRT(path string, r *Result) error {
	var b strings.Builder
	for i, seg := range r.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTimestamp(seg.Start), formatSRTTimestamp(seg.End))
		fmt.Fprintf(&b, "%s\n", seg.Text)
	}
	return atomicWrite(path, []byte(b.String()))
}

// WriteVTT writes a WebVTT (.vtt) subtitle file. Each segment has
// start/end timestamps in HH:MM:SS.mmm format, preceded by the WEBVTT header.
func WriteVTT(path string, r *Result) error {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, seg := range r.Segments {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s --> %s\n", formatVTTTimestamp(seg.Start), formatVTTTimestamp(seg.End))
		fmt.Fprintf(&b, "%s\n", seg.Text)
	}
	return atomicWrite(path, []byte(b.String()))
}

// WriteAll writes the transcript in every requested format. basePath is the
// file path without extension (e.g. "/recordings/2024-01-15_meeting").
// Supported formats: "txt", "srt", "vtt". If formats is nil or empty,
// defaults to ["txt"]. Returns a combined error listing all failures.
func WriteAll(basePath string, r *Result, formats []string) error {
	if len(formats) == 0 {
		formats = []string{"txt"}
	}
	var errs []string
	for _, f := range formats {
		var err error
		switch f {
		case "txt":
			err = WriteText(basePath+".txt", r)
		case "srt":
			err = WriteSRT(basePath+".srt", r)
		case "vtt":
			err = WriteVTT(basePath+".vtt", r)
		default:
			errs = append(errs, fmt.Sprintf("unknown format %q", f))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("transcript write errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// formatTextTimestamp formats seconds as HH:MM:SS for plain text output.
func formatTextTimestamp(sec float64) string {
	h, m, s, _ := splitSeconds(sec)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatSRTTimestamp formats seconds as HH:MM:SS,mmm (SRT subtitle format).
func formatSRTTimestamp(sec float64) string {
	h, m, s, ms := splitSeconds(sec)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// formatVTTTimestamp formats seconds as HH:MM:SS.mmm (WebVTT format).
func formatVTTTimestamp(sec float64) string {
	h, m, s, ms := splitSeconds(sec)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// splitSeconds breaks fractional seconds into h/m/s/ms components.
// Rounds to the nearest millisecond first so values like 10.1, which
// float64 stores as 10.0999..., do not lose a millisecond to truncation.
func splitSeconds(sec float64) (h, m, s, ms int) {
	if sec < 0 {
		sec = 0
	}
	totalMs := int(math.Round(sec * 1000))
	ms = totalMs % 1000
	total := totalMs / 1000
	h = total / 3600
	m = (total % 3600) / 60
	s = total % 60
	return h, m, s, ms
}

// atomicWrite writes data to path atomically using a temp file + rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, "transcript-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error.
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing transcript: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing transcript: %w", err)
	}
	tmpFile = nil // prevent defer cleanup

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming transcript: %w", err)
	}
	return nil
}
