package ipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCommandRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := WriteCommand(CmdTranscribe, "/rec/meeting.wav"); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	cmd, arg, err := ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if cmd != CmdTranscribe || arg != "/rec/meeting.wav" {
		t.Errorf("got %q %q", cmd, arg)
	}

	// Reading again yields nothing: the command file is cleared.
	cmd, arg, err = ReadCommand()
	if err != nil {
		t.Fatalf("second ReadCommand: %v", err)
	}
	if cmd != "" || arg != "" {
		t.Errorf("expected cleared command, got %q %q", cmd, arg)
	}
}

func TestReadCommand_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd, arg, err := ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if cmd != "" || arg != "" {
		t.Errorf("expected empty, got %q %q", cmd, arg)
	}
}

func TestReadCommand_UnknownIgnored(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".cache", "scribed")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cmd.txt"), []byte("self-destruct"), 0644); err != nil {
		t.Fatal(err)
	}

	cmd, arg, err := ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if cmd != "" || arg != "" {
		t.Errorf("expected unknown command ignored, got %q %q", cmd, arg)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := &StatusSnapshot{
		Mode:            "remote",
		Transcription:   TranscriptionRunning,
		CurrentFile:     "/rec/meeting.wav",
		PlayerConnected: true,
		Timestamp:       time.Now().UTC(),
	}
	if err := WriteStatus(in); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}

	out, err := ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if out.Mode != "remote" || out.Transcription != TranscriptionRunning {
		t.Errorf("unexpected snapshot %+v", out)
	}
	if out.CurrentFile != "/rec/meeting.wav" || !out.PlayerConnected {
		t.Errorf("unexpected snapshot %+v", out)
	}
}
