package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command represents user commands from the CLI to the daemon
type Command string

const (
	CmdModeLocal  Command = "mode-local"  // Route transcription to the local backend
	CmdModeRemote Command = "mode-remote" // Route transcription to the remote provider
	CmdTranscribe Command = "transcribe"  // Transcribe a specific file (argument: path)
	CmdSyncOn     Command = "sync-on"     // Enable follow-along scrolling
	CmdSyncOff    Command = "sync-off"    // Disable follow-along scrolling
	CmdQuit       Command = "quit"        // Shutdown daemon
)

func cacheDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "scribed")
}

// WriteCommand writes a command to ~/.cache/scribed/cmd.txt. The optional
// argument is separated from the command by a space.
func WriteCommand(cmd Command, arg string) error {
	if err := os.MkdirAll(cacheDir(), 0755); err != nil {
		return err
	}

	line := string(cmd)
	if arg != "" {
		line += " " + arg
	}
	return os.WriteFile(filepath.Join(cacheDir(), "cmd.txt"), []byte(line), 0644)
}

// ReadCommand reads and clears ~/.cache/scribed/cmd.txt.
// Returns empty command if nothing is pending or the content is unknown.
func ReadCommand() (Command, string, error) {
	cmdPath := filepath.Join(cacheDir(), "cmd.txt")

	data, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", err
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(cmdPath, []byte(""), 0644); err != nil {
		return "", "", err
	}

	line := strings.TrimSpace(string(data))
	if line == "" {
		return "", "", nil
	}

	cmd := Command(line)
	arg := ""
	if i := strings.IndexByte(line, ' '); i > 0 {
		cmd = Command(line[:i])
		arg = strings.TrimSpace(line[i+1:])
	}

	switch cmd {
	case CmdModeLocal, CmdModeRemote, CmdTranscribe, CmdSyncOn, CmdSyncOff, CmdQuit:
		return cmd, arg, nil
	default:
		// Invalid command - ignore it
		return "", "", nil
	}
}
