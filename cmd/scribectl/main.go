// scribectl sends commands to a running scribed daemon and prints its
// status file.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meetscribe/meetscribe/internal/ipc"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: scribectl <command>

commands:
  status            print daemon status
  mode-local        route transcription to the local backend
  mode-remote       route transcription to the remote provider
  transcribe <file> transcribe a specific audio file
  sync-on           enable follow-along scrolling
  sync-off          disable follow-along scrolling
  quit              stop the daemon`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "status":
		status, err := ipc.ReadStatus()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: no status available, is scribed running?")
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(out))

	case "mode-local", "mode-remote", "sync-on", "sync-off", "quit":
		if err := ipc.WriteCommand(ipc.Command(os.Args[1]), ""); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}

	case "transcribe":
		if len(os.Args) < 3 {
			usage()
		}
		path, err := filepath.Abs(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		if err := ipc.WriteCommand(ipc.CmdTranscribe, path); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}

	default:
		usage()
	}
}
