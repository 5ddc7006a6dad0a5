package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/meetscribe/meetscribe/internal/asr"
	"github.com/meetscribe/meetscribe/internal/asr/assemblyai"
	"github.com/meetscribe/meetscribe/internal/asr/localwhisper"
	"github.com/meetscribe/meetscribe/internal/config"
	"github.com/meetscribe/meetscribe/internal/diaglog"
	"github.com/meetscribe/meetscribe/internal/fileutil"
	"github.com/meetscribe/meetscribe/internal/ipc"
	"github.com/meetscribe/meetscribe/internal/pidfile"
	"github.com/meetscribe/meetscribe/internal/playback"
	"github.com/meetscribe/meetscribe/internal/playerws"
	"github.com/meetscribe/meetscribe/internal/transcript"
	"github.com/meetscribe/meetscribe/internal/watcher"
)

const logPrefix = "[scribed]"

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger

	// Transcription status, guarded for the command and watcher goroutines
	statusMu       sync.Mutex
	transcribing   bool
	currentFile    string
	lastTranscript string
	lastErr        string
)

func main() {
	// --export-diag subcommand: read log, write bundle, exit.
	if len(os.Args) > 1 && os.Args[1] == "--export-diag" {
		logPath := os.Getenv("SCRIBED_LOG_PATH")
		if logPath == "" {
			logPath = "/tmp/scribed-debug.log"
		}
		diaglog.Version = Version
		path, n, err := diaglog.Export(logPath, ".")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			if os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "hint: run with SCRIBED_DEBUG=true to enable logging")
				os.Exit(1)
			}
			os.Exit(2)
		}
		fmt.Printf("Wrote: %s (%d lines)\n", path, n)
		os.Exit(0)
	}

	// Recover from any panics and log them
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in scribed: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	// Local .env may carry ASSEMBLYAI_API_KEY during development
	_ = godotenv.Load()

	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting scribed v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Println("===========================================")

	// Check for duplicate instances
	pidPath := pidfile.Path("scribed")
	pf, err := pidfile.New(pidPath)
	if err != nil {
		errLog.Printf("Failed to create PID file: %v", err)
		errLog.Printf("If you're sure no other instance is running, remove: %s", pidPath)
		os.Exit(1)
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()

	outLog.Println("[STARTUP] Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		errLog.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}
	outLog.Printf("[STARTUP] Config loaded: mode=%s, recordings_dir=%s, formats=%v",
		cfg.Mode, cfg.RecordingsDir, cfg.TranscriptFormats)

	// Diagnostic NDJSON logging, enabled via SCRIBED_DEBUG
	logPath := os.Getenv("SCRIBED_LOG_PATH")
	if logPath == "" {
		logPath = "/tmp/scribed-debug.log"
	}
	diagLogger, diagErr := diaglog.New(logPath)
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log at %s: %v (continuing)", logPath, diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()
	diaglog.Version = Version

	// Transcription backends and dispatcher
	local := localwhisper.NewBackend(localwhisper.Config{
		BinaryPath:     cfg.Local.BinaryPath,
		ModelPath:      cfg.Local.ModelPath,
		Threads:        cfg.Local.Threads,
		TimeoutSeconds: cfg.Local.TimeoutSeconds,
	})
	local.SetLogger(diagLogger)

	newRemote := func(apiKey string) asr.Backend {
		c := assemblyai.NewClient(assemblyai.Config{
			APIKey:          apiKey,
			PollInterval:    time.Duration(cfg.Remote.PollIntervalSeconds) * time.Second,
			MaxPollAttempts: cfg.Remote.MaxPollAttempts,
		})
		c.SetLogger(diagLogger)
		return c
	}

	disp := asr.NewDispatcher(local, newRemote)
	disp.SetLogger(diagLogger)
	disp.SetSpeakerDiarization(cfg.SpeakerLabels)
	disp.SetModel(cfg.ModelName)
	disp.SetLanguage(cfg.Language)
	if err := disp.SwitchMode(asr.Mode(cfg.Mode), cfg.APIKey); err != nil {
		errLog.Printf("Invalid mode in config: %v", err)
		os.Exit(1)
	}
	outLog.Printf("[STARTUP] Dispatcher ready (mode=%s)", disp.Mode())

	// Playback controller driven by the player's websocket clock
	ctrl := playback.NewController(playback.Config{
		ToleranceSeconds: cfg.Playback.ToleranceSeconds,
	})
	ctrl.SetLogger(diagLogger)

	player := playerws.NewClient(cfg.Player.WebSocketURL)
	player.SetLogger(diagLogger)
	player.OnTimeUpdate(ctrl.OnTick)
	player.OnDuration(ctrl.SetDuration)
	player.OnStateChange(ctrl.SetPlaying)
	player.OnDisconnected(func() {
		errLog.Println("[EVENT] Player disconnected - will attempt reconnection")
	})
	if err := player.Connect(); err != nil {
		errLog.Printf("[STARTUP] Player not reachable at %s: %v (continuing, will retry on demand)",
			cfg.Player.WebSocketURL, err)
	}
	defer player.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Watch the recordings directory for finished audio files
	if err := os.MkdirAll(cfg.RecordingsDir, 0755); err != nil {
		errLog.Printf("Failed to create recordings dir: %v", err)
		os.Exit(1)
	}
	w, err := watcher.New(watcher.Config{Dir: cfg.RecordingsDir})
	if err != nil {
		errLog.Printf("Failed to create recordings watcher: %v", err)
		os.Exit(1)
	}
	w.SetLogger(diagLogger)
	go w.Run(ctx)
	go func() {
		for path := range w.Files() {
			outLog.Printf("[EVENT] New recording detected: %s", path)
			transcribeFile(ctx, disp, cfg, path)
			writeStatus(disp, ctrl, player)
		}
	}()

	// Write initial status
	writeStatus(disp, ctrl, player)

	// Poll the command file, same cadence as the status updates
	cmdTicker := time.NewTicker(1 * time.Second)
	defer cmdTicker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	outLog.Printf("[RUNNING] scribed is watching %s", cfg.RecordingsDir)

	for {
		select {
		case <-cmdTicker.C:
			cmd, arg, err := ipc.ReadCommand()
			if err != nil {
				errLog.Printf("Failed to read command: %v", err)
				continue
			}
			if cmd == "" {
				continue
			}
			if quit := handleCommand(ctx, cmd, arg, disp, ctrl, cfg); quit {
				outLog.Println("[SHUTDOWN] Quit command received")
				return
			}
			writeStatus(disp, ctrl, player)

		case <-sigChan:
			outLog.Println("[SHUTDOWN] Received shutdown signal, exiting gracefully")
			return
		}
	}
}

// handleCommand processes one CLI command. Returns true when the daemon
// should exit.
func handleCommand(ctx context.Context, cmd ipc.Command, arg string, disp *asr.Dispatcher, ctrl *playback.Controller, cfg *config.Config) bool {
	outLog.Printf("Received command: %s %s", cmd, arg)

	switch cmd {
	case ipc.CmdModeLocal:
		if err := disp.SwitchMode(asr.ModeLocal, ""); err != nil {
			errLog.Printf("Mode switch failed: %v", err)
			return false
		}
		outLog.Println("Mode changed to LOCAL")

	case ipc.CmdModeRemote:
		if err := disp.SwitchMode(asr.ModeRemote, cfg.APIKey); err != nil {
			errLog.Printf("Mode switch failed: %v", err)
			return false
		}
		outLog.Println("Mode changed to REMOTE")

	case ipc.CmdTranscribe:
		if arg == "" {
			errLog.Println("transcribe command requires a file path")
			return false
		}
		go transcribeFile(ctx, disp, cfg, arg)

	case ipc.CmdSyncOn:
		ctrl.SetSync(true)
		outLog.Println("Playback sync enabled")

	case ipc.CmdSyncOff:
		ctrl.SetSync(false)
		outLog.Println("Playback sync disabled")

	case ipc.CmdQuit:
		return true

	default:
		errLog.Printf("Unknown command: %s", cmd)
	}
	return false
}

// transcribeFile runs one file through the dispatcher and writes the
// transcript outputs plus a metadata sidecar next to the audio.
func transcribeFile(ctx context.Context, disp *asr.Dispatcher, cfg *config.Config, path string) {
	statusMu.Lock()
	if transcribing {
		statusMu.Unlock()
		errLog.Printf("Transcription already running, skipping %s", path)
		return
	}
	transcribing = true
	currentFile = path
	statusMu.Unlock()

	defer func() {
		statusMu.Lock()
		transcribing = false
		currentFile = ""
		statusMu.Unlock()
	}()

	start := time.Now()
	result, err := disp.TranscribeFile(ctx, path)

	meta := &fileutil.TranscriptMetadata{
		Version:       Version,
		SourceFile:    path,
		Mode:          string(disp.Mode()),
		Formats:       cfg.TranscriptFormats,
		Model:         cfg.ModelName,
		Language:      cfg.Language,
		TranscribedAt: time.Now().UTC(),
	}

	if err != nil {
		errLog.Printf("Transcription failed for %s: %v", path, err)
		statusMu.Lock()
		lastErr = err.Error()
		statusMu.Unlock()
		meta.Success = false
		meta.Error = err.Error()
		if merr := fileutil.WriteMetadata(path, meta); merr != nil {
			errLog.Printf("Failed to write metadata sidecar: %v", merr)
		}
		return
	}

	base := fileutil.TranscriptBase(path)
	if err := transcript.WriteAll(base, result, cfg.TranscriptFormats); err != nil {
		errLog.Printf("Failed to write transcripts for %s: %v", path, err)
		statusMu.Lock()
		lastErr = err.Error()
		statusMu.Unlock()
		return
	}

	meta.Success = true
	meta.SegmentCount = len(result.Segments)
	meta.DurationSeconds = transcript.Duration(result.Segments)
	if err := fileutil.WriteMetadata(path, meta); err != nil {
		errLog.Printf("Failed to write metadata sidecar: %v", err)
	}

	statusMu.Lock()
	lastTranscript = base + ".txt"
	lastErr = ""
	statusMu.Unlock()

	outLog.Printf("Transcribed %s in %s (%d segments)", filepath.Base(path), time.Since(start).Round(time.Millisecond), len(result.Segments))
}

// writeStatus persists the daemon state for the CLI to read.
func writeStatus(disp *asr.Dispatcher, ctrl *playback.Controller, player *playerws.Client) {
	statusMu.Lock()
	state := ipc.TranscriptionIdle
	if transcribing {
		state = ipc.TranscriptionRunning
	}
	snapshot := &ipc.StatusSnapshot{
		Mode:            string(disp.Mode()),
		Transcription:   state,
		CurrentFile:     currentFile,
		LastTranscript:  lastTranscript,
		Playback:        ctrl.Snapshot(),
		PlayerConnected: player.IsConnected(),
		LastError:       lastErr,
		Timestamp:       time.Now(),
	}
	statusMu.Unlock()

	if err := ipc.WriteStatus(snapshot); err != nil {
		errLog.Printf("Failed to write status: %v", err)
	}
}

// initLogging sets up log files with rotation support
func initLogging() error {
	logDir := "/tmp"

	outLogPath := filepath.Join(logDir, "scribed.out.log")
	errLogPath := filepath.Join(logDir, "scribed.err.log")

	if err := rotateLogIfNeeded(outLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errLogPath, 10*1024*1024); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)
	return nil
}

// rotateLogIfNeeded rotates a log file if it exceeds maxSize bytes
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}
