package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/diegok/fidgetball/internal/app"
	"github.com/diegok/fidgetball/internal/config"
	"github.com/diegok/fidgetball/internal/server"
)

const (
	logDir      = "logs"
	logFileName = "fidgetball.log"
	maxLogSize  = 10 * 1024 * 1024
)

// renameFile moves a full log aside; tests swap it out.
var renameFile = os.Rename

func main() {
	os.Exit(run(os.Args[1:]))
}

// run starts the app and returns the process exit code. The log file is
// closed on every path out of run, including a recovered panic.
func run(args []string) (code int) {
	var logFile *os.File
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic: %v\n%s", r, debug.Stack())
			fmt.Fprintf(os.Stderr, "\nFIDGETBALL CRASHED: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack Trace:\n%s\n", debug.Stack())
			code = 1
		}
		if logFile != nil {
			logFile.Close()
		}
	}()

	// A .env next to the binary is optional.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	cfg, err := config.ParseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printUsage()
		return 1
	}

	logFile = setupLogging(cfg.Debug)

	if cfg.Mode() == config.ModeServe {
		showServerInfo(cfg.Port, cfg.SpectatePort)
	}

	application := app.NewApp(cfg)
	if err := application.Run(); err != nil {
		log.Printf("exit: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// setupLogging sends the standard logger to logs/fidgetball.log when debug
// is on and discards it otherwise. The terminal is in raw mode while the
// app runs, so nothing may be logged to stdout or stderr. A log larger than
// maxLogSize is moved aside with a timestamp before opening a fresh one.
func setupLogging(debug bool) *os.File {
	if !debug {
		log.SetOutput(io.Discard)
		return nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(io.Discard)
		return nil
	}

	logPath := filepath.Join(logDir, logFileName)
	var rotateErr error
	if info, err := os.Stat(logPath); err == nil && info.Size() > maxLogSize {
		base := strings.TrimSuffix(logFileName, filepath.Ext(logFileName))
		rotated := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", base, time.Now().Format("20060102-150405")))
		rotateErr = renameFile(logPath, rotated)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.SetOutput(io.Discard)
		return nil
	}

	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("logging started (pid %d)", os.Getpid())
	if rotateErr != nil {
		log.Printf("log rotation failed, appending: %v", rotateErr)
	}
	return f
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  fidgetball [options]                 Play on a local field")
	fmt.Fprintln(os.Stderr, "  fidgetball --serve [options]         Host a shared field")
	fmt.Fprintln(os.Stderr, "  fidgetball --join <address>          Join a shared field")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Options:")
	fmt.Fprintf(os.Stderr, "  --port <port>         Server port (default: %d)\n", config.DefaultPort)
	fmt.Fprintln(os.Stderr, "  --name <name>         Player name")
	fmt.Fprintf(os.Stderr, "  --fps <n>             Simulation rate in Hz (default: %d)\n", config.DefaultFPS)
	fmt.Fprintf(os.Stderr, "  --gravity <g>         Gravity in field units per second squared (default: %g)\n", config.DefaultGravity)
	fmt.Fprintf(os.Stderr, "  --restitution <r>     Wall bounciness between 0 and 1 (default: %g)\n", config.DefaultRestitution)
	fmt.Fprintf(os.Stderr, "  --fling <f>           Release velocity multiplier (default: %g)\n", config.DefaultFling)
	fmt.Fprintln(os.Stderr, "  --mute                Start with haptics muted")
	fmt.Fprintln(os.Stderr, "  --spectate-port <p>   Stream the hosted field over websocket (default: off)")
	fmt.Fprintln(os.Stderr, "  --config <file>       Read settings from a TOML file")
	fmt.Fprintf(os.Stderr, "  --debug               Write a log to %s\n", filepath.Join(logDir, logFileName))
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintf(os.Stderr, "Every option can also be set as %sNAME in the environment or a .env file.\n", config.EnvPrefix)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "  fidgetball --gravity 0")
	fmt.Fprintln(os.Stderr, "  fidgetball --serve --name Host")
	fmt.Fprintln(os.Stderr, "  fidgetball --join 192.168.1.100 --name Player2")
}

func showServerInfo(port, spectatePort int) {
	fmt.Printf("Starting Fidgetball server on port %d\n", port)
	fmt.Println("Players can connect using:")
	fmt.Println("")

	for _, addr := range server.LocalAddresses(port) {
		fmt.Printf("  fidgetball --join %s\n", addr)
	}

	fmt.Printf("  fidgetball --join localhost:%d  (same machine)\n", port)
	fmt.Println("")

	if spectatePort > 0 {
		fmt.Printf("Spectators can watch at ws://localhost:%d/field\n", spectatePort)
		fmt.Println("")
	}
}
