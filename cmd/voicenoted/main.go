// Command voicenoted owns the voice message database and serves it to
// composers and tools over a Unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jwulff/voicenote/internal/config"
	"github.com/jwulff/voicenote/internal/daemon"
	"github.com/jwulff/voicenote/internal/db"
	"github.com/jwulff/voicenote/internal/logging"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	logStderr := flag.Bool("stderr", false, "log to stderr instead of the log file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("voicenoted", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logPath := cfg.LogFile
	if *logStderr {
		logPath = ""
	}
	logger, closer, err := logging.New(logPath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon exited", "err", err)
		fmt.Fprintf(os.Stderr, "voicenoted: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ln, err := daemon.Listen(cfg.SocketPath)
	if err != nil {
		return err
	}
	defer os.Remove(cfg.SocketPath)

	logger.Info("daemon listening", "socket", cfg.SocketPath, "db", cfg.DBPath, "version", version)
	err = daemon.NewServer(store, logger).Serve(ctx, ln)
	logger.Info("daemon stopped")
	return err
}
