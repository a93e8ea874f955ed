// Command voicenote records, reviews and sends voice messages in a terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jwulff/voicenote/internal/app"
	"github.com/jwulff/voicenote/internal/capture"
	"github.com/jwulff/voicenote/internal/codec"
	"github.com/jwulff/voicenote/internal/codec/oggopus"
	"github.com/jwulff/voicenote/internal/config"
	"github.com/jwulff/voicenote/internal/daemon"
	"github.com/jwulff/voicenote/internal/db"
	"github.com/jwulff/voicenote/internal/hostaudio"
	"github.com/jwulff/voicenote/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	user := flag.String("user", "", "your user id (overrides config)")
	peer := flag.String("peer", "", "user id to message (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("voicenote", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *user != "" {
		cfg.UserID = *user
	}
	if *peer != "" {
		cfg.PeerID = *peer
	}
	if cfg.PeerID == "" {
		log.Fatal("no peer: pass -peer or set VOICENOTE_PEER_ID")
	}

	logger, closer, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("voicenote exited", "err", err)
		fmt.Fprintf(os.Stderr, "voicenote: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	host, err := hostaudio.Open(cfg.Backend)
	if err != nil {
		return err
	}
	defer host.Close()

	format := codec.Format(cfg.Format)
	if format == codec.FormatOgg {
		oggopus.Register(cfg.Bitrate)
	}
	enc, err := codec.EncoderFor(format)
	if err != nil {
		return err
	}

	rec := capture.New(capture.Options{
		Device:     host.Capture(),
		Encoder:    enc,
		Dir:        cfg.AudioDir,
		SampleRate: cfg.SampleRate,
		Logger:     logger,
	})
	defer rec.Close()

	backend, events, cleanup, err := connect(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conv, err := backend.Conversation(ctx, cfg.UserID, cfg.PeerID)
	cancel()
	if err != nil {
		return fmt.Errorf("open conversation with %s: %w", cfg.PeerID, err)
	}
	logger.Info("composer started", "user", cfg.UserID, "peer", cfg.PeerID,
		"conversation", conv.ID, "backend", host.Backend(), "format", format)

	m := app.New(app.Options{
		Recorder:       rec,
		Sink:           host.Playback(),
		Backend:        backend,
		Events:         events,
		ConversationID: conv.ID,
		UserID:         cfg.UserID,
		PeerID:         cfg.PeerID,
		FrameRate:      cfg.FrameRate,
		Logger:         logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	return err
}

type conversationBackend interface {
	app.Backend
	Conversation(ctx context.Context, userID, peerID string) (*db.Conversation, error)
}

// connect prefers a running daemon, which also streams events, and falls
// back to opening the database directly.
func connect(cfg *config.Config, logger *slog.Logger) (conversationBackend, *daemon.Client, func(), error) {
	client, err := daemon.Connect(cfg.SocketPath)
	if err == nil {
		events, err := daemon.Connect(cfg.SocketPath)
		if err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		if err := events.Subscribe(cfg.UserID); err != nil {
			client.Close()
			events.Close()
			return nil, nil, nil, fmt.Errorf("subscribe: %w", err)
		}
		logger.Info("connected to daemon", "socket", cfg.SocketPath)
		return client, events, func() { client.Close() }, nil
	}

	logger.Info("daemon not reachable, using database directly", "err", err, "db", cfg.DBPath)
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, nil, func() { store.Close() }, nil
}
