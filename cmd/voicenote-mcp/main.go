// Command voicenote-mcp exposes voice message conversations to MCP clients
// over stdio.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jwulff/voicenote/internal/config"
	"github.com/jwulff/voicenote/internal/daemon"
	"github.com/jwulff/voicenote/internal/db"
	"github.com/jwulff/voicenote/internal/logging"
	"github.com/jwulff/voicenote/internal/mcpserver"
	"github.com/mark3labs/mcp-go/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	readOnly := flag.Bool("readonly", false, "open the database read-only when the daemon is not running")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Stdout carries the protocol, so logs go to the file.
	logger, closer, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closer.Close()
	logger = logger.With("component", "mcp")

	var store mcpserver.Store
	if client, err := daemon.Connect(cfg.SocketPath); err == nil {
		defer client.Close()
		store = client
		logger.Info("serving through daemon", "socket", cfg.SocketPath)
	} else {
		s, err := openStore(cfg.DBPath, *readOnly)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer s.Close()
		store = s
		logger.Info("serving database directly", "db", cfg.DBPath, "readonly", *readOnly)
	}

	s := mcpserver.New(store, version, logger)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp server exited", "err", err)
		fmt.Fprintf(os.Stderr, "voicenote-mcp: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the database directly. A read-only store answers the list
// tools; mark_read then reports the write error.
func openStore(path string, readOnly bool) (*db.Store, error) {
	if readOnly {
		return db.OpenReadOnly(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return db.Open(path)
}
