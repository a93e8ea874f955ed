// Package config loads voicenote settings from defaults, an optional YAML
// file, a .env file and VOICENOTE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the merged configuration shared by the composer, daemon and MCP
// server.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	DBPath     string `yaml:"db_path"`
	SocketPath string `yaml:"socket_path"`
	AudioDir   string `yaml:"audio_dir"`
	LogFile    string `yaml:"log_file"`
	LogLevel   string `yaml:"log_level"`

	// Backend is the capture backend: portaudio or malgo.
	Backend    string `yaml:"backend"`
	Format     string `yaml:"format"`
	SampleRate int    `yaml:"sample_rate"`
	Bitrate    int    `yaml:"bitrate"`
	FrameRate  int    `yaml:"frame_rate"`

	UserID string `yaml:"user_id"`
	PeerID string `yaml:"peer_id"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VOICENOTE_"

// Default returns the built-in configuration. Paths under DataDir are left
// empty and derived by Load.
func Default() Config {
	return Config{
		DataDir:    DefaultDataDir(),
		LogLevel:   "info",
		Backend:    "portaudio",
		Format:     "ogg",
		SampleRate: 16000,
		Bitrate:    24000,
		FrameRate:  30,
		UserID:     "me",
	}
}

// DefaultDataDir is voicenote's directory under the user config dir.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = home
	}
	return filepath.Join(dir, "voicenote")
}

// Load merges the layers. An empty path means DataDir/config.yaml, which may
// be absent; an explicit path must exist. A .env in the working directory is
// loaded without overriding variables already set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	// The data dir can move the default config file.
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.derive()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"DATA_DIR":  &c.DataDir,
		"DB_PATH":   &c.DBPath,
		"SOCKET":    &c.SocketPath,
		"AUDIO_DIR": &c.AudioDir,
		"LOG_FILE":  &c.LogFile,
		"LOG_LEVEL": &c.LogLevel,
		"BACKEND":   &c.Backend,
		"FORMAT":    &c.Format,
		"USER_ID":   &c.UserID,
		"PEER_ID":   &c.PeerID,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SAMPLE_RATE": &c.SampleRate,
		"BITRATE":     &c.Bitrate,
		"FRAME_RATE":  &c.FrameRate,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	return nil
}

func (c *Config) derive() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "voicenote.sqlite")
	}
	if c.SocketPath == "" {
		c.SocketPath = filepath.Join(c.DataDir, "voicenote.sock")
	}
	if c.AudioDir == "" {
		c.AudioDir = filepath.Join(c.DataDir, "audio")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "voicenote.log")
	}
}

// opusRates are the input rates the Opus encoder accepts.
var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case "portaudio", "malgo":
	default:
		return fmt.Errorf("backend %q: want portaudio or malgo", c.Backend)
	}
	switch c.Format {
	case "ogg", "wav":
	default:
		return fmt.Errorf("format %q: want ogg or wav", c.Format)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate %d must be positive", c.SampleRate)
	}
	if c.Format == "ogg" && !slices.Contains(opusRates, c.SampleRate) {
		return fmt.Errorf("sample rate %d: ogg needs one of %v", c.SampleRate, opusRates)
	}
	if c.Bitrate <= 0 {
		return fmt.Errorf("bitrate %d must be positive", c.Bitrate)
	}
	if c.FrameRate < 1 || c.FrameRate > 120 {
		return fmt.Errorf("frame rate %d out of range 1-120", c.FrameRate)
	}
	if c.UserID == "" {
		return errors.New("user id is required")
	}
	return nil
}
