package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/seantiz/comfybridge/internal/workflow"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "comfybridge.db"
	defaultConfigPath = "comfybridge.json"

	envListenAddr = "COMFYBRIDGE_LISTEN_ADDR"
	envDBPath     = "COMFYBRIDGE_DB_PATH"
	envLogLevel   = "COMFYBRIDGE_LOG_LEVEL"
	envConfigPath = "COMFYBRIDGE_CONFIG"
)

// ErrNotConfigured marks a missing backend or workflow configuration field.
// It is checked before any network call for the action being invoked.
var ErrNotConfigured = errors.New("not configured")

// Backend holds the connection settings for the ComfyUI server.
type Backend struct {
	ServerURL string `json:"server_url"`
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
}

// Workflow is the per-action configuration: the graph document on disk plus
// the user-declared override table binding logical parameters to graph nodes.
type Workflow struct {
	Path      string             `json:"path"`
	Overrides workflow.Overrides `json:"overrides"`
}

// fileConfig is the on-disk JSON document shape.
type fileConfig struct {
	Backend   Backend             `json:"comfyui"`
	Workflows map[string]Workflow `json:"workflows"`
}

// Config holds application configuration loaded from environment variables
// and the JSON configuration file.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	Backend    Backend
	Workflows  map[string]Workflow
}

// Load reads configuration from environment variables with sensible
// defaults, then merges the JSON configuration file when present. A missing
// file is only an error when its path was set explicitly.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
		Workflows:  map[string]Workflow{},
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	path := os.Getenv(envConfigPath)
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.Backend = fc.Backend
	if fc.Workflows != nil {
		cfg.Workflows = fc.Workflows
	}
	return cfg, nil
}

// CheckBackend verifies the backend connection settings are complete.
func (c Config) CheckBackend() error {
	if strings.TrimSpace(c.Backend.ServerURL) == "" {
		return fmt.Errorf("%w: comfyui.server_url is empty", ErrNotConfigured)
	}
	if strings.TrimSpace(c.Backend.InputDir) == "" {
		return fmt.Errorf("%w: comfyui.input_dir is empty", ErrNotConfigured)
	}
	if strings.TrimSpace(c.Backend.OutputDir) == "" {
		return fmt.Errorf("%w: comfyui.output_dir is empty", ErrNotConfigured)
	}
	return nil
}

// WorkflowFor returns the workflow configuration for the action, or
// ErrNotConfigured when the action has no usable entry.
func (c Config) WorkflowFor(action workflow.Action) (Workflow, error) {
	wf, ok := c.Workflows[string(action)]
	if !ok || strings.TrimSpace(wf.Path) == "" {
		return Workflow{}, fmt.Errorf("%w: no workflow path for action %q", ErrNotConfigured, action)
	}
	return wf, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
