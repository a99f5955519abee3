package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/seantiz/comfybridge/internal/config"
	"github.com/seantiz/comfybridge/internal/workflow"
)

const sampleConfig = `{
	"comfyui": {
		"server_url": "http://127.0.0.1:8188",
		"input_dir": "/srv/comfy/input",
		"output_dir": "/srv/comfy/output"
	},
	"workflows": {
		"generator": {
			"path": "workflows/generator.json",
			"overrides": {
				"promptText": {"node_id": "6", "field": "text"},
				"seed": {"node_id": "3", "field": "seed"}
			}
		}
	}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "comfybridge.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMFYBRIDGE_CONFIG", "")
	t.Setenv("COMFYBRIDGE_LISTEN_ADDR", "")
	t.Setenv("COMFYBRIDGE_DB_PATH", "")
	t.Setenv("COMFYBRIDGE_LOG_LEVEL", "")
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil { // no comfybridge.json in cwd
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen addr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.DBPath != "comfybridge.db" {
		t.Errorf("db path = %q, want comfybridge.db", cfg.DBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v, want info", cfg.LogLevel)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("COMFYBRIDGE_CONFIG", path)
	t.Setenv("COMFYBRIDGE_LISTEN_ADDR", ":9999")
	t.Setenv("COMFYBRIDGE_LOG_LEVEL", "debug")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen addr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.LogLevel)
	}
	if cfg.Backend.ServerURL != "http://127.0.0.1:8188" {
		t.Errorf("server url = %q", cfg.Backend.ServerURL)
	}
	wf, err := cfg.WorkflowFor(workflow.ActionGenerate)
	if err != nil {
		t.Fatalf("WorkflowFor(generator) error = %v", err)
	}
	if wf.Path != "workflows/generator.json" {
		t.Errorf("workflow path = %q", wf.Path)
	}
	if point := wf.Overrides[workflow.KeyPromptText]; point.NodeID != "6" || point.Field != "text" {
		t.Errorf("promptText override = %+v", point)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv("COMFYBRIDGE_CONFIG", filepath.Join(t.TempDir(), "absent.json"))
	if _, err := config.Load(); err == nil {
		t.Fatal("Load() with explicit missing config returned nil error")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "{not json")
	t.Setenv("COMFYBRIDGE_CONFIG", path)
	if _, err := config.Load(); err == nil {
		t.Fatal("Load() with malformed config returned nil error")
	}
}

func TestCheckBackend(t *testing.T) {
	complete := config.Backend{
		ServerURL: "http://127.0.0.1:8188",
		InputDir:  "/in",
		OutputDir: "/out",
	}
	tests := []struct {
		name    string
		mutate  func(*config.Backend)
		wantErr bool
	}{
		{"complete", func(*config.Backend) {}, false},
		{"missing server url", func(b *config.Backend) { b.ServerURL = " " }, true},
		{"missing input dir", func(b *config.Backend) { b.InputDir = "" }, true},
		{"missing output dir", func(b *config.Backend) { b.OutputDir = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := complete
			tt.mutate(&b)
			err := config.Config{Backend: b}.CheckBackend()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckBackend() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, config.ErrNotConfigured) {
				t.Errorf("error %v does not wrap ErrNotConfigured", err)
			}
		})
	}
}

func TestWorkflowForUnconfigured(t *testing.T) {
	cfg := config.Config{Workflows: map[string]config.Workflow{
		"outpaint": {Path: "  "},
	}}
	if _, err := cfg.WorkflowFor(workflow.ActionInpaint); !errors.Is(err, config.ErrNotConfigured) {
		t.Errorf("WorkflowFor(absent action) error = %v, want ErrNotConfigured", err)
	}
	if _, err := cfg.WorkflowFor(workflow.ActionOutpaint); !errors.Is(err, config.ErrNotConfigured) {
		t.Errorf("WorkflowFor(blank path) error = %v, want ErrNotConfigured", err)
	}
}
