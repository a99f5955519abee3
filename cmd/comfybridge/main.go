package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/seantiz/comfybridge/internal/api"
	"github.com/seantiz/comfybridge/internal/comfy"
	"github.com/seantiz/comfybridge/internal/config"
	"github.com/seantiz/comfybridge/internal/engine"
	"github.com/seantiz/comfybridge/internal/store"
)

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("comfybridge: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"server_url", cfg.Backend.ServerURL,
	)
	if err := cfg.CheckBackend(); err != nil {
		logger.Warn("backend not fully configured; renders will be rejected until it is", "error", err)
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	client := comfy.NewClient(cfg.Backend.ServerURL, cfg.Backend.OutputDir, logger)
	eng := engine.NewEngine(cfg, client, db, logger)

	srv := api.NewServer(cfg.ListenAddr, db, eng, api.ActionCatalogue(cfg), logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}

	// Let in-flight runs record their terminal state before exiting.
	eng.Wait()
}
