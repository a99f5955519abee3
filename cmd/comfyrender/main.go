// comfyrender runs a single render against the configured backend and
// writes the resulting PNG, for scripting and smoke-testing without the
// HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/seantiz/comfybridge/internal/comfy"
	"github.com/seantiz/comfybridge/internal/config"
	"github.com/seantiz/comfybridge/internal/engine"
	"github.com/seantiz/comfybridge/internal/store"
	"github.com/seantiz/comfybridge/internal/workflow"
)

func main() {
	var (
		action   = flag.String("action", "", "workflow action (inferred from image count when empty)")
		prompt   = flag.String("prompt", "", "prompt text; positive|negative for edit actions")
		mask     = flag.String("mask", "", "mask PNG path")
		out      = flag.String("out", "result.png", "output PNG path")
		width    = flag.Int("width", 0, "target width override")
		height   = flag.Int("height", 0, "target height override")
		pad      = flag.Int("pad", 0, "outpaint padding in pixels")
		seed     = flag.Int64("seed", -1, "seed; -1 for random")
		timeoutS = flag.Int("timeout", 0, "wall-clock budget in seconds; 0 for the action default")
	)
	var imagePaths []string
	flag.Func("image", "input image PNG path (repeatable)", func(v string) error {
		imagePaths = append(imagePaths, v)
		return nil
	})
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	req := engine.RenderRequest{
		Prompt: *prompt,
		Width:  *width,
		Height: *height,
	}
	for _, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read image %q: %v", path, err)
		}
		req.Images = append(req.Images, data)
	}
	if *mask != "" {
		data, err := os.ReadFile(*mask)
		if err != nil {
			log.Fatalf("read mask %q: %v", *mask, err)
		}
		req.Mask = data
	}

	if *action != "" {
		req.Action = workflow.Action(*action)
		if !req.Action.Valid() {
			log.Fatalf("unknown action %q", *action)
		}
	} else {
		inferred, err := workflow.InferAction(len(req.Images))
		if err != nil {
			log.Fatalf("%v (pass -action explicitly)", err)
		}
		req.Action = inferred
	}
	if *seed >= 0 {
		req.Seed = seed
	}
	if *pad > 0 {
		req.Pad = pad
	}
	if *timeoutS > 0 {
		req.TimeoutS = timeoutS
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	client := comfy.NewClient(cfg.Backend.ServerURL, cfg.Backend.OutputDir, logger)
	eng := engine.NewEngine(cfg, client, db, logger)

	run, err := eng.Execute(context.Background(), req)
	if err != nil {
		log.Fatalf("render failed: %v", err)
	}

	if err := os.WriteFile(*out, run.Output, 0o644); err != nil {
		log.Fatalf("write %q: %v", *out, err)
	}
	fmt.Printf("run %s completed: %s (%d bytes) -> %s\n", run.ID, run.OutputFilename, len(run.Output), *out)
}
