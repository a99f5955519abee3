// Package engine orchestrates render runs: geometry preparation, input
// transport, workflow instantiation, and the submit/poll/fetch protocol,
// with run state persisted across the lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/seantiz/comfybridge/internal/comfy"
	"github.com/seantiz/comfybridge/internal/config"
	"github.com/seantiz/comfybridge/internal/geometry"
	"github.com/seantiz/comfybridge/internal/harness"
	"github.com/seantiz/comfybridge/internal/model"
	"github.com/seantiz/comfybridge/internal/store"
	"github.com/seantiz/comfybridge/internal/workflow"
)

// Default wall-clock budgets per action family, in seconds. Edits wait
// longer than plain generation because multi-image graphs run more steps.
const (
	DefaultGenerateTimeoutS = 600
	DefaultEditTimeoutS     = 900
)

// inputSubdir namespaces this service's files inside the backend's input
// directory.
const inputSubdir = "comfybridge"

// RenderRequest describes one backend invocation.
type RenderRequest struct {
	Action   workflow.Action
	Prompt   string
	Images   [][]byte
	Mask     []byte
	Width    int
	Height   int
	Pad      *int
	Seed     *int64
	TimeoutS *int
}

// Engine coordinates run execution against one configured backend.
type Engine struct {
	cfg    config.Config
	client *comfy.Client
	store  store.Store
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	tokens map[string]*harness.Token
}

// NewEngine creates a new render engine.
func NewEngine(cfg config.Config, client *comfy.Client, s store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		client: client,
		store:  s,
		logger: logger,
		tokens: make(map[string]*harness.Token),
	}
}

// Wait blocks until all in-flight run goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// PrepareContext runs the geometry engine for the host and validates the
// result. Geometry failures are recovered locally: the safe full-image
// fallback is returned and the problem logged, never surfaced as fatal.
func (e *Engine) PrepareContext(imgW, imgH int, sel *geometry.Bounds, mode string) geometry.ContextInfo {
	info := geometry.Extract(imgW, imgH, sel, mode)
	if err := geometry.Validate(info); err != nil {
		e.logger.Warn("context validation failed, using fallback region", "error", err)
		return geometry.FallbackContext(imgW, imgH)
	}
	return info
}

// Submit creates a run record and launches asynchronous execution. The run
// is stored with status "built" before returning; progress is observable
// through the store.
func (e *Engine) Submit(ctx context.Context, req RenderRequest) (*model.Run, error) {
	run := e.newRun(req)
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	token := harness.NewToken()
	e.mu.Lock()
	e.tokens[run.ID] = token
	e.mu.Unlock()

	runCopy := *run
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.tokens, runCopy.ID)
			e.mu.Unlock()
		}()
		e.execute(&runCopy, req, token)
	}()

	return run, nil
}

// Execute runs the request synchronously and returns the finished run
// record, output bytes included. Used by the one-shot CLI path.
func (e *Engine) Execute(ctx context.Context, req RenderRequest) (*model.Run, error) {
	run := e.newRun(req)
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	e.execute(run, req, harness.NewToken())

	finished, err := e.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("reload run: %w", err)
	}
	if finished.Status != model.StatusCompleted {
		return finished, fmt.Errorf("run %s %s: %s", finished.ID, finished.Status, finished.Error)
	}
	return finished, nil
}

// Validate performs the pre-flight checks for a request without side
// effects: backend and workflow configuration, input cardinality, and
// required override declarations. The render path re-runs the same checks.
func (e *Engine) Validate(req RenderRequest) error {
	if err := e.cfg.CheckBackend(); err != nil {
		return err
	}
	wf, err := e.cfg.WorkflowFor(req.Action)
	if err != nil {
		return err
	}
	if err := req.Action.CheckImageCount(len(req.Images)); err != nil {
		return err
	}
	return workflow.CheckRequired(req.Action, wf.Overrides)
}

// Cancel requests cooperative cancellation of an in-flight run. It reports
// whether the run was still active. The background work is abandoned, not
// interrupted: only the waiting stops.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	token, ok := e.tokens[id]
	e.mu.Unlock()
	if ok {
		token.Cancel()
	}
	return ok
}

func (e *Engine) newRun(req RenderRequest) *model.Run {
	return &model.Run{
		ID:        model.NewID(),
		Action:    string(req.Action),
		Status:    model.StatusBuilt,
		Prompt:    req.Prompt,
		Seed:      req.Seed,
		TimeoutS:  req.TimeoutS,
		CreatedAt: time.Now().UTC(),
	}
}

// timeoutFor resolves the run's wall-clock budget.
func timeoutFor(req RenderRequest) time.Duration {
	if req.TimeoutS != nil && *req.TimeoutS > 0 {
		return time.Duration(*req.TimeoutS) * time.Second
	}
	if req.Action == workflow.ActionGenerate {
		return DefaultGenerateTimeoutS * time.Second
	}
	return DefaultEditTimeoutS * time.Second
}

// execute drives one run through the harness and records the terminal state.
// The work goroutine mutates only its own copy of the run record: on
// cancellation or timeout it is abandoned mid-flight and keeps running, so
// sharing the record with the finalizer would race.
func (e *Engine) execute(run *model.Run, req RenderRequest, token *harness.Token) {
	start := time.Now()
	run.StartedAt = &start

	timeout := timeoutFor(req)
	workRun := *run
	outcome := harness.Run(func() harness.Outcome {
		data, filename, err := e.render(context.Background(), &workRun, req, timeout, token)
		if err != nil {
			return harness.Outcome{Message: err.Error(), Err: err}
		}
		return harness.Outcome{OK: true, Message: filename, Data: data}
	}, fmt.Sprintf("render %s", req.Action), harness.Options{
		// Margin above the poll timeout so the poll loop, not the
		// harness, reports backend slowness with its last error.
		Timeout: timeout + 30*time.Second,
		Token:   token,
		Logger:  e.logger,
	})

	durationMS := int(time.Since(start).Milliseconds())
	now := time.Now().UTC()

	abandoned := errors.Is(outcome.Err, harness.ErrCancelled) || errors.Is(outcome.Err, harness.ErrTimedOut)
	if abandoned {
		// The work goroutine may still be running; recover its persisted
		// progress from the store instead of reading its record.
		if cur, err := e.store.GetRun(context.Background(), run.ID); err == nil {
			run.PromptID = cur.PromptID
			run.Seed = cur.Seed
		}
	} else {
		// Every other outcome came from the work itself, so the goroutine
		// has exited and its record is safe to take over.
		*run = workRun
	}
	run.DurationMS = &durationMS
	run.FinishedAt = &now

	switch {
	case outcome.OK:
		run.Status = model.StatusCompleted
		run.Output = outcome.Data
		run.OutputFilename = outcome.Message
	case errors.Is(outcome.Err, harness.ErrCancelled):
		run.Status = model.StatusCancelled
		run.Error = outcome.Message
	case errors.Is(outcome.Err, harness.ErrTimedOut), errors.Is(outcome.Err, comfy.ErrPollTimeout):
		run.Status = model.StatusTimedOut
		run.Error = outcome.Message
	default:
		run.Status = model.StatusFailed
		run.Error = outcome.Message
	}

	if err := e.store.UpdateRun(context.Background(), run); err != nil {
		e.logger.Error("failed to record run outcome", "run_id", run.ID, "status", run.Status, "error", err)
	}
	e.logger.Info("run finished",
		"run_id", run.ID,
		"action", run.Action,
		"status", run.Status,
		"duration_ms", durationMS,
	)
}

// render performs the full protocol sequence for one run. Configuration and
// cardinality are checked before any filesystem write; the graph document
// is validated before any HTTP call.
func (e *Engine) render(ctx context.Context, run *model.Run, req RenderRequest, timeout time.Duration, token *harness.Token) ([]byte, string, error) {
	if err := e.cfg.CheckBackend(); err != nil {
		return nil, "", err
	}
	wf, err := e.cfg.WorkflowFor(req.Action)
	if err != nil {
		return nil, "", err
	}
	if err := req.Action.CheckImageCount(len(req.Images)); err != nil {
		return nil, "", err
	}
	if err := workflow.CheckRequired(req.Action, wf.Overrides); err != nil {
		return nil, "", err
	}

	// A separate mask input is only demanded when the override table binds
	// one; embedded-alpha workflows configure no inputMaskFilename.
	_, wantsMask := wf.Overrides[workflow.KeyInputMaskFilename]
	if req.Action == workflow.ActionInpaint && wantsMask && len(req.Mask) == 0 {
		return nil, "", fmt.Errorf("%w: action %q requires a mask image (inputMaskFilename override is configured)",
			workflow.ErrOverride, req.Action)
	}

	values, err := e.buildValues(run, req, wantsMask)
	if err != nil {
		return nil, "", err
	}

	graph, err := workflow.LoadGraph(wf.Path)
	if err != nil {
		return nil, "", err
	}
	if err := workflow.Apply(graph, wf.Overrides, values); err != nil {
		return nil, "", err
	}

	promptID, err := e.client.SubmitPrompt(ctx, graph, run.ID)
	if err != nil {
		return nil, "", err
	}
	run.PromptID = promptID
	e.recordSubmission(run, token)
	e.transition(run, model.StatusSubmitted, token)

	e.transition(run, model.StatusPolling, token)
	outputs, err := e.client.AwaitOutputs(ctx, promptID, timeout)
	if err != nil {
		return nil, "", err
	}

	ref, err := comfy.SelectOutputImage(outputs, wf.Overrides[workflow.KeySaveFilenamePrefix].NodeID)
	if err != nil {
		return nil, "", err
	}

	data, err := e.client.FetchImage(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	return data, ref.Filename, nil
}

// buildValues assembles the runtime value table for the invocation and
// writes input artifacts into the backend's input directory under run-id
// namespaced names.
func (e *Engine) buildValues(run *model.Run, req RenderRequest, wantsMask bool) (workflow.Values, error) {
	values := workflow.Values{}

	if req.Action.SplitsPrompt() {
		positive, negative := workflow.SplitPrompt(req.Prompt)
		values[workflow.KeyPromptTextPositive] = positive
		values[workflow.KeyPromptTextNegative] = negative
	} else {
		values[workflow.KeyPromptText] = req.Prompt
	}

	values[workflow.KeySaveFilenamePrefix] = fmt.Sprintf("%s/%s/%s", inputSubdir, req.Action, run.ID)

	if req.Width > 0 && req.Height > 0 {
		values[workflow.KeyWidth] = req.Width
		values[workflow.KeyHeight] = req.Height
	}

	seed := int64(rand.Int63n(1 << 31))
	if req.Seed != nil {
		seed = *req.Seed
	}
	values[workflow.KeySeed] = seed
	run.Seed = &seed

	if req.Action == workflow.ActionOutpaint && req.Pad != nil {
		values[workflow.KeyPadLeft] = *req.Pad
		values[workflow.KeyPadTop] = *req.Pad
		values[workflow.KeyPadRight] = *req.Pad
		values[workflow.KeyPadBottom] = *req.Pad
	}

	if len(req.Images) == 0 && !wantsMask {
		return values, nil
	}

	dir := filepath.Join(e.cfg.Backend.InputDir, inputSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create input directory %q: %w", dir, err)
	}

	write := func(key, suffix string, data []byte) error {
		name := fmt.Sprintf("%s/%s_%s.png", inputSubdir, run.ID, suffix)
		if err := os.WriteFile(filepath.Join(e.cfg.Backend.InputDir, name), data, 0o644); err != nil {
			return fmt.Errorf("write input %q: %w", name, err)
		}
		values[key] = name
		return nil
	}

	switch req.Action {
	case workflow.ActionInpaint, workflow.ActionUpscale4x:
		if err := write(workflow.KeyInputImageFilename, "image", req.Images[0]); err != nil {
			return nil, err
		}
		if wantsMask && len(req.Mask) > 0 {
			if err := write(workflow.KeyInputMaskFilename, "mask", req.Mask); err != nil {
				return nil, err
			}
		}
	default:
		imageKeys := []string{workflow.KeyImg1Filename, workflow.KeyImg2Filename, workflow.KeyImg3Filename}
		for i, img := range req.Images {
			if err := write(imageKeys[i], fmt.Sprintf("img%d", i+1), img); err != nil {
				return nil, err
			}
		}
	}
	return values, nil
}

// recordSubmission persists the prompt id and seed assigned during
// submission. Skipped once the run is abandoned: the finalizer owns the
// stored record from that point on.
func (e *Engine) recordSubmission(run *model.Run, token *harness.Token) {
	if token.Cancelled() {
		return
	}
	if err := e.store.UpdateRun(context.Background(), run); err != nil && !errors.Is(err, store.ErrFinalized) {
		e.logger.Error("failed to persist submission", "run_id", run.ID, "error", err)
	}
}

// transition records a non-terminal status change, logging rather than
// failing when the store write does not land. Once the token is cancelled
// the status still advances locally but is no longer written to the store;
// the store additionally refuses to touch finalized rows, so an abandoned
// goroutine can never regress a terminal state.
func (e *Engine) transition(run *model.Run, status string, token *harness.Token) {
	if !model.ValidTransition(run.Status, status) {
		e.logger.Error("invalid run transition", "run_id", run.ID, "from", run.Status, "to", status)
		return
	}
	run.Status = status
	if token.Cancelled() {
		return
	}
	if err := e.store.UpdateRunStatus(context.Background(), run.ID, status); err != nil && !errors.Is(err, store.ErrFinalized) {
		e.logger.Error("failed to persist run transition", "run_id", run.ID, "status", status, "error", err)
	}
}
