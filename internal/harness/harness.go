// Package harness runs a unit of work off the caller's loop with heartbeat
// progress, cooperative per-operation cancellation and a hard timeout.
//
// Cancellation and timeout abandon the wait, not the work: the background
// goroutine is left running and its eventual result is discarded. Backend
// jobs started by abandoned work may keep running server-side.
package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sentinel errors distinguishing the two ways a wait can end without a
// result. Callers suppress error UI for ErrCancelled: the stop was
// user-initiated.
var (
	ErrCancelled = errors.New("operation cancelled")
	ErrTimedOut  = errors.New("operation timed out")
)

const (
	// tick is how often the wait loop checks for cancellation.
	tick = 100 * time.Millisecond
	// heartbeatEvery is how often a progress heartbeat is logged.
	heartbeatEvery = 10 * time.Second
)

// Token is a single-writer single-reader cancellation flag scoped to one
// operation. A fresh token per operation prevents a stale cancel from one
// run leaking into the next.
type Token struct {
	once sync.Once
	ch   chan struct{}
}

// NewToken returns an uncancelled token.
func NewToken() *Token {
	return &Token{ch: make(chan struct{})}
}

// Cancel requests cancellation. Safe to call more than once.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Outcome is what a unit of work, or the harness on its behalf, reports.
type Outcome struct {
	OK      bool
	Message string
	Data    []byte
	// Err classifies harness-side terminations (ErrCancelled, ErrTimedOut)
	// and carries work errors; nil on success.
	Err error
}

// Options configures a Run. Zero values pick the defaults above; a nil
// Token means the operation is not cancellable.
type Options struct {
	Timeout   time.Duration
	Heartbeat time.Duration
	Token     *Token
	Logger    *slog.Logger
}

// Run executes work on a background goroutine and waits for it, emitting a
// heartbeat log while waiting and checking the cancellation token at each
// tick. On completion the work's own outcome is returned unchanged. On
// timeout or cancellation the work is abandoned and a synthetic outcome with
// the matching sentinel error is returned instead.
func Run(work func() Outcome, name string, opts Options) Outcome {
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = heartbeatEvery
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Outcome{Message: fmt.Sprintf("%s panicked: %v", name, r), Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		done <- work()
	}()

	start := time.Now()
	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	lastBeat := start

	for {
		select {
		case out := <-done:
			return out
		case <-deadline:
			elapsed := time.Since(start)
			logger.Warn("operation timed out", "operation", name, "elapsed", elapsed.Round(time.Millisecond))
			return Outcome{
				Message: fmt.Sprintf("%s timed out after %s", name, elapsed.Round(time.Second)),
				Err:     fmt.Errorf("%w after %s", ErrTimedOut, elapsed.Round(time.Second)),
			}
		case <-ticker.C:
			if opts.Token != nil && opts.Token.Cancelled() {
				logger.Info("operation cancelled", "operation", name, "elapsed", time.Since(start).Round(time.Millisecond))
				return Outcome{
					Message: fmt.Sprintf("%s cancelled", name),
					Err:     ErrCancelled,
				}
			}
			if time.Since(lastBeat) >= heartbeat {
				lastBeat = time.Now()
				logger.Info("still processing", "operation", name, "elapsed", time.Since(start).Round(time.Second))
			}
		}
	}
}
