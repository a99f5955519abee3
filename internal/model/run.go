package model

import "time"

// Run status constants. Built, submitted and polling are transient; the
// other four are terminal, mutually exclusive and final.
const (
	StatusBuilt     = "built"
	StatusSubmitted = "submitted"
	StatusPolling   = "polling"
	StatusCompleted = "completed"
	StatusTimedOut  = "timed_out"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusBuilt: {
		StatusSubmitted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusSubmitted: {
		StatusPolling:   true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusTimedOut:  true,
	},
	StatusPolling: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusTimedOut:  true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether the status is final.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusTimedOut, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Run records one backend invocation. The ID doubles as the backend
// client id and as the namespacing prefix for externalized input/output
// filenames, so concurrent or retried invocations never collide.
type Run struct {
	ID             string     `json:"id"`
	Action         string     `json:"action"`
	Status         string     `json:"status"`
	Prompt         string     `json:"prompt,omitempty"`
	PromptID       string     `json:"prompt_id,omitempty"`
	Seed           *int64     `json:"seed,omitempty"`
	Output         []byte     `json:"-"`
	OutputFilename string     `json:"output_filename,omitempty"`
	Error          string     `json:"error,omitempty"`
	TimeoutS       *int       `json:"timeout_s,omitempty"`
	DurationMS     *int       `json:"duration_ms,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}
