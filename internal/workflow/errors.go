package workflow

import "errors"

// Sentinel errors for the workflow layer. Callers classify failures with
// errors.Is; the wrapped message carries the specifics.
var (
	// ErrGraphFormat marks a workflow document that is not in the API
	// export format (node_id -> {class_type, inputs}).
	ErrGraphFormat = errors.New("workflow graph is not in API format")

	// ErrOverride marks a declared override that cannot be resolved
	// against the loaded graph.
	ErrOverride = errors.New("override resolution failed")

	// ErrCardinality marks a request whose input image count does not
	// match the action's requirement.
	ErrCardinality = errors.New("wrong input image count")
)
