package workflow

import "fmt"

// Action selects which parameterized workflow graph a job runs and which
// runtime parameters it needs. The names double as configuration keys.
type Action string

const (
	ActionGenerate   Action = "generator"
	ActionImageEdit1 Action = "imageedit_1"
	ActionImageEdit2 Action = "imageedit_2"
	ActionImageEdit3 Action = "imageedit_3"
	ActionInpaint    Action = "inpaint_focused"
	ActionOutpaint   Action = "outpaint"
	ActionUpscale4x  Action = "upscaler_4x"
)

// Actions lists every supported action in a stable order.
var Actions = []Action{
	ActionGenerate,
	ActionImageEdit1,
	ActionImageEdit2,
	ActionImageEdit3,
	ActionInpaint,
	ActionOutpaint,
	ActionUpscale4x,
}

// Valid reports whether a names a supported action.
func (a Action) Valid() bool {
	switch a {
	case ActionGenerate, ActionImageEdit1, ActionImageEdit2, ActionImageEdit3,
		ActionInpaint, ActionOutpaint, ActionUpscale4x:
		return true
	}
	return false
}

// ImageCount returns the exact number of input images the action requires.
func (a Action) ImageCount() int {
	switch a {
	case ActionGenerate:
		return 0
	case ActionImageEdit2:
		return 2
	case ActionImageEdit3:
		return 3
	default:
		return 1
	}
}

// SplitsPrompt reports whether the action uses separate positive/negative
// prompts. Only the image-edit family does; single-prompt actions pass the
// raw text through.
func (a Action) SplitsPrompt() bool {
	switch a {
	case ActionImageEdit1, ActionImageEdit2, ActionImageEdit3:
		return true
	}
	return false
}

// CheckImageCount rejects a mismatched input image count with a descriptive
// error. It must run before any input file is written.
func (a Action) CheckImageCount(n int) error {
	if want := a.ImageCount(); n != want {
		return fmt.Errorf("%w: action %q requires exactly %d input image(s), got %d",
			ErrCardinality, a, want, n)
	}
	return nil
}

// InferAction is a compatibility shim for callers that supply images but no
// explicit action. It lives only at the request boundary; core dispatch is
// always on an explicit Action.
func InferAction(imageCount int) (Action, error) {
	switch imageCount {
	case 1:
		return ActionInpaint, nil
	case 2:
		return ActionImageEdit2, nil
	case 3:
		return ActionImageEdit3, nil
	}
	return "", fmt.Errorf("cannot infer action from %d input image(s)", imageCount)
}
