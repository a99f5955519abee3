package workflow

import (
	"fmt"
	"strings"
)

// Runtime value keys shared between override tables and value construction.
const (
	KeyPromptText         = "promptText"
	KeyPromptTextPositive = "promptTextPositive"
	KeyPromptTextNegative = "promptTextNegative"
	KeySaveFilenamePrefix = "saveFilenamePrefix"
	KeyWidth              = "width"
	KeyHeight             = "height"
	KeySeed               = "seed"
	KeyInputImageFilename = "inputImageFilename"
	KeyInputMaskFilename  = "inputMaskFilename"
	KeyImg1Filename       = "img1Filename"
	KeyImg2Filename       = "img2Filename"
	KeyImg3Filename       = "img3Filename"
	KeyPadLeft            = "padLeft"
	KeyPadTop             = "padTop"
	KeyPadRight           = "padRight"
	KeyPadBottom          = "padBottom"
)

// promptSeparator splits raw prompt text into positive and negative parts
// for the image-edit action family.
const promptSeparator = "|"

// OverridePoint names the graph node and input field a logical parameter
// binds to. Override tables are user-declared configuration and validated
// lazily, at apply time.
type OverridePoint struct {
	NodeID string `json:"node_id"`
	Field  string `json:"field"`
}

// Overrides maps logical parameter names to their graph binding points.
type Overrides map[string]OverridePoint

// Values maps logical parameter names to the concrete values computed for
// one invocation.
type Values map[string]any

// Apply injects every runtime value that has a declared override into the
// graph. Values without a declared override are silently skipped: the
// workflow variant simply does not take that input. A declared override
// that points at a missing or malformed node fails with ErrOverride.
func Apply(g Graph, ov Overrides, vals Values) error {
	for key, value := range vals {
		point, ok := ov[key]
		if !ok {
			continue
		}
		nodeID := strings.TrimSpace(point.NodeID)
		field := strings.TrimSpace(point.Field)
		if nodeID == "" || field == "" {
			return fmt.Errorf("%w: override %q is missing node_id or field", ErrOverride, key)
		}
		node, ok := g[nodeID]
		if !ok || node == nil {
			return fmt.Errorf("%w: override %q points at missing node %q", ErrOverride, key, nodeID)
		}
		if node.Inputs == nil {
			node.Inputs = make(map[string]any)
		}
		node.Inputs[field] = value
	}
	return nil
}

// RequiredKeys lists the logical parameters that must have a declared
// override for the action to be runnable: without them the backend job would
// silently run without its primary inputs.
func RequiredKeys(a Action) []string {
	switch a {
	case ActionInpaint, ActionUpscale4x:
		return []string{KeyInputImageFilename}
	case ActionImageEdit1:
		return []string{KeyImg1Filename}
	case ActionImageEdit2:
		return []string{KeyImg1Filename, KeyImg2Filename}
	case ActionImageEdit3:
		return []string{KeyImg1Filename, KeyImg2Filename, KeyImg3Filename}
	case ActionOutpaint:
		return []string{KeyImg1Filename}
	}
	return nil
}

// CheckRequired verifies that every required key for the action is declared
// in the override table. It runs before any network call.
func CheckRequired(a Action, ov Overrides) error {
	for _, key := range RequiredKeys(a) {
		if _, ok := ov[key]; !ok {
			return fmt.Errorf("%w: action %q requires an override for %q", ErrOverride, a, key)
		}
	}
	return nil
}

// SplitPrompt splits raw prompt text once on the separator into positive and
// negative prompts. Without a separator the whole text is the positive
// prompt and the negative is empty.
func SplitPrompt(text string) (positive, negative string) {
	before, after, found := strings.Cut(text, promptSeparator)
	if !found {
		return text, ""
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}
