package geometry

import "fmt"

// Validate checks the invariants a ContextInfo must satisfy before it is
// used to drive extraction or a backend job. Callers that receive an error
// should fall back to FallbackContext rather than surface the failure.
func Validate(info ContextInfo) error {
	if info.Mode != ModeFull && info.Mode != ModeFocused {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeFull, ModeFocused, info.Mode)
	}
	if !info.SelectionBounds.WellOrdered() {
		return fmt.Errorf("selection_bounds not well-ordered: %+v", info.SelectionBounds)
	}
	if info.ExtractRegion.Width <= 0 || info.ExtractRegion.Height <= 0 {
		return fmt.Errorf("extract_region has non-positive size: %dx%d",
			info.ExtractRegion.Width, info.ExtractRegion.Height)
	}
	if info.Mode == ModeFocused && !info.ExtractRegion.Contains(info.SelectionBounds) {
		return fmt.Errorf("extract_region %+v does not contain selection_bounds %+v",
			info.ExtractRegion, info.SelectionBounds)
	}
	if !info.TargetShape.Canonical() {
		return fmt.Errorf("target_shape %s is not one of %s, %s, %s",
			info.TargetShape, ShapeSquare, ShapeLandscape, ShapePortrait)
	}
	return nil
}
