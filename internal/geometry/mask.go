package geometry

// Mask type constants.
const (
	MaskRectangle = "rectangle"
	MaskCircle    = "circle"
)

// MaskCoords describes the selection mask in mask-image space. A rectangle
// mask carries corner coordinates; a circle mask (no selection) carries a
// center and radius.
type MaskCoords struct {
	Type        string  `json:"mask_type"`
	Rect        Bounds  `json:"rect,omitzero"`
	CenterX     int     `json:"center_x,omitempty"`
	CenterY     int     `json:"center_y,omitempty"`
	Radius      int     `json:"radius,omitempty"`
	TargetSize  int     `json:"target_size"`
	ScaleFactor float64 `json:"scale_factor,omitempty"`
}

// MaskCoordinates maps the selection into a square mask of side targetSize.
// Without a selection it falls back to a centered circle covering a quarter
// of the mask.
func MaskCoordinates(info ContextInfo, targetSize int) MaskCoords {
	if !info.HasSelection {
		return MaskCoords{
			Type:       MaskCircle,
			CenterX:    targetSize / 2,
			CenterY:    targetSize / 2,
			Radius:     targetSize / 4,
			TargetSize: targetSize,
		}
	}

	sel := info.SelectionBounds
	ext := info.ExtractRegion

	// Scale by the larger extract dimension so the mask stays inside the
	// square even for non-square extract regions.
	scale := float64(targetSize) / float64(max(ext.Width, ext.Height))

	clampLow := func(v, hi int) int { return max(0, min(hi, v)) }
	return MaskCoords{
		Type: MaskRectangle,
		Rect: Bounds{
			X1: clampLow(int(float64(sel.X1-ext.X)*scale), targetSize-1),
			Y1: clampLow(int(float64(sel.Y1-ext.Y)*scale), targetSize-1),
			X2: clampLow(int(float64(sel.X2-ext.X)*scale), targetSize),
			Y2: clampLow(int(float64(sel.Y2-ext.Y)*scale), targetSize),
		},
		TargetSize:  targetSize,
		ScaleFactor: scale,
	}
}
