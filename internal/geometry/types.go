package geometry

import "fmt"

// Extraction mode constants.
const (
	ModeFull    = "full"
	ModeFocused = "focused"
)

// Shape is one of the canonical backend input/output sizes. The backend's
// workflow graphs are statically sized for exactly these three shapes.
type Shape struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// The three canonical shapes.
var (
	ShapeSquare    = Shape{Width: 1024, Height: 1024}
	ShapeLandscape = Shape{Width: 1536, Height: 1024}
	ShapePortrait  = Shape{Width: 1024, Height: 1536}
)

// Canonical reports whether s is one of the three accepted shapes.
func (s Shape) Canonical() bool {
	return s == ShapeSquare || s == ShapeLandscape || s == ShapePortrait
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Bounds is a rectangle in corner form. Valid bounds satisfy X2 > X1 and
// Y2 > Y1.
type Bounds struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns the horizontal extent of the bounds.
func (b Bounds) Width() int { return b.X2 - b.X1 }

// Height returns the vertical extent of the bounds.
func (b Bounds) Height() int { return b.Y2 - b.Y1 }

// WellOrdered reports whether the corners are in increasing order on both axes.
func (b Bounds) WellOrdered() bool { return b.X2 > b.X1 && b.Y2 > b.Y1 }

// Region is a rectangle in origin+size form, in original-image coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether b lies entirely inside the region.
func (r Region) Contains(b Bounds) bool {
	return r.X <= b.X1 && r.Y <= b.Y1 &&
		r.X+r.Width >= b.X2 && r.Y+r.Height >= b.Y2
}

// Padding holds per-edge padding in pixels.
type Padding struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// PaddingInfo describes how content is scaled and centered into a target
// shape. The invariant Pad.Left+ScaledWidth+Pad.Right == target width (and
// the vertical equivalent) holds exactly; the inverse placement step crops
// with these numbers.
type PaddingInfo struct {
	ScaleFactor  float64 `json:"scale_factor"`
	ScaledWidth  int     `json:"scaled_width"`
	ScaledHeight int     `json:"scaled_height"`
	Pad          Padding `json:"padding"`
}

// ContextInfo is the immutable result of context extraction. It is produced
// once per operation and consumed by the host's pixel extraction, by the
// workflow override step (width/height runtime values) and by placement
// after the job completes.
//
// SelectionInExtract is only meaningful in focused mode; it carries the
// selection translated into extract-region-local coordinates for mask
// construction.
type ContextInfo struct {
	Mode               string      `json:"mode"`
	SelectionBounds    Bounds      `json:"selection_bounds"`
	ExtractRegion      Region      `json:"extract_region"`
	SelectionInExtract Bounds      `json:"selection_in_extract,omitzero"`
	TargetShape        Shape       `json:"target_shape"`
	NeedsPadding       bool        `json:"needs_padding"`
	PaddingInfo        PaddingInfo `json:"padding_info"`
	HasSelection       bool        `json:"has_selection"`
}

// Placement tells the host where to paste the restored result back into the
// original image: the extract region's origin and size verbatim. Extraction
// and placement sharing the exact rectangle is what makes the round trip
// pixel-accurate.
type Placement struct {
	X      int `json:"paste_x"`
	Y      int `json:"paste_y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PlacementFor returns the paste rectangle for a completed job.
func PlacementFor(info ContextInfo) Placement {
	return Placement{
		X:      info.ExtractRegion.X,
		Y:      info.ExtractRegion.Y,
		Width:  info.ExtractRegion.Width,
		Height: info.ExtractRegion.Height,
	}
}
