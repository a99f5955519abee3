package geometry

// Context margin limits: the selection is expanded by 40% of its larger
// dimension, clamped to this range, before clamping to image bounds.
const (
	contextPadRatio = 0.4
	contextPadMin   = 50
	contextPadMax   = 300

	// defaultSelectionSize is the side of the centered square selection
	// synthesized when focused mode is requested without a selection.
	defaultSelectionSize = 512

	// aspectEpsilon is the tolerance below which the context rectangle's
	// aspect ratio is considered to already match the target shape.
	aspectEpsilon = 0.01
)

// Extract computes the context extraction for an image of imgW×imgH and an
// optional selection. A nil selection means the host had none; focused mode
// then synthesizes a centered square so the algorithm stays selection-driven.
//
// In full mode the extract region is the whole image. In focused mode the
// selection is expanded by an adaptive margin, clamped to the image by
// shifting the window inward rather than truncating, and then grown along
// the shorter axis toward the target shape's aspect ratio so that real image
// content replaces blank padding wherever the image has room.
func Extract(imgW, imgH int, sel *Bounds, mode string) ContextInfo {
	hasSelection := sel != nil

	var s Bounds
	if hasSelection {
		s = *sel
	} else {
		size := min(imgW, imgH, defaultSelectionSize)
		s.X1 = (imgW - size) / 2
		s.Y1 = (imgH - size) / 2
		s.X2 = s.X1 + size
		s.Y2 = s.Y1 + size
	}

	if mode == ModeFull {
		shape := SelectShape(imgW, imgH)
		return ContextInfo{
			Mode:            ModeFull,
			SelectionBounds: s,
			ExtractRegion:   Region{X: 0, Y: 0, Width: imgW, Height: imgH},
			TargetShape:     shape,
			NeedsPadding:    true,
			PaddingInfo:     FitToShape(imgW, imgH, shape),
			HasSelection:    hasSelection,
		}
	}

	pad := int(float64(max(s.Width(), s.Height())) * contextPadRatio)
	pad = max(contextPadMin, min(contextPadMax, pad))

	ctx := Bounds{X1: s.X1 - pad, Y1: s.Y1 - pad, X2: s.X2 + pad, Y2: s.Y2 + pad}
	ctx = clampShifting(ctx, imgW, imgH)

	shape := SelectShape(ctx.Width(), ctx.Height())
	ctx = growToAspect(ctx, shape, imgW, imgH)

	return ContextInfo{
		Mode:            ModeFocused,
		SelectionBounds: s,
		ExtractRegion:   Region{X: ctx.X1, Y: ctx.Y1, Width: ctx.Width(), Height: ctx.Height()},
		SelectionInExtract: Bounds{
			X1: s.X1 - ctx.X1,
			Y1: s.Y1 - ctx.Y1,
			X2: s.X2 - ctx.X1,
			Y2: s.Y2 - ctx.Y1,
		},
		TargetShape:  shape,
		NeedsPadding: ctx.Width() != shape.Width || ctx.Height() != shape.Height,
		PaddingInfo:  FitToShape(ctx.Width(), ctx.Height(), shape),
		HasSelection: hasSelection,
	}
}

// clampShifting clamps b to [0,imgW]×[0,imgH], shifting the window inward to
// preserve its size where possible instead of just truncating the edge that
// fell outside.
func clampShifting(b Bounds, imgW, imgH int) Bounds {
	if b.X1 < 0 {
		shift := -b.X1
		b.X1 = 0
		b.X2 = min(imgW, b.X2+shift)
	}
	if b.Y1 < 0 {
		shift := -b.Y1
		b.Y1 = 0
		b.Y2 = min(imgH, b.Y2+shift)
	}
	if b.X2 > imgW {
		shift := b.X2 - imgW
		b.X2 = imgW
		b.X1 = max(0, b.X1-shift)
	}
	if b.Y2 > imgH {
		shift := b.Y2 - imgH
		b.Y2 = imgH
		b.Y1 = max(0, b.Y1-shift)
	}
	return b
}

// growToAspect extends b along its shorter axis toward the target shape's
// aspect ratio, extending symmetrically and falling back to one-sided
// extension when an image boundary is hit. The result never exceeds the
// image, so the match is only as close as available image area permits.
func growToAspect(b Bounds, shape Shape, imgW, imgH int) Bounds {
	targetAspect := float64(shape.Width) / float64(shape.Height)
	currentAspect := 1.0
	if b.Height() > 0 {
		currentAspect = float64(b.Width()) / float64(b.Height())
	}
	if diff := currentAspect - targetAspect; diff < aspectEpsilon && diff > -aspectEpsilon {
		return b
	}

	if targetAspect > currentAspect {
		wantW := int(float64(b.Height()) * targetAspect)
		diff := wantW - b.Width()
		left := diff / 2
		right := diff - left

		x1 := max(0, b.X1-left)
		x2 := min(imgW, b.X2+right)
		if x1 == 0 && x2 < imgW {
			x2 = min(imgW, x2+wantW-(x2-x1))
		} else if x2 == imgW && x1 > 0 {
			x1 = max(0, x1-(wantW-(x2-x1)))
		}
		b.X1, b.X2 = x1, x2
		return b
	}

	wantH := int(float64(b.Width()) / targetAspect)
	diff := wantH - b.Height()
	top := diff / 2
	bottom := diff - top

	y1 := max(0, b.Y1-top)
	y2 := min(imgH, b.Y2+bottom)
	if y1 == 0 && y2 < imgH {
		y2 = min(imgH, y2+wantH-(y2-y1))
	} else if y2 == imgH && y1 > 0 {
		y1 = max(0, y1-(wantH-(y2-y1)))
	}
	b.Y1, b.Y2 = y1, y2
	return b
}

// FallbackContext is the safe default used when a computed context fails
// validation: a full-image extraction with a synthesized centered selection.
func FallbackContext(imgW, imgH int) ContextInfo {
	return Extract(imgW, imgH, nil, ModeFull)
}
