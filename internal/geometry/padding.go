package geometry

// FitToShape computes the uniform scale-to-fit of currentW×currentH inside
// the target shape plus the centered padding around the scaled content.
// Scaled sizes are floored, the left/top pads take the integer half of the
// remaining space, and the right/bottom pads absorb the odd pixel, so
// pad+scaled+pad equals the target exactly on each axis.
func FitToShape(currentW, currentH int, target Shape) PaddingInfo {
	scaleX := float64(target.Width) / float64(currentW)
	scaleY := float64(target.Height) / float64(currentH)
	scale := min(scaleX, scaleY)

	scaledW := int(float64(currentW) * scale)
	scaledH := int(float64(currentH) * scale)

	padLeft := (target.Width - scaledW) / 2
	padTop := (target.Height - scaledH) / 2

	return PaddingInfo{
		ScaleFactor:  scale,
		ScaledWidth:  scaledW,
		ScaledHeight: scaledH,
		Pad: Padding{
			Left:   padLeft,
			Top:    padTop,
			Right:  target.Width - scaledW - padLeft,
			Bottom: target.Height - scaledH - padTop,
		},
	}
}
