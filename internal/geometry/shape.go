package geometry

// Aspect-ratio thresholds for shape selection. Between the two the square
// shape is used.
const (
	wideAspect = 1.3
	tallAspect = 0.77
)

// SelectShape picks the canonical shape for the given dimensions. It is a
// pure function of the aspect ratio only. Degenerate dimensions resolve to
// the square shape.
func SelectShape(width, height int) Shape {
	if width <= 0 || height <= 0 {
		return ShapeSquare
	}
	switch aspect := float64(width) / float64(height); {
	case aspect > wideAspect:
		return ShapeLandscape
	case aspect < tallAspect:
		return ShapePortrait
	default:
		return ShapeSquare
	}
}
