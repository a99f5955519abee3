package geometry_test

import (
	"math"
	"testing"

	"github.com/seantiz/comfybridge/internal/geometry"
)

func TestFitToShape(t *testing.T) {
	tests := []struct {
		name       string
		cw, ch     int
		target     geometry.Shape
		wantScaled [2]int
		wantPad    geometry.Padding
	}{
		{
			// 800x600 into landscape: scale = min(1.92, 1.7066) -> 1366x1024.
			name:       "landscape fit",
			cw:         800,
			ch:         600,
			target:     geometry.ShapeLandscape,
			wantScaled: [2]int{1366, 1024},
			wantPad:    geometry.Padding{Left: 85, Top: 0, Right: 85, Bottom: 0},
		},
		{
			name:       "exact fit square",
			cw:         1024,
			ch:         1024,
			target:     geometry.ShapeSquare,
			wantScaled: [2]int{1024, 1024},
			wantPad:    geometry.Padding{},
		},
		{
			name:       "wide content into square",
			cw:         2048,
			ch:         1024,
			target:     geometry.ShapeSquare,
			wantScaled: [2]int{1024, 512},
			wantPad:    geometry.Padding{Left: 0, Top: 256, Right: 0, Bottom: 256},
		},
		{
			// Odd leftover pixel goes to the trailing edge.
			name:       "odd remainder on trailing edge",
			cw:         341,
			ch:         1024,
			target:     geometry.ShapeSquare,
			wantScaled: [2]int{341, 1024},
			wantPad:    geometry.Padding{Left: 341, Top: 0, Right: 342, Bottom: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := geometry.FitToShape(tt.cw, tt.ch, tt.target)
			if got.ScaledWidth != tt.wantScaled[0] || got.ScaledHeight != tt.wantScaled[1] {
				t.Errorf("scaled = %dx%d, want %dx%d",
					got.ScaledWidth, got.ScaledHeight, tt.wantScaled[0], tt.wantScaled[1])
			}
			if got.Pad != tt.wantPad {
				t.Errorf("padding = %+v, want %+v", got.Pad, tt.wantPad)
			}
		})
	}
}

func TestFitToShapeSumInvariant(t *testing.T) {
	shapes := []geometry.Shape{geometry.ShapeSquare, geometry.ShapeLandscape, geometry.ShapePortrait}
	for _, shape := range shapes {
		for cw := 1; cw < 4000; cw += 97 {
			for ch := 1; ch < 4000; ch += 113 {
				info := geometry.FitToShape(cw, ch, shape)
				if sum := info.Pad.Left + info.ScaledWidth + info.Pad.Right; sum != shape.Width {
					t.Fatalf("fit(%d,%d,%v): horizontal sum %d != %d", cw, ch, shape, sum, shape.Width)
				}
				if sum := info.Pad.Top + info.ScaledHeight + info.Pad.Bottom; sum != shape.Height {
					t.Fatalf("fit(%d,%d,%v): vertical sum %d != %d", cw, ch, shape, sum, shape.Height)
				}
				if info.ScaledWidth > shape.Width || info.ScaledHeight > shape.Height {
					t.Fatalf("fit(%d,%d,%v): scaled %dx%d exceeds target", cw, ch, shape,
						info.ScaledWidth, info.ScaledHeight)
				}
				if info.ScaleFactor <= 0 {
					t.Fatalf("fit(%d,%d,%v): non-positive scale %v", cw, ch, shape, info.ScaleFactor)
				}
			}
		}
	}
}

func TestFitToShapeScaleFactor(t *testing.T) {
	info := geometry.FitToShape(800, 600, geometry.ShapeLandscape)
	want := 1024.0 / 600.0
	if math.Abs(info.ScaleFactor-want) > 1e-9 {
		t.Errorf("scale factor = %v, want %v", info.ScaleFactor, want)
	}
}
