package compose_test

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/seantiz/comfybridge/internal/compose"
	"github.com/seantiz/comfybridge/internal/geometry"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := solid(16, 8, red)
	data, err := compose.EncodePNG(src)
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	img, err := compose.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("decoded size = %dx%d, want 16x8", b.Dx(), b.Dy())
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := compose.Decode([]byte("not an image")); err == nil {
		t.Fatal("Decode(garbage) returned nil error")
	}
}

func TestExtractRegion(t *testing.T) {
	// Blue image with a red 10x10 block at (20,30).
	src := solid(100, 100, blue)
	for y := 30; y < 40; y++ {
		for x := 20; x < 30; x++ {
			src.SetNRGBA(x, y, red)
		}
	}

	out := compose.ExtractRegion(src, geometry.Region{X: 20, Y: 30, Width: 10, Height: 10})
	if b := out.Bounds(); b.Dx() != 10 || b.Dy() != 10 {
		t.Fatalf("extract size = %dx%d, want 10x10", b.Dx(), b.Dy())
	}
	if got := out.NRGBAAt(5, 5); got != red {
		t.Errorf("extract center = %+v, want red", got)
	}
}

func TestFitToShape(t *testing.T) {
	info := geometry.FitToShape(800, 600, geometry.ShapeLandscape)
	out := compose.FitToShape(solid(800, 600, red), info, geometry.ShapeLandscape)

	if b := out.Bounds(); b.Dx() != 1536 || b.Dy() != 1024 {
		t.Fatalf("canvas size = %dx%d, want 1536x1024", b.Dx(), b.Dy())
	}
	// Padded margin is black, content area is the source color.
	if got := out.NRGBAAt(10, 512); got.R != 0 || got.G != 0 || got.B != 0 {
		t.Errorf("left margin pixel = %+v, want black", got)
	}
	if got := out.NRGBAAt(768, 512); got != red {
		t.Errorf("content pixel = %+v, want red", got)
	}
}

func TestRestoreResultCropsPadding(t *testing.T) {
	sel := &geometry.Bounds{X1: 100, Y1: 100, X2: 300, Y2: 300}
	info := geometry.Extract(2000, 1000, sel, geometry.ModeFocused) // 360x360 extract, square shape

	// Backend output at exactly the target shape: padding path.
	result := solid(info.TargetShape.Width, info.TargetShape.Height, red)
	out, err := compose.RestoreResult(result, info, compose.TrustBackendScaling)
	if err != nil {
		t.Fatalf("RestoreResult() error = %v", err)
	}
	if b := out.Bounds(); b.Dx() != 360 || b.Dy() != 360 {
		t.Errorf("restored size = %dx%d, want 360x360", b.Dx(), b.Dy())
	}
}

func TestRestoreResultShapeMismatch(t *testing.T) {
	sel := &geometry.Bounds{X1: 100, Y1: 100, X2: 300, Y2: 300}
	info := geometry.Extract(2000, 1000, sel, geometry.ModeFocused)
	result := solid(640, 480, red)

	// Default policy rescales the whole output to extract size.
	out, err := compose.RestoreResult(result, info, compose.TrustBackendScaling)
	if err != nil {
		t.Fatalf("RestoreResult(trust) error = %v", err)
	}
	if b := out.Bounds(); b.Dx() != 360 || b.Dy() != 360 {
		t.Errorf("restored size = %dx%d, want 360x360", b.Dx(), b.Dy())
	}

	// Strict policy refuses.
	_, err = compose.RestoreResult(result, info, compose.StrictShape)
	if !errors.Is(err, compose.ErrShapeMismatch) {
		t.Fatalf("RestoreResult(strict) error = %v, want ErrShapeMismatch", err)
	}
}

func TestComposite(t *testing.T) {
	base := solid(100, 100, blue)
	patch := solid(20, 20, red)
	out := compose.Composite(base, patch, geometry.Placement{X: 40, Y: 40, Width: 20, Height: 20})

	if got := out.NRGBAAt(50, 50); got != red {
		t.Errorf("patched pixel = %+v, want red", got)
	}
	if got := out.NRGBAAt(10, 10); got != blue {
		t.Errorf("outside pixel = %+v, want blue", got)
	}
	// Original base untouched.
	if got := base.NRGBAAt(50, 50); got != blue {
		t.Errorf("base mutated: %+v", got)
	}
}

func TestRenderMaskRectangle(t *testing.T) {
	mc := geometry.MaskCoords{
		Type:       geometry.MaskRectangle,
		Rect:       geometry.Bounds{X1: 10, Y1: 10, X2: 30, Y2: 30},
		TargetSize: 64,
	}
	mask := compose.RenderMask(mc)

	if b := mask.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("mask size = %dx%d, want 64x64", b.Dx(), b.Dy())
	}
	if got := mask.NRGBAAt(20, 20); got.R != 255 {
		t.Errorf("inside pixel = %+v, want white", got)
	}
	if got := mask.NRGBAAt(5, 5); got.R != 0 {
		t.Errorf("outside pixel = %+v, want black", got)
	}
	if got := mask.NRGBAAt(30, 30); got.R != 0 {
		t.Errorf("pixel at exclusive corner = %+v, want black", got)
	}
}

func TestRenderMaskCircle(t *testing.T) {
	mc := geometry.MaskCoords{
		Type:       geometry.MaskCircle,
		CenterX:    32,
		CenterY:    32,
		Radius:     16,
		TargetSize: 64,
	}
	mask := compose.RenderMask(mc)

	if got := mask.NRGBAAt(32, 32); got.R != 255 {
		t.Errorf("center pixel = %+v, want white", got)
	}
	if got := mask.NRGBAAt(32, 47); got.R != 255 {
		t.Errorf("pixel just inside radius = %+v, want white", got)
	}
	if got := mask.NRGBAAt(2, 2); got.R != 0 {
		t.Errorf("corner pixel = %+v, want black", got)
	}
}
