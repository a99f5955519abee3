// Package compose moves pixels across the host boundary: PNG codec, the
// scale-and-pad step that prepares an extract region for the backend, and
// the inverse de-pad/rescale/paste step that restores a result into the
// original image.
package compose

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/seantiz/comfybridge/internal/geometry"
)

// PadPolicy decides what to do when the backend's output dimensions do not
// match the target shape the padding was computed for.
type PadPolicy int

const (
	// TrustBackendScaling skips padding removal and rescales the whole
	// output: some workflows rescale internally, and cropping with the
	// original pad offsets would keep only the top-left of the image.
	TrustBackendScaling PadPolicy = iota

	// StrictShape treats a shape mismatch as an error.
	StrictShape
)

// ErrShapeMismatch is returned under StrictShape when the backend output
// does not match the target shape.
var ErrShapeMismatch = errors.New("backend output does not match target shape")

// Decode parses PNG (or any registered format) bytes into an image.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodePNG serializes an image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractRegion crops the context region out of the source image.
func ExtractRegion(src image.Image, region geometry.Region) *image.NRGBA {
	return imaging.Crop(src, image.Rect(
		region.X, region.Y,
		region.X+region.Width, region.Y+region.Height,
	))
}

// FitToShape scales src per the padding info and centers it on a canvas of
// the target shape. The canvas is opaque black, matching what the backend
// graphs expect in padded margins.
func FitToShape(src image.Image, info geometry.PaddingInfo, shape geometry.Shape) *image.NRGBA {
	scaled := imaging.Resize(src, info.ScaledWidth, info.ScaledHeight, imaging.Lanczos)
	canvas := imaging.New(shape.Width, shape.Height, color.NRGBA{A: 255})
	return imaging.Paste(canvas, scaled, image.Pt(info.Pad.Left, info.Pad.Top))
}

// RestoreResult maps a backend output back to extract-region size. When the
// output still matches the target shape, the padding is cropped away first
// and the remaining content rescaled. When it does not, the policy decides:
// trust the backend's own scaling and rescale the whole output, or fail.
func RestoreResult(result image.Image, info geometry.ContextInfo, policy PadPolicy) (*image.NRGBA, error) {
	w := result.Bounds().Dx()
	h := result.Bounds().Dy()
	extract := info.ExtractRegion

	if w == info.TargetShape.Width && h == info.TargetShape.Height {
		pad := info.PaddingInfo.Pad
		content := imaging.Crop(result, image.Rect(
			pad.Left, pad.Top,
			pad.Left+info.PaddingInfo.ScaledWidth, pad.Top+info.PaddingInfo.ScaledHeight,
		))
		return imaging.Resize(content, extract.Width, extract.Height, imaging.Lanczos), nil
	}

	if policy == StrictShape {
		return nil, fmt.Errorf("%w: got %dx%d, want %s", ErrShapeMismatch, w, h, info.TargetShape)
	}
	return imaging.Resize(result, extract.Width, extract.Height, imaging.Lanczos), nil
}

// Composite pastes the restored result onto a copy of the base image at the
// placement rectangle. The result must already be at placement size.
func Composite(base image.Image, result image.Image, p geometry.Placement) *image.NRGBA {
	return imaging.Paste(imaging.Clone(base), result, image.Pt(p.X, p.Y))
}

// RenderMask rasterizes mask coordinates into a white-on-black mask image
// suitable for LoadImage-style mask inputs: white where the edit applies.
func RenderMask(mc geometry.MaskCoords) *image.NRGBA {
	mask := imaging.New(mc.TargetSize, mc.TargetSize, color.NRGBA{A: 255})

	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if mc.Type == geometry.MaskCircle {
		r2 := mc.Radius * mc.Radius
		for y := mc.CenterY - mc.Radius; y <= mc.CenterY+mc.Radius; y++ {
			for x := mc.CenterX - mc.Radius; x <= mc.CenterX+mc.Radius; x++ {
				dx, dy := x-mc.CenterX, y-mc.CenterY
				if dx*dx+dy*dy <= r2 && x >= 0 && y >= 0 && x < mc.TargetSize && y < mc.TargetSize {
					mask.SetNRGBA(x, y, white)
				}
			}
		}
		return mask
	}

	for y := mc.Rect.Y1; y < mc.Rect.Y2; y++ {
		for x := mc.Rect.X1; x < mc.Rect.X2; x++ {
			mask.SetNRGBA(x, y, white)
		}
	}
	return mask
}
