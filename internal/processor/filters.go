package processor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/aliskhannn/image-gateway/internal/spec"
)

// tint mixes every pixel towards a fixed colour.
type tint struct {
	color  colorful.Color
	amount float64 // 0 keeps the pixel, 1 replaces it
}

// Colour presets named after the photon filters of the same name.
var tints = map[spec.FilterKind]tint{
	spec.Oceanic: {color: rgb255(0, 89, 173), amount: 0.3},
	spec.Islands: {color: rgb255(0, 24, 95), amount: 0.3},
	spec.Marine:  {color: rgb255(0, 14, 119), amount: 0.3},
}

func rgb255(r, g, b uint8) colorful.Color {
	return colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

func applyFilter(img image.Image, kind spec.FilterKind) (image.Image, error) {
	switch kind {
	case spec.Oceanic, spec.Marine:
		return tintImage(img, tints[kind]), nil
	case spec.Islands:
		return adjust.Saturation(tintImage(img, tints[kind]), 0.25), nil
	case spec.Grayscale:
		return effect.Grayscale(img), nil
	case spec.Sepia:
		return effect.Sepia(img), nil
	case spec.Invert:
		return effect.Invert(img), nil
	default:
		return nil, fmt.Errorf("unknown filter %d", kind)
	}
}

func tintImage(img image.Image, t tint) image.Image {
	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		src := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
		r, g, b := src.BlendRgb(t.color, t.amount).Clamped().RGB255()
		return color.RGBA{R: r, G: g, B: b, A: c.A}
	})
}
