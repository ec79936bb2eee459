package processor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

const (
	defaultWatermarkText = "image-gateway"
	badgeWidth           = 160
	badgeHeight          = 40
	badgeFontSize        = 18
)

// loadWatermark returns the configured asset, or renders the default badge.
func loadWatermark(opts Options) (image.Image, error) {
	if opts.WatermarkPath != "" {
		img, err := gg.LoadImage(opts.WatermarkPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load watermark %s: %w", opts.WatermarkPath, err)
		}
		return img, nil
	}

	text := opts.WatermarkText
	if text == "" {
		text = defaultWatermarkText
	}

	return renderBadge(text, opts.FontPath)
}

// renderBadge draws white text on a translucent rounded rectangle.
// Without a font file gg falls back to its built-in bitmap face.
func renderBadge(text, fontPath string) (image.Image, error) {
	dc := gg.NewContext(badgeWidth, badgeHeight)

	dc.SetRGBA(0, 0, 0, 0.45)
	dc.DrawRoundedRectangle(0, 0, badgeWidth, badgeHeight, 8)
	dc.Fill()

	if fontPath != "" {
		if err := dc.LoadFontFace(fontPath, badgeFontSize); err != nil {
			return nil, fmt.Errorf("failed to load font: %w", err)
		}
	}

	dc.SetColor(color.White)
	dc.DrawStringAnchored(text, badgeWidth/2, badgeHeight/2, 0.5, 0.5)

	return dc.Image(), nil
}
