package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/aliskhannn/image-gateway/internal/spec"
)

const (
	defaultFormat           = "jpeg"
	defaultJPEGQuality      = 85
	defaultWatermarkOpacity = 1.0

	DefaultMaxSourceDimension = 16384
	DefaultMaxSourcePixels    = 50_000_000
)

var contentTypes = map[imaging.Format]string{
	imaging.JPEG: "image/jpeg",
	imaging.PNG:  "image/png",
	imaging.GIF:  "image/gif",
	imaging.TIFF: "image/tiff",
	imaging.BMP:  "image/bmp",
}

var resampleFilters = map[spec.ResampleFilter]imaging.ResampleFilter{
	spec.Nearest:    imaging.NearestNeighbor,
	spec.Linear:     imaging.Linear,
	spec.CatmullRom: imaging.CatmullRom,
	spec.Gaussian:   imaging.Gaussian,
	spec.Lanczos:    imaging.Lanczos,
	spec.Box:        imaging.Box,
}

// Options configures a Processor.
type Options struct {
	Format           string  // output format: jpeg, png, gif, tiff or bmp
	JPEGQuality      int     // 1-100
	WatermarkPath    string  // PNG/JPEG asset; empty renders the default badge
	WatermarkText    string  // text of the default badge
	FontPath         string  // optional TTF for the default badge
	WatermarkOpacity float64 // 0-1

	// Sources declaring more than these are rejected before decoding.
	MaxSourceDimension int   // widest or tallest accepted side
	MaxSourcePixels    int64 // width*height
}

// Output is an encoded result image.
type Output struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Processor applies transform pipelines to source images.
// It is safe for concurrent use.
type Processor struct {
	watermark   image.Image
	opacity     float64
	maxSide     int
	maxPixels   int64
	format      imaging.Format
	contentType string
	encodeOpts  []imaging.EncodeOption
}

// New creates a Processor, loading the watermark asset up front.
func New(opts Options) (*Processor, error) {
	if opts.Format == "" {
		opts.Format = defaultFormat
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	if opts.WatermarkOpacity <= 0 || opts.WatermarkOpacity > 1 {
		opts.WatermarkOpacity = defaultWatermarkOpacity
	}

	if opts.MaxSourceDimension <= 0 {
		opts.MaxSourceDimension = DefaultMaxSourceDimension
	}
	if opts.MaxSourcePixels <= 0 {
		opts.MaxSourcePixels = DefaultMaxSourcePixels
	}

	format, err := imaging.FormatFromExtension(strings.ToLower(opts.Format))
	if err != nil {
		return nil, fmt.Errorf("invalid output format %q: %w", opts.Format, err)
	}

	wm, err := loadWatermark(opts)
	if err != nil {
		return nil, err
	}

	return &Processor{
		watermark:   wm,
		opacity:     opts.WatermarkOpacity,
		maxSide:     opts.MaxSourceDimension,
		maxPixels:   opts.MaxSourcePixels,
		format:      format,
		contentType: contentTypes[format],
		encodeOpts:  []imaging.EncodeOption{imaging.JPEGQuality(opts.JPEGQuality)},
	}, nil
}

// ContentType returns the MIME type of the images produced by Apply.
func (p *Processor) ContentType() string {
	return p.contentType
}

// Apply decodes src, runs the pipeline steps in order and encodes the result.
// The first failing step aborts the rest.
func (p *Processor) Apply(ctx context.Context, src []byte, pipeline spec.Pipeline) (Output, error) {
	if err := p.checkSource(src); err != nil {
		return Output{}, &Error{Kind: ErrSourceDecode, Step: -1, Err: err}
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return Output{}, &Error{Kind: ErrSourceDecode, Step: -1, Err: err}
	}

	for i, t := range pipeline {
		if err := ctx.Err(); err != nil {
			return Output{}, fmt.Errorf("processing aborted before step %d: %w", i, err)
		}

		img, err = p.apply(img, t)
		if err != nil {
			return Output{}, &Error{Kind: ErrInvalidParameters, Step: i, Err: err}
		}
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, p.format, p.encodeOpts...); err != nil {
		return Output{}, &Error{Kind: ErrEncode, Step: -1, Err: err}
	}

	b := img.Bounds()

	return Output{
		Data:        buf.Bytes(),
		ContentType: p.contentType,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}

// checkSource reads only the image header and rejects sources whose decoded
// size would exceed the configured bounds.
func (p *Processor) checkSource(src []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return err
	}

	if cfg.Width > p.maxSide || cfg.Height > p.maxSide ||
		int64(cfg.Width)*int64(cfg.Height) > p.maxPixels {
		return fmt.Errorf("%w: %dx%d", ErrSourceTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// apply executes a single transform.
func (p *Processor) apply(img image.Image, t spec.Transform) (image.Image, error) {
	switch t := t.(type) {
	case spec.Resize:
		return resize(img, t)
	case spec.Watermark:
		return imaging.Overlay(img, p.watermark, image.Pt(int(t.X), int(t.Y)), p.opacity), nil
	case spec.Filter:
		return applyFilter(img, t.Kind)
	case spec.Crop:
		return crop(img, t)
	case spec.FlipH:
		return imaging.FlipH(img), nil
	case spec.FlipV:
		return imaging.FlipV(img), nil
	case spec.Contrast:
		return imaging.AdjustContrast(img, float64(t.Percent)), nil
	case nil:
		return nil, errors.New("nil transform")
	default:
		return nil, fmt.Errorf("unsupported transform %T", t)
	}
}

// resize rescales to exactly the requested size; aspect ratio is not kept.
func resize(img image.Image, r spec.Resize) (image.Image, error) {
	if r.Width == 0 || r.Height == 0 || r.Width > spec.MaxDimension || r.Height > spec.MaxDimension {
		return nil, fmt.Errorf("invalid size %dx%d", r.Width, r.Height)
	}

	filter, ok := resampleFilters[r.Filter]
	if !ok {
		return nil, fmt.Errorf("unknown resample filter %d", r.Filter)
	}

	return imaging.Resize(img, int(r.Width), int(r.Height), filter), nil
}

func crop(img image.Image, c spec.Crop) (image.Image, error) {
	b := img.Bounds()
	rect := image.Rect(int(c.X1), int(c.Y1), int(c.X2), int(c.Y2)).Add(b.Min)

	if rect.Intersect(b).Empty() {
		return nil, fmt.Errorf("crop %v is outside the %dx%d image", rect, b.Dx(), b.Dy())
	}

	return imaging.Crop(img, rect), nil
}
