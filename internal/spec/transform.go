package spec

import (
	"math"
)

// MaxDimension bounds resize targets and crop coordinates.
const MaxDimension = 10000

// Wire tags of the transform variants. New variants get new tags; existing
// tags are never reused.
const (
	tagResize    byte = 1
	tagWatermark byte = 2
	tagFilter    byte = 3
	tagCrop      byte = 4
	tagFlipH     byte = 5
	tagFlipV     byte = 6
	tagContrast  byte = 7
)

// ResampleFilter selects the kernel used by Resize.
type ResampleFilter uint8

const (
	Nearest ResampleFilter = iota + 1
	Linear
	CatmullRom
	Gaussian
	Lanczos
	Box
)

var resampleFilterNames = map[ResampleFilter]string{
	Nearest:    "nearest",
	Linear:     "linear",
	CatmullRom: "catmull-rom",
	Gaussian:   "gaussian",
	Lanczos:    "lanczos",
	Box:        "box",
}

// Valid reports whether f is a known kernel.
func (f ResampleFilter) Valid() bool {
	_, ok := resampleFilterNames[f]
	return ok
}

func (f ResampleFilter) String() string {
	if name, ok := resampleFilterNames[f]; ok {
		return name
	}
	return "unknown"
}

// FilterKind names a pixel-mapping preset.
type FilterKind uint8

const (
	Oceanic FilterKind = iota + 1
	Islands
	Marine
	Grayscale
	Sepia
	Invert
)

var filterKindNames = map[FilterKind]string{
	Oceanic:   "oceanic",
	Islands:   "islands",
	Marine:    "marine",
	Grayscale: "grayscale",
	Sepia:     "sepia",
	Invert:    "invert",
}

// Valid reports whether k is a known preset.
func (k FilterKind) Valid() bool {
	_, ok := filterKindNames[k]
	return ok
}

func (k FilterKind) String() string {
	if name, ok := filterKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Transform is a single pipeline step. The set of implementations is closed:
// Resize, Watermark, Filter, Crop, FlipH, FlipV and Contrast.
type Transform interface {
	tag() byte
	validate() error
}

// Resize scales the image to exactly Width x Height.
type Resize struct {
	Width  uint32
	Height uint32
	Filter ResampleFilter
}

// Watermark overlays the configured watermark asset with its top-left corner at (X, Y).
type Watermark struct {
	X int32
	Y int32
}

// Filter applies a named preset to every pixel.
type Filter struct {
	Kind FilterKind
}

// Crop keeps the rectangle [X1,X2) x [Y1,Y2).
type Crop struct {
	X1, Y1, X2, Y2 uint32
}

// FlipH mirrors the image horizontally.
type FlipH struct{}

// FlipV mirrors the image vertically.
type FlipV struct{}

// Contrast adjusts contrast by Percent, in the range [-100, 100].
type Contrast struct {
	Percent float32
}

func (Resize) tag() byte    { return tagResize }
func (Watermark) tag() byte { return tagWatermark }
func (Filter) tag() byte    { return tagFilter }
func (Crop) tag() byte      { return tagCrop }
func (FlipH) tag() byte     { return tagFlipH }
func (FlipV) tag() byte     { return tagFlipV }
func (Contrast) tag() byte  { return tagContrast }

func (r Resize) validate() error {
	if err := checkDimension("resize.width", r.Width); err != nil {
		return err
	}
	if err := checkDimension("resize.height", r.Height); err != nil {
		return err
	}
	if !r.Filter.Valid() {
		return invalidField(tagResize, "resize.filter", int64(r.Filter))
	}
	return nil
}

func (Watermark) validate() error { return nil }

func (f Filter) validate() error {
	if !f.Kind.Valid() {
		return invalidField(tagFilter, "filter.kind", int64(f.Kind))
	}
	return nil
}

func (c Crop) validate() error {
	for _, v := range []struct {
		name  string
		value uint32
	}{{"crop.x1", c.X1}, {"crop.y1", c.Y1}, {"crop.x2", c.X2}, {"crop.y2", c.Y2}} {
		if v.value > MaxDimension {
			return invalidField(tagCrop, v.name, int64(v.value))
		}
	}
	if c.X2 <= c.X1 {
		return invalidField(tagCrop, "crop.x2", int64(c.X2))
	}
	if c.Y2 <= c.Y1 {
		return invalidField(tagCrop, "crop.y2", int64(c.Y2))
	}
	return nil
}

func (FlipH) validate() error { return nil }
func (FlipV) validate() error { return nil }

func (c Contrast) validate() error {
	p := float64(c.Percent)
	if math.IsNaN(p) || p < -100 || p > 100 {
		return invalidField(tagContrast, "contrast.percent", c.Percent)
	}
	return nil
}

func checkDimension(field string, v uint32) error {
	if v == 0 || v > MaxDimension {
		return invalidField(tagResize, field, int64(v))
	}
	return nil
}

// Pipeline is an ordered list of transforms applied left to right.
// The empty pipeline is the identity.
type Pipeline []Transform

// Validate checks every step's fields against their domains.
func (p Pipeline) Validate() error {
	for _, t := range p {
		if t == nil {
			return &DecodeError{Kind: ErrUnknownVariant}
		}
		if err := t.validate(); err != nil {
			return err
		}
	}
	return nil
}

// String returns the URL-safe encoding of p.
func (p Pipeline) String() string {
	return Encode(p)
}
