package spec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Version is the current binary layout. It is the first byte of every payload.
const Version byte = 1

// Per-variant payload sizes, excluding the tag byte.
var payloadSize = map[byte]int{
	tagResize:    9,
	tagWatermark: 8,
	tagFilter:    1,
	tagCrop:      16,
	tagFlipH:     0,
	tagFlipV:     0,
	tagContrast:  4,
}

var encoding = base64.RawURLEncoding.Strict()

// Encode serializes p into a string safe for a single URL path segment.
//
// The payload is a version byte followed by one tagged record per transform;
// numeric fields are fixed width and big-endian. The result uses the unpadded
// base64url alphabet. Encode does not validate p; use Pipeline.Validate for
// user-supplied pipelines.
func Encode(p Pipeline) string {
	buf := make([]byte, 1, 1+len(p)*10)
	buf[0] = Version

	for i, t := range p {
		if t == nil {
			panic(fmt.Sprintf("spec: nil transform at index %d", i))
		}
		buf = append(buf, t.tag())

		switch t := t.(type) {
		case Resize:
			buf = binary.BigEndian.AppendUint32(buf, t.Width)
			buf = binary.BigEndian.AppendUint32(buf, t.Height)
			buf = append(buf, byte(t.Filter))
		case Watermark:
			buf = binary.BigEndian.AppendUint32(buf, uint32(t.X))
			buf = binary.BigEndian.AppendUint32(buf, uint32(t.Y))
		case Filter:
			buf = append(buf, byte(t.Kind))
		case Crop:
			buf = binary.BigEndian.AppendUint32(buf, t.X1)
			buf = binary.BigEndian.AppendUint32(buf, t.Y1)
			buf = binary.BigEndian.AppendUint32(buf, t.X2)
			buf = binary.BigEndian.AppendUint32(buf, t.Y2)
		case FlipH, FlipV:
		case Contrast:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(t.Percent))
		default:
			panic(fmt.Sprintf("spec: unhandled transform %T", t))
		}
	}

	return encoding.EncodeToString(buf)
}

// Decode parses a string produced by Encode. It either returns the whole
// pipeline or a *DecodeError; partial pipelines are never returned.
func Decode(s string) (Pipeline, error) {
	if s == "" {
		return nil, &DecodeError{Kind: ErrMalformedEncoding, Err: fmt.Errorf("empty spec")}
	}

	buf, err := encoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Kind: ErrMalformedEncoding, Err: err}
	}
	if len(buf) == 0 {
		return nil, &DecodeError{Kind: ErrMalformedEncoding, Err: fmt.Errorf("empty payload")}
	}
	if buf[0] != Version {
		return nil, &DecodeError{Kind: ErrMalformedEncoding, Err: fmt.Errorf("unsupported version %d", buf[0])}
	}

	p := Pipeline{}
	for rest := buf[1:]; len(rest) > 0; {
		tag := rest[0]
		size, ok := payloadSize[tag]
		if !ok {
			return nil, &DecodeError{Kind: ErrUnknownVariant, Tag: tag}
		}
		if len(rest)-1 < size {
			return nil, &DecodeError{Kind: ErrTruncated, Tag: tag}
		}

		t := decodeTransform(tag, rest[1:1+size])
		if err := t.validate(); err != nil {
			return nil, err
		}

		p = append(p, t)
		rest = rest[1+size:]
	}

	return p, nil
}

// decodeTransform builds the variant for tag from exactly payloadSize[tag] bytes.
func decodeTransform(tag byte, b []byte) Transform {
	u32 := func(i int) uint32 { return binary.BigEndian.Uint32(b[i:]) }

	switch tag {
	case tagResize:
		return Resize{Width: u32(0), Height: u32(4), Filter: ResampleFilter(b[8])}
	case tagWatermark:
		return Watermark{X: int32(u32(0)), Y: int32(u32(4))}
	case tagFilter:
		return Filter{Kind: FilterKind(b[0])}
	case tagCrop:
		return Crop{X1: u32(0), Y1: u32(4), X2: u32(8), Y2: u32(12)}
	case tagFlipH:
		return FlipH{}
	case tagFlipV:
		return FlipV{}
	case tagContrast:
		return Contrast{Percent: math.Float32frombits(u32(0))}
	default:
		panic(fmt.Sprintf("spec: tag %d has a size but no decoder", tag))
	}
}
