package spec

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		p    Pipeline
	}{
		{name: "empty", p: Pipeline{}},
		{name: "sample", p: Pipeline{
			Resize{Width: 500, Height: 800, Filter: CatmullRom},
			Watermark{X: 20, Y: 20},
			Filter{Kind: Marine},
		}},
		{name: "negative watermark", p: Pipeline{Watermark{X: -40, Y: math.MinInt32}}},
		{name: "max watermark", p: Pipeline{Watermark{X: math.MaxInt32, Y: 0}}},
		{name: "bounds", p: Pipeline{
			Resize{Width: 1, Height: MaxDimension, Filter: Nearest},
			Resize{Width: MaxDimension, Height: 1, Filter: Box},
		}},
		{name: "every variant", p: Pipeline{
			Crop{X1: 10, Y1: 20, X2: 300, Y2: 400},
			FlipH{},
			FlipV{},
			Contrast{Percent: -12.5},
			Filter{Kind: Oceanic},
			Filter{Kind: Islands},
			Filter{Kind: Grayscale},
			Filter{Kind: Sepia},
			Filter{Kind: Invert},
			Resize{Width: 64, Height: 48, Filter: Lanczos},
			Resize{Width: 64, Height: 48, Filter: Gaussian},
			Resize{Width: 64, Height: 48, Filter: Linear},
		}},
		{name: "repeated steps keep order", p: Pipeline{FlipV{}, FlipH{}, FlipV{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.p.Validate())

			s := Encode(tt.p)
			got, err := Decode(s)
			require.NoError(t, err)
			assert.Equal(t, tt.p, got)
			assert.Equal(t, s, got.String())
		})
	}
}

func TestEncodeIsURLSafe(t *testing.T) {
	p := Pipeline{
		Resize{Width: 0xFFFF, Height: 0xFBFF, Filter: CatmullRom},
		Watermark{X: -1, Y: -2},
		Contrast{Percent: 99.9},
	}
	s := Encode(p)

	for _, r := range s {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
		assert.Truef(t, ok, "unexpected character %q in %s", r, s)
	}
}

func TestEncodeEmpty(t *testing.T) {
	assert.Equal(t, "AQ", Encode(nil))
	assert.Equal(t, "AQ", Encode(Pipeline{}))
}

func payload(b ...byte) string {
	return encoding.EncodeToString(append([]byte{Version}, b...))
}

func resizePayload(w, h uint32, filter byte) []byte {
	b := []byte{tagResize}
	b = binary.BigEndian.AppendUint32(b, w)
	b = binary.BigEndian.AppendUint32(b, h)
	return append(b, filter)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		kind  error
		check func(t *testing.T, e *DecodeError)
	}{
		{name: "empty string", in: "", kind: ErrMalformedEncoding},
		{name: "bad alphabet", in: "AQ+/", kind: ErrMalformedEncoding},
		{name: "padding", in: "AQ==", kind: ErrMalformedEncoding},
		{name: "bad length", in: "A", kind: ErrMalformedEncoding},
		{name: "unsupported version", in: encoding.EncodeToString([]byte{2}), kind: ErrMalformedEncoding},
		{
			name: "unknown variant", in: payload(99), kind: ErrUnknownVariant,
			check: func(t *testing.T, e *DecodeError) { assert.Equal(t, byte(99), e.Tag) },
		},
		{name: "zero tag", in: payload(0), kind: ErrUnknownVariant},
		{
			name: "zero width", in: payload(resizePayload(0, 10, byte(CatmullRom))...), kind: ErrInvalidField,
			check: func(t *testing.T, e *DecodeError) {
				assert.Equal(t, "resize.width", e.Field)
				assert.Equal(t, "0", e.Value)
			},
		},
		{
			name: "zero height", in: payload(resizePayload(10, 0, byte(CatmullRom))...), kind: ErrInvalidField,
			check: func(t *testing.T, e *DecodeError) { assert.Equal(t, "resize.height", e.Field) },
		},
		{name: "huge width", in: payload(resizePayload(MaxDimension+1, 10, byte(Linear))...), kind: ErrInvalidField},
		{name: "unknown resample filter", in: payload(resizePayload(10, 10, 0)...), kind: ErrInvalidField},
		{
			name: "unknown filter kind", in: payload(tagFilter, 42), kind: ErrInvalidField,
			check: func(t *testing.T, e *DecodeError) { assert.Equal(t, "filter.kind", e.Field) },
		},
		{name: "truncated resize", in: payload(resizePayload(10, 10, 1)[:6]...), kind: ErrTruncated},
		{name: "truncated filter", in: payload(tagFilter), kind: ErrTruncated},
		{name: "truncated second step", in: payload(append([]byte{tagFlipH, tagWatermark}, 0, 0, 0)...), kind: ErrTruncated},
		{
			name: "empty crop",
			in:   Encode(Pipeline{Crop{X1: 10, Y1: 0, X2: 10, Y2: 5}}),
			kind: ErrInvalidField,
		},
		{name: "contrast out of range", in: Encode(Pipeline{Contrast{Percent: 150}}), kind: ErrInvalidField},
		{name: "contrast NaN", in: Encode(Pipeline{Contrast{Percent: float32(math.NaN())}}), kind: ErrInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.in)
			require.Error(t, err)
			assert.Nil(t, p, "decode must not return a partial pipeline")
			assert.ErrorIs(t, err, tt.kind)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			if tt.check != nil {
				tt.check(t, de)
			}
		})
	}
}

func TestDecodeRejectsValidPrefixWithBadTail(t *testing.T) {
	good := Encode(Pipeline{Resize{Width: 10, Height: 10, Filter: Linear}, FlipH{}})
	raw, err := encoding.DecodeString(good)
	require.NoError(t, err)

	p, err := Decode(encoding.EncodeToString(append(raw, 77)))
	require.ErrorIs(t, err, ErrUnknownVariant)
	assert.Nil(t, p)
}

func TestDecodeErrorMessage(t *testing.T) {
	_, err := Decode(payload(resizePayload(0, 10, 1)...))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "resize.width=0"), err.Error())
}

func TestValidateNilStep(t *testing.T) {
	err := Pipeline{FlipH{}, nil}.Validate()
	assert.ErrorIs(t, err, ErrUnknownVariant)
}
