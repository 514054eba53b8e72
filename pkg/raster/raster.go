// Package raster normalizes raster image bytes into an embeddable format.
//
// Bytes already in a natively supported format (png, jpg, gif, bmp) pass
// through untouched; only their intrinsic size is read. Anything else that
// the registered decoders understand (webp, tiff, ...) is decoded, drawn
// onto a surface at the oversampling scale and re-encoded in the fallback
// format. The reported logical size divides the scale back out, so the
// scale only affects fidelity, never the declared output size.
package raster

import (
	"bytes"
	"context"
	"image"
	"math"

	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/media"
)

// Result is a normalized raster.
type Result struct {
	Type   media.Type
	Data   []byte
	Width  float64 // logical pixels
	Height float64 // logical pixels
}

// Normalizer re-encodes unsupported rasters.
type Normalizer struct {
	Surface  Surface
	Scale    float64
	Fallback media.Type
}

// NewNormalizer returns a Normalizer with the given surface and settings.
// A nil surface selects an ImagingSurface on white.
func NewNormalizer(s Surface, scale float64, fallback media.Type) *Normalizer {
	if s == nil {
		s = NewImagingSurface("")
	}
	if scale <= 0 {
		scale = 1
	}
	if !media.IsFallbackFormat(fallback) {
		fallback = media.PNG
	}
	return &Normalizer{Surface: s, Scale: scale, Fallback: fallback}
}

// Normalize returns data in an embeddable format. declared is the type
// reported by the source (data URL subtype or sniffed magic bytes); when it
// is Unknown the bytes are sniffed again before deciding.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, declared media.Type) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(data) == 0 {
		return Result{}, errors.New(errors.ErrCodeDecode, "empty image data")
	}

	typ := declared
	if typ == media.Unknown {
		typ = media.Sniff(data)
	}

	if media.IsSupported(typ) {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return Result{}, errors.Wrap(errors.ErrCodeDecode, err, "read %s header", typ)
		}
		return Result{
			Type:   typ,
			Data:   data,
			Width:  float64(cfg.Width),
			Height: float64(cfg.Height),
		}, nil
	}

	return n.reencode(data)
}

func (n *Normalizer) reencode(data []byte) (Result, error) {
	src, err := n.Surface.Decode(data)
	if err != nil {
		return Result{}, err
	}
	b := src.Bounds()
	w := int(math.Round(float64(b.Dx()) * n.Scale))
	h := int(math.Round(float64(b.Dy()) * n.Scale))
	if w <= 0 || h <= 0 {
		return Result{}, errors.New(errors.ErrCodeDecode, "image has no pixels")
	}

	surface := n.Surface.Draw(src, w, h)

	var buf bytes.Buffer
	if err := n.Surface.Encode(&buf, surface, n.Fallback); err != nil {
		return Result{}, err
	}
	sb := surface.Bounds()
	return Result{
		Type:   n.Fallback,
		Data:   buf.Bytes(),
		Width:  float64(sb.Dx()) / n.Scale,
		Height: float64(sb.Dy()) / n.Scale,
	}, nil
}
