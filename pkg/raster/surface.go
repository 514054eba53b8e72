package raster

import (
	"bytes"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/media"
)

// Surface is the 2D drawing abstraction shared by the raster normalizer and
// the vector rasterizer.
type Surface interface {
	// Decode reads any registered raster format.
	Decode(data []byte) (image.Image, error)
	// Draw resamples src onto a fresh w×h surface.
	Draw(src image.Image, w, h int) image.Image
	// Encode writes img in one of the supported formats.
	Encode(w io.Writer, img image.Image, format media.Type) error
}

// ImagingSurface implements Surface with disintegration/imaging. Formats
// without an alpha channel are flattened onto Background.
type ImagingSurface struct {
	Background  color.Color
	JPEGQuality int
}

// NewImagingSurface returns a surface flattening onto the given hex colour.
// An empty or invalid hex selects white.
func NewImagingSurface(background string) *ImagingSurface {
	return &ImagingSurface{Background: ParseColor(background), JPEGQuality: 92}
}

// ParseColor parses a #rrggbb or #rgb colour, defaulting to white.
func ParseColor(hex string) color.Color {
	if hex == "" {
		return color.White
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.White
	}
	return c
}

// Decode implements Surface.
func (s *ImagingSurface) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "decode image")
	}
	return img, nil
}

// Draw implements Surface.
func (s *ImagingSurface) Draw(src image.Image, w, h int) image.Image {
	w, h = max(w, 1), max(h, 1)
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return imaging.Clone(src)
	}
	return imaging.Resize(src, w, h, imaging.Lanczos)
}

// Encode implements Surface.
func (s *ImagingSurface) Encode(w io.Writer, img image.Image, format media.Type) error {
	var f imaging.Format
	switch format {
	case media.PNG:
		f = imaging.PNG
	case media.JPG:
		f = imaging.JPEG
		img = s.flatten(img)
	case media.GIF:
		f = imaging.GIF
	case media.BMP:
		f = imaging.BMP
		img = s.flatten(img)
	default:
		return errors.New(errors.ErrCodeUnsupported, "cannot encode %s", format)
	}

	q := s.JPEGQuality
	if q <= 0 {
		q = 92
	}
	if err := imaging.Encode(w, img, f, imaging.JPEGQuality(q)); err != nil {
		return errors.Wrap(errors.ErrCodeDecode, err, "encode %s", format)
	}
	return nil
}

func (s *ImagingSurface) flatten(img image.Image) image.Image {
	bg := s.Background
	if bg == nil {
		bg = color.White
	}
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

var _ Surface = (*ImagingSurface)(nil)
