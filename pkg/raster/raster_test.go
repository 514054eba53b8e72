package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/media"
)

func fixture(t *testing.T, w, h int) *image.NRGBA {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 128})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeTIFF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNormalizePassThrough(t *testing.T) {
	data := encodePNG(t, fixture(t, 40, 20))
	n := NewNormalizer(nil, 3, media.PNG)

	res, err := n.Normalize(context.Background(), data, media.PNG)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if res.Type != media.PNG {
		t.Errorf("Type = %v, want png", res.Type)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("supported bytes should pass through unchanged")
	}
	if res.Width != 40 || res.Height != 20 {
		t.Errorf("size = %vx%v, want 40x20", res.Width, res.Height)
	}
}

func TestNormalizeReencode(t *testing.T) {
	tests := []struct {
		name     string
		fallback media.Type
		declared media.Type
	}{
		{"tiff to png", media.PNG, media.Type("tiff")},
		{"tiff to jpg", media.JPG, media.Type("tiff")},
		{"sniffed unknown to bmp", media.BMP, media.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(nil, 3, tt.fallback)
			res, err := n.Normalize(context.Background(), encodeTIFF(t, fixture(t, 10, 5)), tt.declared)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if res.Type != tt.fallback {
				t.Errorf("Type = %v, want %v", res.Type, tt.fallback)
			}
			if got := media.Sniff(res.Data); got != tt.fallback {
				t.Errorf("encoded bytes sniff as %v, want %v", got, tt.fallback)
			}
			if res.Width != 10 || res.Height != 5 {
				t.Errorf("logical size = %vx%v, want 10x5", res.Width, res.Height)
			}
			cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Width != 30 || cfg.Height != 15 {
				t.Errorf("surface = %dx%d, want 30x15", cfg.Width, cfg.Height)
			}
		})
	}
}

func TestNormalizeErrors(t *testing.T) {
	n := NewNormalizer(nil, 2, media.PNG)
	ctx := context.Background()

	if _, err := n.Normalize(ctx, nil, media.PNG); !errors.Is(err, errors.ErrCodeDecode) {
		t.Errorf("empty: err = %v, want DECODE_ERROR", err)
	}
	if _, err := n.Normalize(ctx, []byte("not an image at all"), media.Unknown); !errors.Is(err, errors.ErrCodeDecode) {
		t.Errorf("garbage: err = %v, want DECODE_ERROR", err)
	}
	if _, err := n.Normalize(ctx, []byte{0x89, 0x50, 0x4E, 0x47, 0, 0}, media.PNG); !errors.Is(err, errors.ErrCodeDecode) {
		t.Errorf("truncated png: err = %v, want DECODE_ERROR", err)
	}
}

func TestFlattenUsesBackground(t *testing.T) {
	s := NewImagingSurface("#ff0000")
	transparent := image.NewNRGBA(image.Rect(0, 0, 2, 2))

	var buf bytes.Buffer
	if err := s.Encode(&buf, transparent, media.BMP); err != nil {
		t.Fatal(err)
	}
	img, err := s.Decode(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	if r>>8 != 0xff || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("pixel = %d,%d,%d, want red", r>>8, g>>8, b>>8)
	}
}

func TestParseColor(t *testing.T) {
	if ParseColor("nope") != color.White {
		t.Error("invalid hex should fall back to white")
	}
	r, _, _, _ := ParseColor("#f00").RGBA()
	if r>>8 != 0xff {
		t.Errorf("#f00 red = %d", r>>8)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	s := NewImagingSurface("")
	err := s.Encode(&bytes.Buffer{}, fixture(t, 1, 1), media.SVG)
	if !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("err = %v, want UNSUPPORTED", err)
	}
}
