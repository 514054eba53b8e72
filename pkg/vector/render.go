package vector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/matzehuels/imgembed/pkg/errors"
)

// Renderer draws SVG markup onto a destination image. The markup's viewBox
// is fitted into dst's bounds preserving its aspect ratio, centred.
type Renderer interface {
	Draw(ctx context.Context, markup []byte, dst draw.Image) error
}

// Renderer names accepted by [NewRenderer].
const (
	RendererOKSVG = "oksvg"
	RendererRSVG  = "rsvg"
)

// NewRenderer returns the renderer with the given name; empty selects oksvg.
func NewRenderer(name string) (Renderer, error) {
	switch strings.ToLower(name) {
	case "", RendererOKSVG:
		return OKSVGRenderer{}, nil
	case RendererRSVG:
		return RSVGRenderer{}, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown renderer %q (valid: %s, %s)", name, RendererOKSVG, RendererRSVG)
}

// OKSVGRenderer renders in-process with srwiley/oksvg. Unsupported elements
// are skipped rather than failing the whole document.
type OKSVGRenderer struct {
	Strict bool
}

// Draw implements Renderer.
func (r OKSVGRenderer) Draw(ctx context.Context, markup []byte, dst draw.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mode := oksvg.IgnoreErrorMode
	if r.Strict {
		mode = oksvg.StrictErrorMode
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(markup), mode)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRender, err, "parse svg")
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		return errors.New(errors.ErrCodeRender, "svg has an empty viewBox")
	}

	b := dst.Bounds()
	x, y, w, h := fitInto(icon.ViewBox.W, icon.ViewBox.H, float64(b.Dx()), float64(b.Dy()))
	icon.SetTarget(float64(b.Min.X)+x, float64(b.Min.Y)+y, w, h)

	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), dst, b)
	dasher := rasterx.NewDasher(b.Dx(), b.Dy(), scanner)
	icon.Draw(dasher, 1.0)
	return nil
}

// RSVGRenderer shells out to rsvg-convert from librsvg, which supports CSS
// and text layout that oksvg does not.
type RSVGRenderer struct{}

// Draw implements Renderer.
func (RSVGRenderer) Draw(ctx context.Context, markup []byte, dst draw.Image) error {
	b := dst.Bounds()
	out, err := rsvgConvert(ctx, markup, "png",
		"-w", fmt.Sprint(b.Dx()),
		"-h", fmt.Sprint(b.Dy()),
		"--keep-aspect-ratio",
	)
	if err != nil {
		return err
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return errors.Wrap(errors.ErrCodeRender, err, "decode rsvg-convert output")
	}

	ib := img.Bounds()
	off := image.Pt((b.Dx()-ib.Dx())/2, (b.Dy()-ib.Dy())/2)
	draw.Draw(dst, ib.Sub(ib.Min).Add(b.Min).Add(off), img, ib.Min, draw.Over)
	return nil
}

// rsvgConvert runs rsvg-convert with svg on stdin.
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func rsvgConvert(ctx context.Context, svg []byte, format string, extraArgs ...string) ([]byte, error) {
	if _, err := exec.LookPath("rsvg-convert"); err != nil {
		return nil, errors.New(errors.ErrCodeUnsupported,
			"%s rendering requires librsvg. Install with:\n  macOS:  brew install librsvg\n  Linux:  apt install librsvg2-bin", format)
	}

	args := append([]string{"-f", format}, extraArgs...)
	cmd := exec.CommandContext(ctx, "rsvg-convert", args...)
	cmd.Stdin = bytes.NewReader(svg)

	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRender, err, "rsvg-convert: %s", strings.TrimSpace(errBuf.String()))
	}
	return out.Bytes(), nil
}

// fitInto places a w×h box inside a bw×bh area at uniform scale, centred.
func fitInto(w, h, bw, bh float64) (x, y, tw, th float64) {
	s := min(bw/w, bh/h)
	tw, th = w*s, h*s
	return (bw - tw) / 2, (bh - th) / 2, tw, th
}
