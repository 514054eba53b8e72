package vector

import (
	"bytes"
	"context"
	"image"
	"math"
	"strings"

	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/media"
	"github.com/matzehuels/imgembed/pkg/raster"
)

// maxRasterSide bounds the oversampled surface on either axis.
const maxRasterSide = 8192

// Result is a rasterized vector document.
type Result struct {
	Type        media.Type
	Data        []byte
	Width       float64 // logical px
	Height      float64 // logical px
	DiagramType string
}

// Config configures a [Rasterizer].
type Config struct {
	Renderer Renderer
	Surface  raster.Surface
	Scale    float64
	Format   media.Type
	// Viewport is the page area in px used for measuring and for the
	// upscale limit.
	ViewportW, ViewportH float64
	// ExemptCrop lists diagram types that already carry a tight layout.
	ExemptCrop []string
	// Upscale lists diagram types that may be enlarged to fill the viewport.
	Upscale []string
}

// Rasterizer crops, fixes up and rasterizes vector documents. Create one
// per resolver; its measuring surface is shared by all calls.
type Rasterizer struct {
	renderer Renderer
	surface  raster.Surface
	measurer *Measurer
	scale    float64
	format   media.Type
	exempt   map[string]bool
	upscale  map[string]bool
}

// NewRasterizer builds a Rasterizer from cfg, filling in defaults.
func NewRasterizer(cfg Config) *Rasterizer {
	if cfg.Renderer == nil {
		cfg.Renderer = OKSVGRenderer{}
	}
	if cfg.Surface == nil {
		cfg.Surface = raster.NewImagingSurface("")
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	if !media.IsFallbackFormat(cfg.Format) {
		cfg.Format = media.PNG
	}
	return &Rasterizer{
		renderer: cfg.Renderer,
		surface:  cfg.Surface,
		measurer: NewMeasurer(cfg.Renderer, cfg.ViewportW, cfg.ViewportH),
		scale:    cfg.Scale,
		format:   cfg.Format,
		exempt:   typeSet(cfg.ExemptCrop),
		upscale:  typeSet(cfg.Upscale),
	}
}

func typeSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = true
	}
	return set
}

// Measurer returns the shared measuring surface.
func (r *Rasterizer) Measurer() *Measurer { return r.measurer }

// Rasterize resolves src and renders it to the configured format.
func (r *Rasterizer) Rasterize(ctx context.Context, src Source) (Result, error) {
	doc, err := src.Resolve(ctx)
	if err != nil {
		return Result{}, err
	}
	return r.RasterizeDocument(ctx, doc)
}

// RasterizeDocument renders an already resolved document.
func (r *Rasterizer) RasterizeDocument(ctx context.Context, doc *Document) (Result, error) {
	diagram := strings.ToLower(doc.DiagramType)
	markup := FixGeneratedSVG(doc.Markup, diagram)

	var c Cropped
	if r.exempt[diagram] {
		pw, ph := r.measurer.PageSize()
		root, err := parseRoot(markup, pw, ph)
		if err != nil {
			return Result{}, err
		}
		w, h := root.size()
		c = Cropped{Markup: ensureViewBox(markup, root.userBox()), Width: w, Height: h}
	} else {
		var err error
		if c, err = r.measurer.Crop(ctx, markup); err != nil {
			return Result{}, err
		}
	}

	w, h := c.Width, c.Height
	if r.upscale[diagram] {
		k := upscaleFactor(w, h, r.measurer)
		w, h = w*k, h*k
	}

	scale := r.scale
	if big := max(w, h) * scale; big > maxRasterSide {
		scale = maxRasterSide / max(w, h)
	}
	pw := max(int(math.Round(w*scale)), 1)
	ph := max(int(math.Round(h*scale)), 1)

	dst := image.NewRGBA(image.Rect(0, 0, pw, ph))
	if err := r.renderer.Draw(ctx, []byte(c.Markup), dst); err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeRender, err, "rasterize svg")
	}

	var buf bytes.Buffer
	if err := r.surface.Encode(&buf, dst, r.format); err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeRender, err, "encode rasterized svg")
	}

	return Result{
		Type:        r.format,
		Data:        buf.Bytes(),
		Width:       w,
		Height:      h,
		DiagramType: diagram,
	}, nil
}

// upscaleFactor is the largest integer k ≥ 1 such that a w×h box scaled by
// k still fits the viewport.
func upscaleFactor(w, h float64, m *Measurer) float64 {
	if w <= 0 || h <= 0 {
		return 1
	}
	vw, vh := m.PageSize()
	return max(1, math.Floor(min(vw/w, vh/h)))
}
