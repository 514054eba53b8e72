package vector

import (
	"context"
	"image"
	"image/draw"
	"math"
	"sync"

	"github.com/matzehuels/imgembed/pkg/errors"
)

// CropMargin is the padding, in user units, kept around the content box.
const CropMargin = 4.0

// Cropped is markup whose viewBox was tightened to its content.
type Cropped struct {
	Markup string
	Width  float64 // declared px after cropping
	Height float64
}

// Measurer renders markup onto a reusable off-screen surface the size of the
// page and finds the tight bounding box of the painted pixels. It is safe
// for concurrent use; measurements are serialized on the shared surface.
type Measurer struct {
	renderer Renderer
	pageW    float64
	pageH    float64

	mu      sync.Mutex
	surface *image.RGBA
}

// NewMeasurer returns a measurer with a pageW×pageH px surface. The surface
// is allocated on first use.
func NewMeasurer(r Renderer, pageW, pageH float64) *Measurer {
	if r == nil {
		r = OKSVGRenderer{}
	}
	if pageW <= 0 || math.IsInf(pageW, 0) {
		pageW = 6.3 * 96
	}
	if pageH <= 0 || math.IsInf(pageH, 0) {
		pageH = 9.7 * 96
	}
	return &Measurer{renderer: r, pageW: pageW, pageH: pageH}
}

// PageSize returns the measuring surface size in px.
func (m *Measurer) PageSize() (w, h float64) { return m.pageW, m.pageH }

// Crop tightens the viewBox of markup to its rendered content plus
// [CropMargin]. The declared size becomes the cropped size, capped at the
// original declared size on each axis. Markup that paints nothing is
// returned with its original size and scale 1.
func (m *Measurer) Crop(ctx context.Context, markup string) (Cropped, error) {
	r, err := parseRoot(markup, m.pageW, m.pageH)
	if err != nil {
		return Cropped{}, err
	}
	origW, origH := r.size()
	vb := r.userBox()

	box, ok, err := m.contentBox(ctx, ensureViewBox(markup, vb), vb)
	if err != nil {
		return Cropped{}, err
	}
	if !ok {
		return Cropped{Markup: ensureViewBox(markup, vb), Width: origW, Height: origH}, nil
	}

	crop := ViewBox{
		X: box.X - CropMargin,
		Y: box.Y - CropMargin,
		W: box.W + CropMargin*2,
		H: box.H + CropMargin*2,
	}
	// The declared size never grows past the original.
	finalW, finalH := crop.W, crop.H
	if origW > 0 {
		finalW = min(crop.W, origW)
	}
	if origH > 0 {
		finalH = min(crop.H, origH)
	}

	out := rewriteRoot(markup, func(tag string) string {
		tag = setAttr(tag, "viewBox", crop.String())
		tag = setAttr(tag, "width", formatFloat(finalW))
		tag = setAttr(tag, "height", formatFloat(finalH))
		return removeAttr(tag, "style")
	})

	return Cropped{
		Markup: out,
		Width:  finalW,
		Height: finalH,
	}, nil
}

// contentBox renders markup and returns the painted area in user units.
func (m *Measurer) contentBox(ctx context.Context, markup string, vb ViewBox) (ViewBox, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.surface == nil {
		m.surface = image.NewRGBA(image.Rect(0, 0, int(math.Ceil(m.pageW)), int(math.Ceil(m.pageH))))
	}
	draw.Draw(m.surface, m.surface.Bounds(), image.Transparent, image.Point{}, draw.Src)

	// Fit the user box onto the page at uniform scale and render into a
	// sub-image of exactly that size.
	_, _, tw, th := fitInto(vb.W, vb.H, m.pageW, m.pageH)
	dx, dy := max(int(math.Round(tw)), 1), max(int(math.Round(th)), 1)
	dst := m.surface.SubImage(image.Rect(0, 0, dx, dy)).(*image.RGBA)

	if err := m.renderer.Draw(ctx, []byte(markup), dst); err != nil {
		return ViewBox{}, false, errors.Wrap(errors.ErrCodeRender, err, "measure svg")
	}

	px, ok := paintedBounds(dst)
	if !ok {
		return ViewBox{}, false, nil
	}

	x0, y0, fw, _ := fitInto(vb.W, vb.H, float64(dx), float64(dy))
	s := fw / vb.W
	return ViewBox{
		X: vb.X + (float64(px.Min.X)-x0)/s,
		Y: vb.Y + (float64(px.Min.Y)-y0)/s,
		W: float64(px.Dx()) / s,
		H: float64(px.Dy()) / s,
	}, true, nil
}

// paintedBounds returns the bounding rectangle of pixels with alpha > 0.
func paintedBounds(img *image.RGBA) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x*4+3] == 0 {
				continue
			}
			px := b.Min.X + x
			minX, maxX = min(minX, px), max(maxX, px)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < minX || maxY < minY {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// ensureViewBox adds vb as the root viewBox when the markup declares none,
// so every renderer maps the same user box.
func ensureViewBox(markup string, vb ViewBox) string {
	return rewriteRoot(markup, func(tag string) string {
		if attrRe("viewBox").MatchString(tag) {
			return tag
		}
		return setAttr(tag, "viewBox", vb.String())
	})
}
