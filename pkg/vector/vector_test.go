package vector

import (
	"bytes"
	"context"
	"image"
	"math"
	"strings"
	"testing"

	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/media"
)

const rectSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100" viewBox="0 0 200 100" style="max-width:100%">` +
	`<rect x="50" y="20" width="40" height="30" fill="black"/></svg>`

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestSource(t *testing.T) {
	ctx := context.Background()

	t.Run("literal", func(t *testing.T) {
		src := Literal("<svg/>", "pie")
		doc, err := src.Resolve(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if doc.DiagramType != "pie" || src.Identity() != "pie:<svg/>" || src.IsPending() {
			t.Errorf("unexpected literal %+v", doc)
		}
		if Literal("<svg/>", "").Identity() == src.Identity() {
			t.Error("diagram type should be part of the literal identity")
		}
	})

	t.Run("pending runs", func(t *testing.T) {
		calls := 0
		src := Pending("id", func(context.Context) (*Document, error) {
			calls++
			return &Document{Markup: "<svg/>", DiagramType: "mindmap"}, nil
		})
		if !src.IsPending() || src.Identity() != "id" {
			t.Error("expected pending source with identity")
		}
		if _, err := src.Resolve(ctx); err != nil {
			t.Fatal(err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("pending yields nothing", func(t *testing.T) {
		src := Pending("id", func(context.Context) (*Document, error) { return nil, nil })
		if _, err := src.Resolve(ctx); !errors.Is(err, errors.ErrCodeUnresolvable) {
			t.Errorf("err = %v, want UNRESOLVABLE", err)
		}
	})

	t.Run("pending fails", func(t *testing.T) {
		src := Pending("id", func(context.Context) (*Document, error) { return nil, context.DeadlineExceeded })
		if _, err := src.Resolve(ctx); !errors.Is(err, errors.ErrCodeRender) {
			t.Errorf("err = %v, want RENDER_ERROR", err)
		}
	})

	t.Run("zero value", func(t *testing.T) {
		if _, err := (Source{}).Resolve(ctx); !errors.Is(err, errors.ErrCodeUnresolvable) {
			t.Errorf("err = %v, want UNRESOLVABLE", err)
		}
	})
}

func TestFixGeneratedSVG(t *testing.T) {
	pie := `<svg><style>#m .pieTitleText{text-anchor:middle;font-size:20px;fill:#333;}</style>` +
		`<text x="200" y="25" class="pieTitleText">Pets</text></svg>`

	got := FixGeneratedSVG(pie, "pie")
	if strings.Contains(got, "text-anchor:middle") {
		t.Error("text-anchor declaration should be removed")
	}
	// 4 glyphs * 20px * 0.6 / 2 = 24
	if !strings.Contains(got, `x="176"`) {
		t.Errorf("title x not shifted: %s", got)
	}
	if !strings.Contains(got, "font-size:20px") {
		t.Error("other declarations must be kept")
	}

	if other := FixGeneratedSVG(pie, "flowchart"); other != pie {
		t.Error("non-pie markup must pass through unchanged")
	}
	plain := `<svg><text x="10">a</text></svg>`
	if got := FixGeneratedSVG(plain, "pie"); got != plain {
		t.Error("pie markup without the quirk must pass through unchanged")
	}
}

func TestParseLength(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"100", 100},
		{"100px", 100},
		{"72pt", 96},
		{"1in", 96},
		{"2.54cm", 96},
		{"50%", 300},
		{"", 0},
		{"auto", 0},
		{"10furlong", 0},
	}
	for _, tt := range tests {
		if got := parseLength(tt.in, 600); !near(got, tt.want, 1e-9) {
			t.Errorf("parseLength(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRootSize(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		w, h   float64
	}{
		{"explicit", `<svg width="20" height="10"/>`, 20, 10},
		{"viewBox only", `<svg viewBox="0 0 40 30"/>`, 40, 30},
		{"width and viewBox", `<svg width="80" viewBox="0 0 40 30"/>`, 80, 60},
		{"nothing", `<svg/>`, defaultWidth, defaultHeight},
		{"xml declaration", `<?xml version="1.0"?><!-- c --><svg width="5" height="6"/>`, 5, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseRoot(tt.markup, 600, 900)
			if err != nil {
				t.Fatal(err)
			}
			if w, h := r.size(); w != tt.w || h != tt.h {
				t.Errorf("size = %vx%v, want %vx%v", w, h, tt.w, tt.h)
			}
		})
	}

	if _, err := parseRoot(`<html><svg/></html>`, 1, 1); !errors.Is(err, errors.ErrCodeRender) {
		t.Errorf("non-svg root: err = %v", err)
	}
	if _, err := parseRoot(``, 1, 1); !errors.Is(err, errors.ErrCodeRender) {
		t.Errorf("empty: err = %v", err)
	}
}

func TestAttrRewrite(t *testing.T) {
	tag := `<svg width="1" style="a:b" height='2'>`
	tag = setAttr(tag, "width", "10")
	tag = setAttr(tag, "height", "20")
	tag = setAttr(tag, "viewBox", "0 0 1 1")
	tag = removeAttr(tag, "style")

	want := `<svg width="10" height="20" viewBox="0 0 1 1">`
	if tag != want {
		t.Errorf("got %s, want %s", tag, want)
	}

	if got := setAttr(`<svg/>`, "width", "3"); got != `<svg width="3"/>` {
		t.Errorf("self-closing: got %s", got)
	}
}

func TestCrop(t *testing.T) {
	m := NewMeasurer(nil, 6.3*96, 9.7*96)
	c, err := m.Crop(context.Background(), rectSVG)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}

	r, err := parseRoot(c.Markup, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	vb := r.ViewBox
	if !near(vb.X, 46, 1) || !near(vb.Y, 16, 1) || !near(vb.W, 48, 1.5) || !near(vb.H, 38, 1.5) {
		t.Errorf("viewBox = %+v, want about 46 16 48 38", vb)
	}
	if !near(c.Width, vb.W, 1e-9) || !near(c.Height, vb.H, 1e-9) {
		t.Errorf("declared size %vx%v should equal cropped box", c.Width, c.Height)
	}
	if strings.Contains(c.Markup, "style=") {
		t.Error("root style should be removed")
	}
}

func TestCropCapsAtDeclaredSize(t *testing.T) {
	// Content spills over the declared 20x20 box; the declared size is kept.
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="20" height="20" viewBox="0 0 100 100">` +
		`<rect x="0" y="0" width="100" height="100" fill="red"/></svg>`
	c, err := NewMeasurer(nil, 600, 900).Crop(context.Background(), svg)
	if err != nil {
		t.Fatal(err)
	}
	if c.Width != 20 || c.Height != 20 {
		t.Errorf("size = %vx%v, want 20x20", c.Width, c.Height)
	}
}

func TestCropEmpty(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="30" height="10"></svg>`
	c, err := NewMeasurer(nil, 600, 900).Crop(context.Background(), svg)
	if err != nil {
		t.Fatal(err)
	}
	if c.Width != 30 || c.Height != 10 {
		t.Errorf("got %+v", c)
	}
	if !strings.Contains(c.Markup, `viewBox="0 0 30 10"`) {
		t.Errorf("viewBox not added: %s", c.Markup)
	}
}

func TestRasterize(t *testing.T) {
	r := NewRasterizer(Config{
		Scale:      2,
		Format:     media.PNG,
		ViewportW:  6.3 * 96,
		ViewportH:  9.7 * 96,
		ExemptCrop: []string{"gantt"},
		Upscale:    []string{"mindmap"},
	})
	ctx := context.Background()

	t.Run("cropped", func(t *testing.T) {
		res, err := r.Rasterize(ctx, Literal(rectSVG, ""))
		if err != nil {
			t.Fatal(err)
		}
		if res.Type != media.PNG || media.Sniff(res.Data) != media.PNG {
			t.Errorf("type = %v, sniff = %v", res.Type, media.Sniff(res.Data))
		}
		if !near(res.Width, 48, 1.5) || !near(res.Height, 38, 1.5) {
			t.Errorf("size = %vx%v, want about 48x38", res.Width, res.Height)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Width != int(math.Round(res.Width*2)) || cfg.Height != int(math.Round(res.Height*2)) {
			t.Errorf("raster = %dx%d, want oversampled %vx%v", cfg.Width, cfg.Height, res.Width*2, res.Height*2)
		}
	})

	t.Run("exempt keeps declared size", func(t *testing.T) {
		res, err := r.Rasterize(ctx, Literal(rectSVG, "gantt"))
		if err != nil {
			t.Fatal(err)
		}
		if res.Width != 200 || res.Height != 100 || res.DiagramType != "gantt" {
			t.Errorf("got %vx%v type %q", res.Width, res.Height, res.DiagramType)
		}
	})

	t.Run("upscale", func(t *testing.T) {
		base, err := r.Rasterize(ctx, Literal(rectSVG, ""))
		if err != nil {
			t.Fatal(err)
		}
		res, err := r.Rasterize(ctx, Literal(rectSVG, "mindmap"))
		if err != nil {
			t.Fatal(err)
		}
		k := res.Width / base.Width
		if k < 2 || !near(k, math.Round(k), 1e-9) {
			t.Errorf("upscale factor = %v, want integer > 1", k)
		}
		if res.Width > 6.3*96 || res.Height > 9.7*96 {
			t.Errorf("upscaled %vx%v exceeds viewport", res.Width, res.Height)
		}
	})

	t.Run("unresolvable", func(t *testing.T) {
		_, err := r.Rasterize(ctx, Pending("x", func(context.Context) (*Document, error) { return nil, nil }))
		if !errors.Is(err, errors.ErrCodeUnresolvable) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("invalid markup", func(t *testing.T) {
		_, err := r.Rasterize(ctx, Literal("<div>nope</div>", ""))
		if !errors.Is(err, errors.ErrCodeRender) {
			t.Errorf("err = %v, want RENDER_ERROR", err)
		}
	})
}

func TestUpscaleFactor(t *testing.T) {
	m := NewMeasurer(nil, 605, 931)
	tests := []struct {
		w, h float64
		want float64
	}{
		{100, 50, 6},
		{700, 10, 1},
		{605, 931, 1},
		{0, 10, 1},
	}
	for _, tt := range tests {
		if got := upscaleFactor(tt.w, tt.h, m); got != tt.want {
			t.Errorf("upscaleFactor(%v, %v) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<?xml version="1.0"?><svg width="62pt" height="116pt" viewBox="0.00 0.00 62.00 116.00" xmlns="http://www.w3.org/2000/svg"><g/></svg>`)
	out := string(normalizeViewBox(in))
	if !strings.Contains(out, `viewBox="0 0 62.00 116.00" width="62" height="116"`) {
		t.Errorf("root not normalised: %s", out)
	}
	if !strings.HasSuffix(out, "<g/></svg>") {
		t.Errorf("body changed: %s", out)
	}
}

func TestNewRenderer(t *testing.T) {
	if _, err := NewRenderer(""); err != nil {
		t.Error(err)
	}
	if _, err := NewRenderer("rsvg"); err != nil {
		t.Error(err)
	}
	if _, err := NewRenderer("cairo"); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
}
