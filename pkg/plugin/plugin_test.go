package plugin

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/imgembed/pkg/cache"
	"github.com/matzehuels/imgembed/pkg/fetch"
	"github.com/matzehuels/imgembed/pkg/media"
	"github.com/matzehuels/imgembed/pkg/pipeline"
	"github.com/matzehuels/imgembed/pkg/vector"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func dataURL(b []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
}

type stubRasterizer struct{}

func (stubRasterizer) Rasterize(ctx context.Context, src vector.Source) (vector.Result, error) {
	doc, err := src.Resolve(ctx)
	if err != nil {
		return vector.Result{}, err
	}
	return vector.Result{Type: media.PNG, Data: []byte(doc.Markup), Width: 1000, Height: 100}, nil
}

func newPlugin(t *testing.T, opts pipeline.Options, store cache.Cache, options ...pipeline.RunnerOption) *Plugin {
	t.Helper()
	if opts.MaxW == 0 {
		opts.MaxW, opts.MaxH = 6, 9
	}
	p, err := New(opts, store, options...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPreprocess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/logo.png":
			w.Write(pngBytes(t, 30, 15))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := fetch.NewClient(fetch.Options{HTTPClient: server.Client()})
	if err != nil {
		t.Fatal(err)
	}
	p := newPlugin(t, pipeline.Options{}, nil, pipeline.WithFetcher(client), pipeline.WithRasterizer(stubRasterizer{}))

	inline := &Node{Type: TypeImage, URL: dataURL(pngBytes(t, 40, 20))}
	remote := &Node{Type: TypeImage, URL: server.URL + "/logo.png", Alt: "Logo"}
	byRef := &Node{Type: TypeImageReference, Identifier: "logo"}
	missing := &Node{Type: TypeImage, URL: server.URL + "/nope.png"}
	undefined := &Node{Type: TypeImageReference, Identifier: "ghost"}
	diagram := &Node{Type: TypeSVG, Value: "<svg/>", Lang: "flowchart"}
	para := &Node{Type: "paragraph", Children: []*Node{inline, remote}}
	root := &Node{Type: "root", Children: []*Node{para, byRef, missing, undefined, diagram}}

	defs := Definitions{"LOGO": server.URL + "/logo.png"}
	if err := p.Preprocess(context.Background(), root, defs); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	if para.Data != nil || root.Data != nil {
		t.Error("non-image nodes must not receive data")
	}
	tests := []struct {
		name     string
		node     *Node
		w, h     float64
		fallback bool
		alt      string
	}{
		{"inline", inline, 40, 20, false, ""},
		{"remote", remote, 30, 15, false, "Logo"},
		{"reference", byRef, 30, 15, false, "logo.png"},
		{"missing", missing, pipeline.SyntheticSize, pipeline.SyntheticSize, true, "nope.png"},
		{"undefined", undefined, pipeline.SyntheticSize, pipeline.SyntheticSize, true, ""},
		{"diagram", diagram, 576, 57.6, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.node.Data
			if d == nil {
				t.Fatal("no data attached")
			}
			if math.Abs(d.Width-tt.w) > 1e-6 || math.Abs(d.Height-tt.h) > 1e-6 || d.Fallback != tt.fallback {
				t.Errorf("data = %vx%v fallback=%v, want %vx%v fallback=%v", d.Width, d.Height, d.Fallback, tt.w, tt.h, tt.fallback)
			}
			if d.AltText == nil || d.AltText.Description != tt.alt {
				t.Errorf("alt = %+v, want %q", d.AltText, tt.alt)
			}
			if d.RunID == "" {
				t.Error("missing run id")
			}
		})
	}

	// logo.png is fetched once for the two nodes that share it.
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2 (logo once, nope once)", got)
	}
}

func TestPreprocessNodeDataWins(t *testing.T) {
	p := newPlugin(t, pipeline.Options{}, nil)
	n := &Node{
		Type: TypeImage,
		URL:  dataURL(pngBytes(t, 40, 20)),
		Data: &ImageData{Width: 12, AltText: &AltText{Title: "kept"}},
	}
	if err := p.Preprocess(context.Background(), n, nil); err != nil {
		t.Fatal(err)
	}
	if n.Data.Width != 12 || n.Data.Height != 20 {
		t.Errorf("size = %vx%v, want 12x20", n.Data.Width, n.Data.Height)
	}
	if n.Data.AltText.Title != "kept" || n.Data.Type != media.PNG {
		t.Errorf("data = %+v", n.Data)
	}
}

// barrierFetcher blocks every fetch until want fetches are in flight.
type barrierFetcher struct {
	want    int32
	started atomic.Int32
	peak    atomic.Int32
	active  atomic.Int32
	ready   chan struct{}
	body    []byte
}

func newBarrierFetcher(t *testing.T, want int) *barrierFetcher {
	return &barrierFetcher{want: int32(want), ready: make(chan struct{}), body: pngBytes(t, 8, 8)}
}

func (f *barrierFetcher) Fetch(ctx context.Context, src string) (*fetch.Response, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.started.Add(1) == f.want {
		close(f.ready)
	}
	select {
	case <-f.ready:
		return &fetch.Response{Body: f.body, URL: src}, nil
	case <-time.After(2 * time.Second):
		return nil, fmt.Errorf("only %d of %d fetches started", f.started.Load(), f.want)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func imageTree(n int) (*Node, []*Node) {
	root := &Node{Type: "root"}
	for i := range n {
		root.Children = append(root.Children, &Node{Type: TypeImage, URL: fmt.Sprintf("https://example.com/%d.png", i)})
	}
	return root, root.Children
}

func TestPreprocessLaunchesAllAtOnce(t *testing.T) {
	const count = 40
	f := newBarrierFetcher(t, count)
	p := newPlugin(t, pipeline.Options{}, nil, pipeline.WithFetcher(f))

	root, nodes := imageTree(count)
	if err := p.Preprocess(context.Background(), root, nil); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	fallbacks := 0
	for _, n := range nodes {
		if n.Data == nil || n.Data.Fallback {
			fallbacks++
		}
	}
	if fallbacks > 0 {
		t.Errorf("%d of %d images fell back", fallbacks, count)
	}
}

func TestPreprocessConcurrencyCap(t *testing.T) {
	f := newBarrierFetcher(t, 1)
	p := newPlugin(t, pipeline.Options{Concurrency: 3}, nil, pipeline.WithFetcher(f))

	root, _ := imageTree(12)
	if err := p.Preprocess(context.Background(), root, nil); err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if peak := f.peak.Load(); peak > 3 {
		t.Errorf("peak concurrent fetches = %d, want at most 3", peak)
	}
}

func TestPreprocessEmptyTree(t *testing.T) {
	p := newPlugin(t, pipeline.Options{}, nil)
	if err := p.Preprocess(context.Background(), &Node{Type: "root"}, nil); err != nil {
		t.Errorf("Preprocess: %v", err)
	}
}

func TestInline(t *testing.T) {
	p := newPlugin(t, pipeline.Options{}, nil)
	n := &Node{Type: TypeImage, Data: &ImageData{
		Type: media.PNG, Image: []byte("x"), Width: 10, Height: 5,
		AltText: &AltText{Description: "d", Name: "n", Title: "t"},
	}}

	runs := p.Inline(n, RunProps{"bold": true})
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.Type != media.PNG || r.Width != 10 || r.AltText.Name != "n" || r.Props["bold"] != true {
		t.Errorf("run = %+v", r)
	}
	if n.Type != "" {
		t.Error("Inline should clear the node type")
	}

	if runs := p.Inline(&Node{Type: TypeImage}, nil); runs != nil {
		t.Errorf("node without data: runs = %v", runs)
	}

	para := &Node{Type: "paragraph", Data: &ImageData{Type: media.PNG, Image: []byte("x")}}
	if runs := p.Inline(para, nil); runs != nil {
		t.Errorf("non-image node: runs = %v", runs)
	}
	if para.Type != "paragraph" {
		t.Error("Inline should leave non-image nodes untouched")
	}
}

func TestNewSweepsStore(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryCache()
	_ = store.Set(ctx, "img:stale", cache.Entry{Data: []byte("x"), StoredAt: time.Now().Add(-30 * 24 * time.Hour)})
	_ = store.Set(ctx, "img:fresh", cache.Entry{Data: []byte("y"), StoredAt: time.Now()})

	p, err := New(pipeline.Options{}, store)
	if err != nil {
		t.Fatal(err)
	}
	p.Close()

	if store.Len() != 1 {
		t.Errorf("store has %d entries after sweep, want 1", store.Len())
	}
}

func TestVectorSource(t *testing.T) {
	tests := []struct {
		node    *Node
		pending bool
		prefix  string
	}{
		{&Node{Type: TypeSVG, Value: "digraph { a -> b }", Lang: "dot"}, true, "graphviz:"},
		{&Node{Type: TypeSVG, Value: "graph TD; A-->B", Lang: "mermaid", Render: func(context.Context) (*vector.Document, error) {
			return &vector.Document{Markup: "<svg/>", DiagramType: "flowchart"}, nil
		}}, true, "mermaid:"},
		{&Node{Type: TypeSVG, Value: "<svg/>"}, false, ":<svg/>"},
		{&Node{Type: TypeSVG, Value: "<svg/>", Lang: "Gantt"}, false, "gantt:<svg/>"},
	}
	for _, tt := range tests {
		src := vectorSource(tt.node)
		if src.IsPending() != tt.pending {
			t.Errorf("%q: pending = %v", tt.node.Value, src.IsPending())
		}
		if id := src.Identity(); len(id) < len(tt.prefix) || id[:len(tt.prefix)] != tt.prefix {
			t.Errorf("%q: identity = %q", tt.node.Value, id)
		}
	}
}

func TestDefinitionsLookup(t *testing.T) {
	d := Definitions{"LOGO": "a.png", "mixed": "b.png"}
	if u, ok := d.Lookup("logo"); !ok || u != "a.png" {
		t.Errorf("Lookup(logo) = %q, %v", u, ok)
	}
	if u, ok := d.Lookup("mixed"); !ok || u != "b.png" {
		t.Errorf("Lookup(mixed) = %q, %v", u, ok)
	}
	if _, ok := Definitions(nil).Lookup("x"); ok {
		t.Error("nil definitions should miss")
	}
}
