package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/media"
	"github.com/matzehuels/imgembed/pkg/pipeline"
	"github.com/matzehuels/imgembed/pkg/plugin"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	p, err := plugin.New(pipeline.Options{MaxW: 6, MaxH: 9}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })

	srv := httptest.NewServer(New(p, log.New(io.Discard)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestResolve(t *testing.T) {
	srv := testServer(t)
	resp := post(t, srv.URL+"/v1/resolve", ResolveRequest{Source: pngDataURL(t, 40, 20), Alt: "box"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got ResolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Type != media.PNG || got.Width != 40 || got.Height != 20 || got.AltText != "box" {
		t.Errorf("response = %+v", got)
	}
	if len(got.Data) == 0 {
		t.Error("missing image data")
	}
}

func TestResolveBadRequest(t *testing.T) {
	srv := testServer(t)
	tests := []struct {
		name string
		body any
	}{
		{"empty", ResolveRequest{}},
		{"both", map[string]any{"source": "a.png", "svg": map[string]string{"markup": "<svg/>"}}},
		{"malformed", "{"},
		{"unknown field", `{"src":"a.png"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/v1/resolve", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var e errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code != errors.ErrCodeInvalidInput {
				t.Errorf("error body = %+v, %v", e, err)
			}
		})
	}
}

func TestPreprocess(t *testing.T) {
	srv := testServer(t)
	tree := &plugin.Node{Type: "root", Children: []*plugin.Node{
		{Type: plugin.TypeImage, URL: pngDataURL(t, 10, 10)},
		{Type: plugin.TypeImageReference, Identifier: "missing"},
	}}
	resp := post(t, srv.URL+"/v1/preprocess", PreprocessRequest{Tree: tree})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got plugin.Node
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Children) != 2 {
		t.Fatalf("children = %d", len(got.Children))
	}
	if d := got.Children[0].Data; d == nil || d.Width != 10 || d.Fallback {
		t.Errorf("image data = %+v", d)
	}
	if d := got.Children[1].Data; d == nil || !d.Fallback {
		t.Errorf("undefined reference should fall back, got %+v", d)
	}
}

func TestPreprocessMissingTree(t *testing.T) {
	srv := testServer(t)
	resp := post(t, srv.URL+"/v1/preprocess", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/v1/resolve")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/resolve status = %d, want 405", resp.StatusCode)
	}
}
