package vector

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/imgembed/pkg/errors"
)

func TestGraphviz(t *testing.T) {
	src := Graphviz("digraph G { a -> b }")
	if !src.IsPending() {
		t.Fatal("Graphviz source should be pending")
	}
	if !strings.HasPrefix(src.Identity(), "graphviz:") {
		t.Errorf("Identity() = %q", src.Identity())
	}

	doc, err := src.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if doc.DiagramType != DiagramGraphviz {
		t.Errorf("DiagramType = %q", doc.DiagramType)
	}
	if !strings.Contains(doc.Markup, `viewBox="0 0 `) {
		t.Errorf("viewBox not normalised: %.200s", doc.Markup)
	}
}

func TestGraphvizInvalid(t *testing.T) {
	_, err := Graphviz("digraph {").Resolve(context.Background())
	if !errors.Is(err, errors.ErrCodeRender) {
		t.Errorf("err = %v, want RENDER_ERROR", err)
	}
}
