package vector

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/imgembed/pkg/errors"
)

// DiagramGraphviz is the diagram type reported for DOT sources.
const DiagramGraphviz = "graphviz"

// Graphviz returns a pending source that lays out dot with Graphviz.
func Graphviz(dot string) Source {
	return Pending("graphviz:"+dot, func(ctx context.Context) (*Document, error) {
		svg, err := RenderDOT(ctx, dot)
		if err != nil {
			return nil, err
		}
		return &Document{Markup: string(svg), DiagramType: DiagramGraphviz}, nil
	})
}

// RenderDOT renders a DOT graph to SVG using Graphviz.
func RenderDOT(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRender, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRender, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRender, err, "render DOT")
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var gvViewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)

// normalizeViewBox replaces the pt-sized Graphviz root with a px root whose
// viewBox starts at the origin.
func normalizeViewBox(svg []byte) []byte {
	match := gvViewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return []byte(rewriteRoot(string(svg), func(string) string { return tag }))
}
