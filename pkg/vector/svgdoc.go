package vector

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/matzehuels/imgembed/pkg/errors"
)

// Browser default for replaced elements without any size information.
const (
	defaultWidth  = 300.0
	defaultHeight = 150.0
)

// ViewBox is an SVG user-space rectangle.
type ViewBox struct {
	X, Y, W, H float64
}

func (v ViewBox) String() string {
	return fmt.Sprintf("%s %s %s %s", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.W), formatFloat(v.H))
}

func (v ViewBox) empty() bool { return v.W <= 0 || v.H <= 0 }

// root describes the outermost <svg> element.
type root struct {
	Width   float64 // px, 0 when undeclared
	Height  float64 // px, 0 when undeclared
	ViewBox ViewBox // zero when undeclared
}

// size returns the declared size in px, derived from the viewBox or the
// browser default where attributes are missing.
func (r root) size() (w, h float64) {
	w, h = r.Width, r.Height
	vb := r.ViewBox
	switch {
	case w > 0 && h > 0:
	case w > 0 && !vb.empty():
		h = w * vb.H / vb.W
	case h > 0 && !vb.empty():
		w = h * vb.W / vb.H
	case !vb.empty():
		w, h = vb.W, vb.H
	default:
		if w <= 0 {
			w = defaultWidth
		}
		if h <= 0 {
			h = defaultHeight
		}
	}
	return w, h
}

// userBox returns the viewBox, or the declared size when there is none.
func (r root) userBox() ViewBox {
	if !r.ViewBox.empty() {
		return r.ViewBox
	}
	w, h := r.size()
	return ViewBox{W: w, H: h}
}

// parseRoot reads the attributes of the outermost <svg> element. Percentage
// lengths resolve against the given page size in px.
func parseRoot(markup string, pageW, pageH float64) (root, error) {
	dec := xml.NewDecoder(strings.NewReader(markup))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return root{}, errors.New(errors.ErrCodeRender, "no <svg> element found")
		}
		if err != nil {
			return root{}, errors.Wrap(errors.ErrCodeRender, err, "parse svg markup")
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return root{}, errors.New(errors.ErrCodeRender, "root element is <%s>, not <svg>", start.Name.Local)
		}

		var r root
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "width":
				r.Width = parseLength(a.Value, pageW)
			case "height":
				r.Height = parseLength(a.Value, pageH)
			case "viewBox":
				r.ViewBox = parseViewBox(a.Value)
			}
		}
		return r, nil
	}
}

var unitPx = map[string]float64{
	"":   1,
	"px": 1,
	"pt": 96.0 / 72.0,
	"pc": 16,
	"in": 96,
	"cm": 96 / 2.54,
	"mm": 96 / 25.4,
	"em": 16,
}

// parseLength converts an SVG length to px. Unknown units yield 0.
func parseLength(s string, reference float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "auto" {
		return 0
	}
	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0
		}
		return reference * v / 100
	}
	i := len(s)
	for i > 0 && (s[i-1] < '0' || s[i-1] > '9') && s[i-1] != '.' {
		i--
	}
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil || v < 0 {
		return 0
	}
	k, ok := unitPx[strings.ToLower(s[i:])]
	if !ok {
		return 0
	}
	return v * k
}

func parseViewBox(s string) ViewBox {
	f := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' })
	if len(f) != 4 {
		return ViewBox{}
	}
	var v [4]float64
	for i, p := range f {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return ViewBox{}
		}
		v[i] = n
	}
	return ViewBox{X: v[0], Y: v[1], W: v[2], H: v[3]}
}

var svgTagRe = regexp.MustCompile(`<svg\b[^>]*>`)

// rewriteRoot applies fn to the outermost <svg ...> start tag.
func rewriteRoot(markup string, fn func(tag string) string) string {
	loc := svgTagRe.FindStringIndex(markup)
	if loc == nil {
		return markup
	}
	return markup[:loc[0]] + fn(markup[loc[0]:loc[1]]) + markup[loc[1]:]
}

func attrRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`\s` + regexp.QuoteMeta(name) + `\s*=\s*("[^"]*"|'[^']*')`)
}

// setAttr sets name="value" on a start tag, replacing any existing value.
func setAttr(tag, name, value string) string {
	attr := ` ` + name + `="` + value + `"`
	re := attrRe(name)
	if re.MatchString(tag) {
		return re.ReplaceAllLiteralString(tag, attr)
	}
	if strings.HasSuffix(tag, "/>") {
		return tag[:len(tag)-2] + attr + "/>"
	}
	return tag[:len(tag)-1] + attr + ">"
}

// removeAttr drops name from a start tag.
func removeAttr(tag, name string) string {
	return attrRe(name).ReplaceAllLiteralString(tag, "")
}
