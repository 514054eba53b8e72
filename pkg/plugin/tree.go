package plugin

import (
	"strings"

	"github.com/matzehuels/imgembed/pkg/media"
	"github.com/matzehuels/imgembed/pkg/vector"
)

// Node types that carry images.
const (
	TypeImage          = "image"
	TypeImageReference = "imageReference"
	TypeSVG            = "svg"
)

// Node is the inspectable shape of a content tree node. Only the fields the
// resolver reads or writes are modeled; hosts keep their own tree and map
// into this one.
type Node struct {
	Type       string  `json:"type"`
	URL        string  `json:"url,omitempty"`
	Identifier string  `json:"identifier,omitempty"`
	Value      string  `json:"value,omitempty"`
	Lang       string  `json:"lang,omitempty"`
	Alt        string  `json:"alt,omitempty"`
	Width      float64 `json:"width,omitempty"`
	Height     float64 `json:"height,omitempty"`

	// Render produces the markup of an svg node on demand. When nil the
	// node's Value is used as literal markup.
	Render vector.Producer `json:"-"`

	Data     *ImageData `json:"data,omitempty"`
	Children []*Node    `json:"children,omitempty"`
}

// IsImage reports whether the node is image-bearing.
func (n *Node) IsImage() bool {
	switch n.Type {
	case TypeImage, TypeImageReference, TypeSVG:
		return true
	}
	return false
}

// Walk calls fn for n and every descendant, depth first.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// AltText is the accessible description attached to an image.
type AltText struct {
	Description string `json:"description,omitempty"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
}

func (a *AltText) empty() bool {
	return a == nil || (a.Description == "" && a.Name == "" && a.Title == "")
}

// ImageData is the resolver output attached to a node.
type ImageData struct {
	Type     media.Type `json:"type,omitempty"`
	Image    []byte     `json:"image,omitempty"`
	Width    float64    `json:"width,omitempty"`
	Height   float64    `json:"height,omitempty"`
	AltText  *AltText   `json:"alt_text,omitempty"`
	Fallback bool       `json:"fallback,omitempty"`
	RunID    string     `json:"run_id,omitempty"`
}

// merge fills the zero fields of existing from resolved. Values already on
// the node win.
func merge(existing, resolved *ImageData) *ImageData {
	if existing == nil {
		return resolved
	}
	out := *existing
	if out.Type == media.Unknown {
		out.Type = resolved.Type
	}
	if out.Image == nil {
		out.Image = resolved.Image
	}
	if out.Width == 0 {
		out.Width = resolved.Width
	}
	if out.Height == 0 {
		out.Height = resolved.Height
	}
	if out.AltText.empty() {
		out.AltText = resolved.AltText
	}
	if !out.Fallback {
		out.Fallback = resolved.Fallback
	}
	if out.RunID == "" {
		out.RunID = resolved.RunID
	}
	return &out
}

// Definitions maps reference identifiers to URLs. Lookups are
// case-insensitive.
type Definitions map[string]string

// Lookup returns the URL defined for id.
func (d Definitions) Lookup(id string) (string, bool) {
	if d == nil {
		return "", false
	}
	if u, ok := d[strings.ToUpper(id)]; ok {
		return u, true
	}
	u, ok := d[id]
	return u, ok
}
