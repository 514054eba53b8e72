package pipeline

import (
	"net/url"
	"strings"

	"github.com/matzehuels/imgembed/pkg/dimension"
	"github.com/matzehuels/imgembed/pkg/media"
	"github.com/matzehuels/imgembed/pkg/vector"
)

// Kind is the shape of an image reference, decided once at classification.
type Kind int

const (
	// Remote sources are fetched; the response may turn out to be vector.
	Remote Kind = iota
	// Inline sources are data URLs.
	Inline
	// Vector sources are diagram markup or a pending diagram computation.
	Vector
)

func (k Kind) String() string {
	switch k {
	case Remote:
		return "remote"
	case Inline:
		return "inline"
	case Vector:
		return "vector"
	}
	return "unknown"
}

// Classify decides the kind of a source. isVector is set when the
// originating node is tagged as vector.
func Classify(src string, isVector bool) Kind {
	switch {
	case media.IsDataURL(src):
		return Inline
	case isVector:
		return Vector
	}
	return Remote
}

// Reference is an image source captured from a document node.
type Reference struct {
	Kind     Kind
	Source   string        // URL, path or data URL; empty for vector nodes
	Vector   vector.Source // set when Kind is Vector
	Override dimension.Override
	Alt      string
}

// NewReference classifies src as inline or remote.
func NewReference(src string, override dimension.Override, alt string) Reference {
	return Reference{
		Kind:     Classify(src, false),
		Source:   src,
		Override: override,
		Alt:      alt,
	}
}

// VectorReference wraps a vector source.
func VectorReference(src vector.Source, override dimension.Override, alt string) Reference {
	return Reference{
		Kind:     Vector,
		Vector:   src,
		Override: override,
		Alt:      alt,
	}
}

// Identity is the source identity used for cache fingerprints.
func (r Reference) Identity() string {
	if r.Kind == Vector {
		return r.Vector.Identity()
	}
	return r.Source
}

// AltText returns the author alt text, falling back to the last path
// segment of a remote source.
func (r Reference) AltText() string {
	if r.Alt != "" {
		return r.Alt
	}
	if r.Kind != Remote || r.Source == "" {
		return ""
	}
	p := r.Source
	if u, err := url.Parse(r.Source); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	if s, err := url.PathUnescape(p); err == nil {
		return s
	}
	return p
}

// label is a short description of the reference for logs and hooks.
func (r Reference) label() string {
	id := r.Identity()
	if r.Kind == Inline {
		if i := strings.IndexByte(id, ','); i >= 0 {
			id = id[:i]
		}
	}
	if len(id) > 80 {
		id = id[:77] + "..."
	}
	return id
}
