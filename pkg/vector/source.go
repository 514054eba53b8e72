package vector

import (
	"context"
	"strings"

	"github.com/matzehuels/imgembed/pkg/errors"
)

// Document is rendered vector markup with the diagram type that produced it.
type Document struct {
	Markup      string `json:"markup"`
	DiagramType string `json:"diagram_type,omitempty"`
}

// Producer computes a document on demand. Returning a nil document with a
// nil error means the node has nothing to render.
type Producer func(ctx context.Context) (*Document, error)

// Source is either literal markup or a pending computation. Construct it
// with [Literal] or [Pending]; the zero value is unresolvable.
type Source struct {
	identity string
	doc      *Document
	produce  Producer
}

// Literal wraps already-rendered markup. The diagram type is part of the
// identity since it changes fixups, cropping and upscaling.
func Literal(markup, diagramType string) Source {
	return Source{
		identity: strings.ToLower(diagramType) + ":" + markup,
		doc:      &Document{Markup: markup, DiagramType: diagramType},
	}
}

// Pending wraps a deferred computation. identity must uniquely describe the
// input of fn (for example the diagram source text); it is used as the cache
// identity so the computation does not have to run on a cache hit.
func Pending(identity string, fn Producer) Source {
	return Source{identity: identity, produce: fn}
}

// Identity returns the stable identity used for cache fingerprints.
func (s Source) Identity() string { return s.identity }

// IsPending reports whether the source still has to be computed.
func (s Source) IsPending() bool { return s.doc == nil && s.produce != nil }

// Resolve returns the document, running the pending computation if needed.
// An empty result is reported as UNRESOLVABLE.
func (s Source) Resolve(ctx context.Context) (*Document, error) {
	doc := s.doc
	if doc == nil && s.produce != nil {
		var err error
		if doc, err = s.produce(ctx); err != nil {
			if errors.GetCode(err) != "" {
				return nil, err
			}
			return nil, errors.Wrap(errors.ErrCodeRender, err, "produce vector document")
		}
	}
	if doc == nil || doc.Markup == "" {
		return nil, errors.New(errors.ErrCodeUnresolvable, "vector source yielded no markup")
	}
	return doc, nil
}
