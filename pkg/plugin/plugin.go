// Package plugin connects the resolver to a document host.
//
// The host calls [Plugin.Preprocess] once per document, before rendering.
// Every image-bearing node is resolved concurrently and the result is
// attached to the node's Data slot. During assembly the host calls
// [Plugin.Inline] per node to obtain the embeddable image run.
package plugin

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/imgembed/pkg/cache"
	"github.com/matzehuels/imgembed/pkg/dimension"
	"github.com/matzehuels/imgembed/pkg/media"
	"github.com/matzehuels/imgembed/pkg/observability"
	"github.com/matzehuels/imgembed/pkg/pipeline"
	"github.com/matzehuels/imgembed/pkg/vector"
)

// Plugin resolves the images of documents. It is safe for concurrent use.
type Plugin struct {
	runner      *pipeline.Runner
	logger      *log.Logger
	concurrency int

	stopSweep context.CancelFunc
	sweepDone chan struct{}
	closeOnce sync.Once
}

// New creates a plugin. When caching is enabled, stale store entries are
// swept in the background; call Close to wait for the sweep.
func New(opts pipeline.Options, store cache.Cache, options ...pipeline.RunnerOption) (*Plugin, error) {
	runner, err := pipeline.NewRunner(opts, store, options...)
	if err != nil {
		return nil, err
	}
	ro := runner.Options()

	ctx, cancel := context.WithCancel(context.Background())
	p := &Plugin{
		runner:      runner,
		logger:      runner.Logger(),
		concurrency: ro.Concurrency,
		stopSweep:   cancel,
		sweepDone:   make(chan struct{}),
	}

	if !ro.CacheEnabled() || store == nil {
		close(p.sweepDone)
		return p, nil
	}
	go func() {
		defer close(p.sweepDone)
		if _, err := runner.Layer().Sweep(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("startup cache sweep failed", "err", err)
		}
	}()
	return p, nil
}

// Runner returns the underlying resolver.
func (p *Plugin) Runner() *pipeline.Runner { return p.runner }

// Close stops the startup sweep and waits for it to return.
func (p *Plugin) Close() error {
	p.closeOnce.Do(func() {
		p.stopSweep()
		<-p.sweepDone
	})
	return nil
}

// Preprocess resolves every image-bearing node under root and writes the
// payloads back onto the nodes. It returns once all resolutions finished.
// The only error is ctx's, reported after the tree has been filled with
// whatever the resolutions produced.
func (p *Plugin) Preprocess(ctx context.Context, root *Node, defs Definitions) error {
	var nodes []*Node
	root.Walk(func(n *Node) {
		if n.IsImage() {
			nodes = append(nodes, n)
		}
	})

	runID := uuid.NewString()
	logger := p.logger.With("run", runID[:8])
	observability.Resolve().OnDiscover(ctx, len(nodes))
	if len(nodes) == 0 {
		return ctx.Err()
	}
	logger.Info("resolving images", "count", len(nodes))
	start := time.Now()

	g := new(errgroup.Group)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	var fallbacks int
	var mu sync.Mutex
	for _, n := range nodes {
		g.Go(func() error {
			data := p.resolveNode(ctx, n, defs, logger)
			data.RunID = runID
			n.Data = merge(n.Data, data)
			if data.Fallback {
				mu.Lock()
				fallbacks++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("resolved images", "count", len(nodes), "fallbacks", fallbacks, "duration", time.Since(start))
	return ctx.Err()
}

func (p *Plugin) resolveNode(ctx context.Context, n *Node, defs Definitions, logger *log.Logger) *ImageData {
	ref, ok := p.reference(n, defs)
	var payload pipeline.Payload
	if ok {
		payload = p.runner.Resolve(ctx, ref)
	} else {
		logger.Warn("undefined image reference", "identifier", n.Identifier)
		payload = p.runner.Placeholder(ctx)
	}

	alt := ref.AltText()
	return &ImageData{
		Type:     payload.Type,
		Image:    payload.Data,
		Width:    payload.Width,
		Height:   payload.Height,
		AltText:  &AltText{Description: alt, Name: alt, Title: alt},
		Fallback: payload.Fallback,
	}
}

// reference builds the resolver reference for an image-bearing node.
func (p *Plugin) reference(n *Node, defs Definitions) (pipeline.Reference, bool) {
	override := dimension.Override{Width: n.Width, Height: n.Height}
	switch n.Type {
	case TypeImage:
		return pipeline.NewReference(n.URL, override, n.Alt), true
	case TypeImageReference:
		u, ok := defs.Lookup(n.Identifier)
		if !ok {
			return pipeline.Reference{Alt: n.Alt}, false
		}
		return pipeline.NewReference(u, override, n.Alt), true
	}
	return pipeline.VectorReference(vectorSource(n), override, n.Alt), true
}

func vectorSource(n *Node) vector.Source {
	lang := strings.ToLower(n.Lang)
	switch {
	case lang == "dot" || lang == vector.DiagramGraphviz:
		return vector.Graphviz(n.Value)
	case n.Render != nil:
		return vector.Pending(lang+":"+n.Value, n.Render)
	}
	return vector.Literal(n.Value, lang)
}

// RunProps are host formatting properties carried onto the image run.
type RunProps map[string]any

// ImageRun is an embeddable image produced for a node.
type ImageRun struct {
	Type    media.Type `json:"type"`
	Data    []byte     `json:"data"`
	Width   float64    `json:"width"`
	Height  float64    `json:"height"`
	AltText AltText    `json:"alt_text"`
	Props   RunProps   `json:"props,omitempty"`
}

// Inline returns the image run for a preprocessed image-bearing node, or nil
// when the node is of another type or carries no image. The node's type is
// cleared so the host does not render it a second time.
func (p *Plugin) Inline(n *Node, props RunProps) []ImageRun {
	if n == nil || !n.IsImage() || n.Data == nil || n.Data.Type == media.Unknown {
		return nil
	}
	run := ImageRun{
		Type:   n.Data.Type,
		Data:   n.Data.Image,
		Width:  n.Data.Width,
		Height: n.Data.Height,
		Props:  props,
	}
	if n.Data.AltText != nil {
		run.AltText = *n.Data.AltText
	}
	n.Type = ""
	return []ImageRun{run}
}
