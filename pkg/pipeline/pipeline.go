// Package pipeline resolves image references into embeddable payloads.
//
// A [Reference] is classified once into one of three kinds:
//
//  1. Inline: a data URL, decoded and normalized (or rasterized if SVG)
//  2. Remote: fetched first; an SVG response is rasterized, anything else normalized
//  3. Vector: diagram markup or a pending diagram computation, rasterized
//
// Every kind ends in the dimension resolver, which fits the intrinsic size
// into the page bounds. The whole path runs behind the cache layer, keyed by
// a fingerprint of the source identity, the salt and the options that
// affect the output.
//
// # Usage
//
//	opts := pipeline.Options{MaxW: 6, MaxH: 9, Logger: logger}
//	runner, err := pipeline.NewRunner(opts, store)
//	if err != nil {
//	    return err
//	}
//	ref := pipeline.NewReference("https://example.com/logo.png", dimension.Override{}, "")
//	payload := runner.Resolve(ctx, ref)
//
// Resolve never returns an error. Stage failures (decode, fetch, render)
// are logged and replaced by the placeholder payload; see [Runner.Placeholder].
package pipeline

import (
	"context"

	"github.com/matzehuels/imgembed/pkg/dimension"
	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/media"
	"github.com/matzehuels/imgembed/pkg/vector"
)

// dispatch routes ref to the stage for its kind and fits the result.
func (r *Runner) dispatch(ctx context.Context, ref Reference) Result {
	switch ref.Kind {
	case Inline:
		return r.resolveInline(ctx, ref)
	case Remote:
		return r.resolveRemote(ctx, ref)
	case Vector:
		return r.resolveVector(ctx, ref.Vector, ref.Override)
	}
	return Err(errors.New(errors.ErrCodeInvalidInput, "unknown reference kind %d", ref.Kind))
}

func (r *Runner) resolveInline(ctx context.Context, ref Reference) Result {
	du, err := media.ParseDataURL(ref.Source)
	if err != nil {
		return Err(err)
	}
	if du.Type == media.SVG {
		return r.resolveVector(ctx, vector.Literal(string(du.Data), ""), ref.Override)
	}
	return r.resolveRaster(ctx, du.Data, du.Type, ref.Override)
}

func (r *Runner) resolveRemote(ctx context.Context, ref Reference) Result {
	resp, err := r.fetcher.Fetch(ctx, ref.Source)
	if err != nil {
		return Err(err)
	}
	if resp.IsVector() {
		return r.resolveVector(ctx, vector.Literal(string(resp.Body), ""), ref.Override)
	}
	// Unknown signatures fall through to the normalizer's re-encode path.
	return r.resolveRaster(ctx, resp.Body, media.Sniff(resp.Body), ref.Override)
}

func (r *Runner) resolveRaster(ctx context.Context, data []byte, declared media.Type, o dimension.Override) Result {
	res, err := r.normalizer.Normalize(ctx, data, declared)
	if err != nil {
		return Err(err)
	}
	return Ok(r.fit(res.Type, res.Data, res.Width, res.Height, o))
}

func (r *Runner) resolveVector(ctx context.Context, src vector.Source, o dimension.Override) Result {
	res, err := r.rasterizer.Rasterize(ctx, src)
	if err != nil {
		return Err(err)
	}
	return Ok(r.fit(res.Type, res.Data, res.Width, res.Height, o))
}

func (r *Runner) fit(t media.Type, data []byte, w, h float64, o dimension.Override) Payload {
	size := dimension.Fit(dimension.Size{Width: w, Height: h}, o, r.opts.Bounds())
	return Payload{
		Type:   t,
		Data:   data,
		Width:  size.Width,
		Height: size.Height,
	}
}
