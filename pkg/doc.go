// Package pkg provides the libraries behind imgembed, the image resolver for
// document generators.
//
// # Overview
//
// A document generator that emits a word-processing file needs every image
// as bytes in a handful of embeddable formats, with a size that fits the
// page. imgembed turns the image references of a content tree (URLs, data
// URLs, local paths, inline SVG and diagram sources) into such payloads. A
// reference that cannot be resolved never fails the document; it becomes a
// placeholder.
//
// # Architecture
//
//	Content tree
//	     ↓
//	[plugin] (discover image nodes, resolve concurrently, attach payloads)
//	     ↓
//	[pipeline] (classify, cache, dispatch, placeholder fallback)
//	     ↓                         ↓
//	[raster] (sniff, re-encode)   [vector] (fix, measure, crop, rasterize)
//	     ↓                         ↓
//	[dimension] (fit to override and page bounds)
//
// [cache] wraps each dispatch with in-flight deduplication, a memo, and a
// persistent store (file, memory, Redis, MongoDB) swept by age.
//
// # Quick Start
//
//	p, err := plugin.New(pipeline.Options{MaxW: 6.5, MaxH: 9}, cache.NewMemoryCache())
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	if err := p.Preprocess(ctx, root, plugin.Definitions{"LOGO": "https://example.com/logo.png"}); err != nil {
//	    return err
//	}
//	runs := p.Inline(node, nil)
//
// # Main Packages
//
// [media] - Format sniffing from magic bytes, data URL parsing, and the set
// of embeddable types.
//
// [dimension] - Fits an intrinsic size to explicit overrides and page bounds.
//
// [raster] - Normalizes raster bytes: supported formats pass through, the
// rest are decoded, scaled and re-encoded.
//
// [vector] - Rasterizes SVG: generator fixups, tight cropping by painted
// pixels, oksvg or rsvg-convert backends, and Graphviz DOT sources.
//
// [cache] - Fingerprint keys, the two-tier [cache.Layer] and its stores.
//
// [fetch] - Remote and local source retrieval with retries.
//
// [pipeline] - [pipeline.Runner], the resolver: reference classification,
// dispatch, caching and placeholder fallback.
//
// [plugin] - The host contract: content tree model, Preprocess and Inline.
//
// [errors] - Coded errors shared by every package.
//
// [observability] - Hooks for resolve, cache and HTTP events.
//
// # Testing
//
//	go test ./pkg/...            # All tests
//	go test ./pkg/vector/...     # Specific package
//	go test -run Example ./...   # Examples only
//
// [media]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/media
// [dimension]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/dimension
// [raster]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/raster
// [vector]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/vector
// [cache]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/cache
// [cache.Layer]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/cache#Layer
// [fetch]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/fetch
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/pipeline
// [pipeline.Runner]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/pipeline#Runner
// [plugin]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/plugin
// [errors]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/imgembed/pkg/observability
package pkg
