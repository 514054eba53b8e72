// Package vector turns SVG-like vector documents into embeddable rasters.
//
// # Sources
//
// A vector node's value is either markup that is already available or a
// computation that yields markup on demand (for example a diagram that still
// has to be laid out). [Source] models both variants explicitly:
//
//	src := vector.Literal(svg, "flowchart")
//	src := vector.Pending("mermaid:"+code, renderMermaid)
//	src := vector.Graphviz("digraph { a -> b }")
//
// A pending source is resolved once, at the start of rasterization. A source
// that yields no markup is UNRESOLVABLE and the caller falls back to its
// placeholder.
//
// # Pipeline
//
// [Rasterizer.Rasterize] runs these steps:
//
//  1. [FixGeneratedSVG] rewrites known generator quirks for the diagram type.
//  2. Unless the diagram type is crop-exempt, [Measurer.Crop] renders the
//     markup onto an off-screen page-sized surface, finds the painted
//     bounding box and tightens the root viewBox to it plus [CropMargin].
//  3. Upscale-tolerant diagram types are enlarged by the largest integer
//     factor that still fits the viewport.
//  4. The markup is rendered at the oversampling scale and encoded in the
//     fallback raster format.
//
// # Renderers
//
// [OKSVGRenderer] renders in-process with srwiley/oksvg and is the default.
// [RSVGRenderer] shells out to rsvg-convert, which handles CSS and text
// layout more faithfully but requires librsvg on the host.
package vector
