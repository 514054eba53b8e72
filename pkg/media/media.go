// Package media classifies image bytes and image sources.
//
// The package is pure: it never decodes pixels and never fails. [Sniff]
// inspects the leading magic bytes of a buffer and reports one of a small
// closed set of raster types, or [Unknown] when nothing matches. Data URLs
// are split by [ParseDataURL] into their declared subtype and decoded bytes.
package media

import "strings"

// Type is an embeddable media type. The zero value is [Unknown].
type Type string

const (
	Unknown Type = ""
	PNG     Type = "png"
	JPG     Type = "jpg"
	GIF     Type = "gif"
	BMP     Type = "bmp"
	SVG     Type = "svg"
)

// Supported lists the raster types the document container embeds natively.
var Supported = []Type{PNG, JPG, GIF, BMP}

// FallbackFormats lists the types accepted as a re-encode target.
var FallbackFormats = Supported

// IsSupported reports whether t can be embedded without re-encoding.
func IsSupported(t Type) bool {
	switch t {
	case PNG, JPG, GIF, BMP:
		return true
	}
	return false
}

// IsFallbackFormat reports whether t is a valid re-encode target.
func IsFallbackFormat(t Type) bool {
	return IsSupported(t)
}

// Normalize maps a MIME subtype or file extension to a Type. Subtypes
// outside the known set are returned lower-cased as-is so callers can route
// them to the re-encode path.
func Normalize(subtype string) Type {
	s := strings.ToLower(strings.TrimSpace(subtype))
	s = strings.TrimPrefix(s, ".")
	switch s {
	case "jpeg", "jpg", "pjpeg":
		return JPG
	case "svg", "svg+xml":
		return SVG
	case "png", "apng":
		return PNG
	case "x-ms-bmp", "x-bmp":
		return BMP
	}
	return Type(s)
}

// MIME returns the MIME type for t, or application/octet-stream.
func MIME(t Type) string {
	switch t {
	case PNG:
		return "image/png"
	case JPG:
		return "image/jpeg"
	case GIF:
		return "image/gif"
	case BMP:
		return "image/bmp"
	case SVG:
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t == Unknown {
		return "unknown"
	}
	return string(t)
}
