package pipeline

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/imgembed/pkg/cache"
	"github.com/matzehuels/imgembed/pkg/dimension"
	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/media"
	"github.com/matzehuels/imgembed/pkg/vector"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, API, and Plugin
// =============================================================================

const (
	// DefaultScale is the oversampling multiplier for re-encoded and
	// rasterized images.
	DefaultScale = 3.0

	// DefaultMaxW is the printable page width in inches.
	DefaultMaxW = 6.3

	// DefaultMaxH is the printable page height in inches.
	DefaultMaxH = 9.7

	// DefaultDPI converts pixel measurements to physical units. It is not
	// configurable.
	DefaultDPI = 96.0

	// DefaultCacheMaxAgeMinutes is the TTL of persisted entries (7 days).
	DefaultCacheMaxAgeMinutes = 10080

	// DefaultBackground fills transparent pixels for formats without alpha.
	DefaultBackground = "#ffffff"

	// DefaultRenderer is the SVG rasterization backend.
	DefaultRenderer = vector.RendererOKSVG

	// DefaultFetchTimeout bounds a single remote fetch attempt.
	DefaultFetchTimeout = 10 * time.Second
)

// DefaultFallbackFormat is the re-encode target.
const DefaultFallbackFormat = media.PNG

// DefaultExemptCropTypes lists diagram types whose layout is already tight.
var DefaultExemptCropTypes = []string{"gantt"}

// DefaultUpscaleTypes lists diagram types that may be enlarged to the viewport.
var DefaultUpscaleTypes = []string{"mindmap"}

// =============================================================================
// Options - Resolver Configuration
// =============================================================================

// Options configures image resolution. It supports JSON for API requests and
// TOML for the CLI config file.
type Options struct {
	Scale             float64 `json:"scale,omitempty" toml:"scale"`
	FallbackFormat    string  `json:"fallback_format,omitempty" toml:"fallback_format"`
	MaxW              float64 `json:"max_w,omitempty" toml:"max_w"`
	MaxH              float64 `json:"max_h,omitempty" toml:"max_h"`
	PlaceholderSource string  `json:"placeholder_source,omitempty" toml:"placeholder_source"`

	// Cache settings. Cache is a pointer so an explicit false survives
	// defaulting; use CacheEnabled to read it.
	Cache              *bool  `json:"cache_enabled,omitempty" toml:"cache_enabled"`
	CacheSalt          string `json:"cache_salt,omitempty" toml:"cache_salt"`
	CacheMaxAgeMinutes int    `json:"cache_max_age_minutes,omitempty" toml:"cache_max_age_minutes"`

	// Vector settings
	ExemptCropTypes []string `json:"exempt_crop_types,omitempty" toml:"exempt_crop_types"`
	UpscaleTypes    []string `json:"upscale_types,omitempty" toml:"upscale_types"`
	Renderer        string   `json:"renderer,omitempty" toml:"renderer"`
	Background      string   `json:"background,omitempty" toml:"background"`

	// Source resolution
	BaseURL string `json:"base_url,omitempty" toml:"base_url"`
	BaseDir string `json:"-" toml:"base_dir"`

	// Runtime options (not serialized)
	DPI          float64       `json:"-" toml:"-"`
	FetchTimeout time.Duration `json:"-" toml:"fetch_timeout"`
	// Concurrency caps simultaneous resolutions per document. Zero launches
	// every resolution at once.
	Concurrency  int           `json:"-" toml:"concurrency"`
	Logger       *log.Logger   `json:"-" toml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults checks option values and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}

	if o.Scale < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "scale must be positive, got %v", o.Scale)
	}
	if o.Scale == 0 {
		o.Scale = DefaultScale
	}

	if o.FallbackFormat == "" {
		o.FallbackFormat = string(DefaultFallbackFormat)
	}
	f := media.Normalize(o.FallbackFormat)
	if !media.IsFallbackFormat(f) {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid fallback format: %q (must be one of: png, jpg, gif, bmp)", o.FallbackFormat)
	}
	o.FallbackFormat = string(f)

	if o.MaxW < 0 || o.MaxH < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "page bounds must be positive")
	}
	if o.MaxW == 0 {
		o.MaxW = DefaultMaxW
	}
	if o.MaxH == 0 {
		o.MaxH = DefaultMaxH
	}
	o.DPI = DefaultDPI

	if o.Cache == nil {
		enabled := true
		o.Cache = &enabled
	}
	if err := errors.ValidateSalt(o.CacheSalt); err != nil {
		return err
	}
	if o.CacheMaxAgeMinutes < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache max age must be positive")
	}
	if o.CacheMaxAgeMinutes == 0 {
		o.CacheMaxAgeMinutes = DefaultCacheMaxAgeMinutes
	}

	if o.ExemptCropTypes == nil {
		o.ExemptCropTypes = DefaultExemptCropTypes
	}
	if o.UpscaleTypes == nil {
		o.UpscaleTypes = DefaultUpscaleTypes
	}
	if o.Renderer == "" {
		o.Renderer = DefaultRenderer
	}
	if err := ValidateRenderer(o.Renderer); err != nil {
		return err
	}
	if o.Background == "" {
		o.Background = DefaultBackground
	}
	if _, err := colorful.Hex(o.Background); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid background %q", o.Background)
	}

	if o.BaseURL != "" {
		if err := errors.ValidateURL(o.BaseURL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "base_url")
		}
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.Concurrency < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "concurrency must not be negative, got %d", o.Concurrency)
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	o.validated = true
	return nil
}

// ValidateRenderer checks that a renderer name is known.
func ValidateRenderer(name string) error {
	switch name {
	case vector.RendererOKSVG, vector.RendererRSVG:
		return nil
	}
	return errors.New(errors.ErrCodeInvalidConfig, "invalid renderer: %q (must be one of: %s, %s)",
		name, vector.RendererOKSVG, vector.RendererRSVG)
}

// =============================================================================
// Options Methods
// =============================================================================

// CacheEnabled reports whether results are persisted. Unset means enabled.
func (o *Options) CacheEnabled() bool {
	return o.Cache == nil || *o.Cache
}

// SetCacheEnabled sets the cache switch.
func (o *Options) SetCacheEnabled(enabled bool) {
	o.Cache = &enabled
}

// Format returns the fallback format as a media type.
func (o *Options) Format() media.Type {
	return media.Normalize(o.FallbackFormat)
}

// Bounds returns the page constraints for the dimension resolver.
func (o *Options) Bounds() dimension.Bounds {
	return dimension.Bounds{MaxW: o.MaxW, MaxH: o.MaxH, DPI: o.DPI}
}

// MaxAge returns the cache TTL.
func (o *Options) MaxAge() time.Duration {
	return time.Duration(o.CacheMaxAgeMinutes) * time.Minute
}

// KeyOpts returns the option fields that participate in the cache
// fingerprint of a reference.
func (o *Options) KeyOpts(kind Kind, override dimension.Override) cache.ImageKeyOpts {
	return cache.ImageKeyOpts{
		Kind:       kind.String(),
		Scale:      o.Scale,
		Format:     o.FallbackFormat,
		MaxW:       o.MaxW,
		MaxH:       o.MaxH,
		DPI:        o.DPI,
		Width:      override.Width,
		Height:     override.Height,
		Renderer:   o.Renderer,
		Background: o.Background,
		ExemptCrop: sortedTypes(o.ExemptCropTypes),
		Upscale:    sortedTypes(o.UpscaleTypes),
	}
}

// sortedTypes lower-cases and sorts a diagram type list so that equivalent
// configurations share fingerprints.
func sortedTypes(types []string) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = strings.ToLower(t)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// String summarizes the options for debug logs.
func (o *Options) String() string {
	return fmt.Sprintf("scale=%v format=%s page=%vx%vin cache=%v", o.Scale, o.FallbackFormat, o.MaxW, o.MaxH, o.CacheEnabled())
}
