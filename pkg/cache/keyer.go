package cache

// Namespace is the prefix of every image key.
const Namespace = "img"

// ImageKeyOpts is the whitelist of options that change a resolved payload.
// Fields that do not affect the output (logging, concurrency, timeouts) must
// not be added here, or identical images would miss the cache.
type ImageKeyOpts struct {
	Kind       string  `json:"kind"`
	Scale      float64 `json:"scale"`
	Format     string  `json:"format"`
	MaxW       float64 `json:"max_w"`
	MaxH       float64 `json:"max_h"`
	DPI        float64 `json:"dpi"`
	Width      float64 `json:"width,omitempty"`
	Height     float64 `json:"height,omitempty"`
	Renderer   string  `json:"renderer,omitempty"`
	Background string  `json:"background,omitempty"`

	// Diagram types handled specially by the rasterizer, sorted.
	ExemptCrop []string `json:"exempt_crop,omitempty"`
	Upscale    []string `json:"upscale,omitempty"`
}

// Keyer builds cache fingerprints.
type Keyer interface {
	// ImageKey fingerprints a source identity with a salt and options.
	ImageKey(identity, salt string, opts ImageKeyOpts) string
}

// DefaultKeyer hashes its inputs under [Namespace].
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ImageKey implements Keyer.
func (DefaultKeyer) ImageKey(identity, salt string, opts ImageKeyOpts) string {
	return hashKey(Namespace, identity, salt, opts)
}
