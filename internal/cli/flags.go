package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/imgembed/pkg/pipeline"
)

// imageFlags are the resolver flags shared by resolve, preprocess and serve.
// Only flags the user set override the config file.
type imageFlags struct {
	scale       float64
	format      string
	maxW        float64
	maxH        float64
	renderer    string
	background  string
	placeholder string
	baseURL     string
	baseDir     string
	noCache     bool
	salt        string
	concurrency int
}

func (f *imageFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&f.scale, "scale", pipeline.DefaultScale, "resize factor applied before re-encoding")
	fs.StringVar(&f.format, "format", string(pipeline.DefaultFallbackFormat), "re-encode format for unsupported images: png, jpg, gif, bmp")
	fs.Float64Var(&f.maxW, "max-width", pipeline.DefaultMaxW, "page content width in inches")
	fs.Float64Var(&f.maxH, "max-height", pipeline.DefaultMaxH, "page content height in inches")
	fs.StringVar(&f.renderer, "renderer", pipeline.DefaultRenderer, "SVG renderer: oksvg or rsvg")
	fs.StringVar(&f.background, "background", pipeline.DefaultBackground, "background colour for formats without alpha")
	fs.StringVar(&f.placeholder, "placeholder", "", "image used when a reference cannot be resolved")
	fs.StringVar(&f.baseURL, "base-url", "", "base URL for relative sources")
	fs.StringVar(&f.baseDir, "base-dir", "", "directory for local sources (default: working directory)")
	fs.BoolVar(&f.noCache, "no-cache", false, "disable the persistent cache")
	fs.StringVar(&f.salt, "salt", "", "cache salt; change it to invalidate every entry")
	fs.IntVar(&f.concurrency, "concurrency", 0, "maximum images resolved at once (0 = no limit)")
}

// options overlays the flags the user set onto base.
func (f *imageFlags) options(cmd *cobra.Command, base pipeline.Options) pipeline.Options {
	opts := base
	changed := cmd.Flags().Changed
	if changed("scale") {
		opts.Scale = f.scale
	}
	if changed("format") {
		opts.FallbackFormat = f.format
	}
	if changed("max-width") {
		opts.MaxW = f.maxW
	}
	if changed("max-height") {
		opts.MaxH = f.maxH
	}
	if changed("renderer") {
		opts.Renderer = f.renderer
	}
	if changed("background") {
		opts.Background = f.background
	}
	if changed("placeholder") {
		opts.PlaceholderSource = f.placeholder
	}
	if changed("base-url") {
		opts.BaseURL = f.baseURL
	}
	if changed("salt") {
		opts.CacheSalt = f.salt
	}
	if changed("concurrency") {
		opts.Concurrency = f.concurrency
	}
	if f.noCache {
		opts.SetCacheEnabled(false)
	}

	switch {
	case changed("base-dir"):
		opts.BaseDir = f.baseDir
	case opts.BaseDir == "":
		if wd, err := os.Getwd(); err == nil {
			opts.BaseDir = wd
		}
	}
	return opts
}
