package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/imgembed/pkg/cache"
	"github.com/matzehuels/imgembed/pkg/dimension"
	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/fetch"
	"github.com/matzehuels/imgembed/pkg/media"
	"github.com/matzehuels/imgembed/pkg/observability"
	"github.com/matzehuels/imgembed/pkg/raster"
	"github.com/matzehuels/imgembed/pkg/vector"
)

// Normalizer converts raster bytes into an embeddable format.
type Normalizer interface {
	Normalize(ctx context.Context, data []byte, declared media.Type) (raster.Result, error)
}

// Rasterizer renders vector sources.
type Rasterizer interface {
	Rasterize(ctx context.Context, src vector.Source) (vector.Result, error)
}

// Fetcher retrieves remote sources.
type Fetcher interface {
	Fetch(ctx context.Context, src string) (*fetch.Response, error)
}

// Runner resolves image references with caching and placeholder fallback.
//
// A Runner owns its measuring surface and in-flight map; create one per
// plugin instance and share it between goroutines.
type Runner struct {
	opts       Options
	normalizer Normalizer
	rasterizer Rasterizer
	fetcher    Fetcher
	layer      *cache.Layer
	keyer      cache.Keyer
	logger     *log.Logger

	placeholderOnce sync.Once
	placeholder     Payload
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithNormalizer replaces the raster normalizer.
func WithNormalizer(n Normalizer) RunnerOption { return func(r *Runner) { r.normalizer = n } }

// WithRasterizer replaces the vector rasterizer.
func WithRasterizer(v Rasterizer) RunnerOption { return func(r *Runner) { r.rasterizer = v } }

// WithFetcher replaces the remote fetcher.
func WithFetcher(f Fetcher) RunnerOption { return func(r *Runner) { r.fetcher = f } }

// WithKeyer replaces the fingerprint function.
func WithKeyer(k cache.Keyer) RunnerOption { return func(r *Runner) { r.keyer = k } }

// NewRunner creates a runner from opts.
// If store is nil, or caching is disabled, a NullCache is used.
// Components not supplied through options are built from opts.
func NewRunner(opts Options, store cache.Cache, options ...RunnerOption) (*Runner, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if store == nil || !opts.CacheEnabled() {
		store = cache.NewNullCache()
	}

	r := &Runner{opts: opts, logger: opts.Logger}
	for _, o := range options {
		o(r)
	}
	if r.keyer == nil {
		r.keyer = cache.NewDefaultKeyer()
	}
	r.layer = cache.NewLayer(store, cache.LayerOptions{
		MaxAge: opts.MaxAge(),
		Memo:   opts.CacheEnabled(),
		Logger: opts.Logger,
	})

	surface := raster.NewImagingSurface(opts.Background)
	if r.normalizer == nil {
		r.normalizer = raster.NewNormalizer(surface, opts.Scale, opts.Format())
	}
	if r.rasterizer == nil {
		renderer, err := vector.NewRenderer(opts.Renderer)
		if err != nil {
			return nil, err
		}
		b := opts.Bounds()
		r.rasterizer = vector.NewRasterizer(vector.Config{
			Renderer:   renderer,
			Surface:    surface,
			Scale:      opts.Scale,
			Format:     opts.Format(),
			ViewportW:  b.PixelWidth(),
			ViewportH:  b.PixelHeight(),
			ExemptCrop: opts.ExemptCropTypes,
			Upscale:    opts.UpscaleTypes,
		})
	}
	if r.fetcher == nil {
		client, err := fetch.NewClient(fetch.Options{
			BaseURL: opts.BaseURL,
			BaseDir: opts.BaseDir,
			Timeout: opts.FetchTimeout,
		})
		if err != nil {
			return nil, err
		}
		r.fetcher = client
	}
	return r, nil
}

// Options returns the validated options.
func (r *Runner) Options() Options { return r.opts }

// Layer returns the cache layer.
func (r *Runner) Layer() *cache.Layer { return r.layer }

// Logger returns the runner's logger.
func (r *Runner) Logger() *log.Logger { return r.logger }

// Resolve turns ref into a payload. It never fails: stage failures yield the
// placeholder, and a failing placeholder yields [Synthetic].
func (r *Runner) Resolve(ctx context.Context, ref Reference) Payload {
	kind, label := ref.Kind.String(), ref.label()
	hooks := observability.Resolve()
	hooks.OnResolveStart(ctx, kind, label)
	start := time.Now()

	p, outcome, err := r.resolveCached(ctx, ref)
	if err != nil {
		// Stage failures are expected for broken references; anything else
		// points at the resolver or its store.
		if errors.IsStageFailure(err) {
			r.logger.Warn("image resolution failed", "kind", kind, "source", label, "err", err)
		} else {
			r.logger.Error("image resolution failed", "kind", kind, "source", label, "err", err)
		}
		p = r.Placeholder(ctx)
	} else {
		r.logger.Debug("resolved image", "kind", kind, "source", label, "type", p.Type,
			"width", p.Width, "height", p.Height, "cache", outcome)
	}

	hooks.OnResolveComplete(ctx, kind, label, time.Since(start), p.Fallback)
	return p
}

// resolveCached runs dispatch behind the cache layer. Payloads are stored
// as JSON; placeholder results never reach the layer.
func (r *Runner) resolveCached(ctx context.Context, ref Reference) (Payload, cache.Outcome, error) {
	key := r.keyer.ImageKey(ref.Identity(), r.opts.CacheSalt, r.opts.KeyOpts(ref.Kind, ref.Override))

	data, outcome, err := r.layer.Do(ctx, key, func(ctx context.Context) ([]byte, bool, error) {
		p, err := r.dispatch(ctx, ref).Unwrap()
		if err != nil {
			return nil, false, err
		}
		data, err := json.Marshal(p)
		if err != nil {
			return nil, false, errors.Wrap(errors.ErrCodeInternal, err, "encode payload")
		}
		return data, true, nil
	})
	if err != nil {
		return Payload{}, outcome, err
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt entry is dropped so the next request recomputes it.
		if ferr := r.layer.Forget(ctx, key); ferr != nil {
			r.logger.Warn("cache delete failed", "err", ferr)
		}
		return Payload{}, outcome, errors.Wrap(errors.ErrCodeCache, err, "decode cached payload")
	}
	return p, outcome, nil
}

// Placeholder returns the payload used for failed references. The configured
// placeholder source is resolved once per runner, outside the cache and
// without recursing into Placeholder on its own failure.
func (r *Runner) Placeholder(ctx context.Context) Payload {
	r.placeholderOnce.Do(func() {
		r.placeholder = Synthetic()
		if r.opts.PlaceholderSource == "" {
			return
		}
		ref := NewReference(r.opts.PlaceholderSource, dimension.Override{}, "")
		p, err := r.dispatch(context.WithoutCancel(ctx), ref).Unwrap()
		if err != nil {
			r.logger.Warn("placeholder unavailable, using synthetic image", "source", ref.label(), "err", err)
			return
		}
		r.placeholder = p
	})
	p := r.placeholder
	p.Fallback = true
	return p
}
