// Package cli implements the imgembed command-line interface.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/imgembed/pkg/buildinfo"
	"github.com/matzehuels/imgembed/pkg/cache"
	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/pipeline"
	"github.com/matzehuels/imgembed/pkg/plugin"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "imgembed"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	config     *Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
// The config file is loaded before any subcommand runs.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "imgembed resolves image references into embeddable payloads",
		Long:         `imgembed fetches, sniffs, normalizes and sizes the images of a document tree so a document generator can embed them, rasterizing SVG diagrams on the way and caching every result.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			c.config = cfg
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.config/imgembed/config.toml)")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.preprocessCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// cfg returns the loaded config, falling back to defaults when a command
// runs without the root pre-run (tests).
func (c *CLI) cfg() *Config {
	if c.config == nil {
		c.config = defaultConfig()
	}
	return c.config
}

// =============================================================================
// Plugin Factory
// =============================================================================

// newPlugin builds a plugin from the loaded config with opts applied on top.
// The store is opened on first use; an unreachable store is reported and
// replaced by a NullCache.
func (c *CLI) newPlugin(ctx context.Context, opts pipeline.Options) (*plugin.Plugin, func(), error) {
	opts.Logger = c.Logger

	var store cache.Cache = cache.NewNullCache()
	if opts.CacheEnabled() {
		store = newLazyStore(c.cfg().Cache, c.Logger)
	}

	var options []pipeline.RunnerOption
	if ns := c.cfg().Cache.Namespace; ns != "" {
		options = append(options, pipeline.WithKeyer(cache.NewScopedKeyer(nil, ns+":")))
	}

	p, err := plugin.New(opts, store, options...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	cleanup := func() {
		_ = p.Close()
		_ = store.Close()
	}
	return p, cleanup, nil
}

// =============================================================================
// Cache Stores
// =============================================================================

// Store names accepted in the [cache] table.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
	StoreNone   = "none"
)

// openStore opens the persistent store selected by cfg.
func openStore(ctx context.Context, cfg CacheConfig) (cache.Cache, error) {
	switch strings.ToLower(cfg.Store) {
	case "", StoreFile:
		dir := cfg.Dir
		if dir == "" {
			d, err := cacheDir()
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeCache, err, "resolve cache directory")
			}
			dir = d
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, err
		}
		return fc, nil
	case StoreMemory:
		return cache.NewMemoryCache(), nil
	case StoreRedis:
		if cfg.URL == "" {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "cache.url is required for the redis store")
		}
		rc, err := cache.NewRedisCache(cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, err
		}
		return rc, nil
	case StoreMongo:
		if cfg.URI == "" {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "cache.uri is required for the mongo store")
		}
		mc, err := cache.NewMongoCache(ctx, cfg.URI, cfg.Database, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return mc, nil
	case StoreNone:
		return cache.NewNullCache(), nil
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown cache store %q", cfg.Store)
}

// storeOpenTimeout bounds connecting to a remote store on first use.
const storeOpenTimeout = 10 * time.Second

// lazyStore opens the configured store once, on first use. A store that
// cannot be opened is reported once and replaced by a NullCache.
type lazyStore struct {
	cfg    CacheConfig
	logger *log.Logger
	once   sync.Once
	store  cache.Cache
}

func newLazyStore(cfg CacheConfig, logger *log.Logger) *lazyStore {
	return &lazyStore{cfg: cfg, logger: logger}
}

func (s *lazyStore) get(ctx context.Context) cache.Cache {
	s.once.Do(func() {
		// Opening outlives the first caller's cancellation.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeOpenTimeout)
		defer cancel()
		st, err := openStore(ctx, s.cfg)
		if err != nil {
			s.logger.Warn("cache store unavailable, continuing without", "store", s.cfg.Store, "err", errors.UserMessage(err))
			st = cache.NewNullCache()
		}
		s.store = st
	})
	return s.store
}

func (s *lazyStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	return s.get(ctx).Get(ctx, key)
}

func (s *lazyStore) Set(ctx context.Context, key string, e cache.Entry) error {
	return s.get(ctx).Set(ctx, key, e)
}

func (s *lazyStore) Delete(ctx context.Context, key string) error {
	return s.get(ctx).Delete(ctx, key)
}

func (s *lazyStore) Sweep(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	return s.get(ctx).Sweep(ctx, prefix, cutoff)
}

// Close closes the store if it was opened. An unopened store stays closed.
func (s *lazyStore) Close() error {
	s.once.Do(func() { s.store = cache.NewNullCache() })
	return s.store.Close()
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/imgembed/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// configDir returns the config directory using XDG standard (~/.config/imgembed/).
func configDir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}
