package cli

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/imgembed/pkg/errors"
	"github.com/matzehuels/imgembed/pkg/pipeline"
)

// configFile is the file name looked up in the config directory.
const configFile = "config.toml"

// defaultAddr is the listen address of the serve command.
const defaultAddr = ":8080"

// Config is the on-disk configuration. Command-line flags override it.
//
//	[images]
//	scale = 2
//	fallback_format = "jpg"
//	placeholder_source = "https://example.com/missing.png"
//	fetch_timeout = "5s"
//
//	[cache]
//	store = "redis"
//	url = "redis://localhost:6379/0"
//	namespace = "docs"
//
//	[serve]
//	addr = ":9000"
type Config struct {
	Images pipeline.Options `toml:"images"`
	Cache  CacheConfig      `toml:"cache"`
	Serve  ServeConfig      `toml:"serve"`
}

// CacheConfig selects and configures the persistent store.
type CacheConfig struct {
	Store      string `toml:"store"`
	Dir        string `toml:"dir"`
	URL        string `toml:"url"`
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`

	// Namespace separates the entries of installations sharing a store.
	Namespace string `toml:"namespace"`
}

// ServeConfig configures the HTTP server.
type ServeConfig struct {
	Addr string `toml:"addr"`
}

func defaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{Store: StoreFile},
		Serve: ServeConfig{Addr: defaultAddr},
	}
}

// defaultConfigPath returns ~/.config/imgembed/config.toml.
func defaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// loadConfig reads the config file. A missing default file yields the
// defaults; a missing file named by --config is an error.
func (c *CLI) loadConfig() (*Config, error) {
	path := c.configPath
	explicit := path != ""
	if !explicit {
		p, err := defaultConfigPath()
		if err != nil {
			return defaultConfig(), nil
		}
		path = p
	}

	cfg, undecoded, err := readConfig(path)
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) && !explicit {
			return defaultConfig(), nil
		}
		return nil, err
	}
	for _, key := range undecoded {
		c.Logger.Warn("unknown config key", "key", key, "file", path)
	}
	c.Logger.Debug("loaded config", "file", path, "images", cfg.Images.String(), "store", cfg.Cache.Store)
	return cfg, nil
}

// readConfig decodes path over the defaults and returns the keys it did
// not recognize.
func readConfig(path string) (*Config, []string, error) {
	cfg := defaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.Wrap(errors.ErrCodeNotFound, err, "config file %s", path)
		}
		return nil, nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}

	var undecoded []string
	for _, k := range md.Undecoded() {
		undecoded = append(undecoded, k.String())
	}
	if cfg.Cache.Store == "" {
		cfg.Cache.Store = StoreFile
	}
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = defaultAddr
	}
	return cfg, undecoded, nil
}
