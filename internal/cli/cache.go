package cli

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/imgembed/pkg/cache"
	"github.com/matzehuels/imgembed/pkg/pipeline"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the image cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cacheSweepCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached image",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, c.cfg().Cache)
			if err != nil {
				return err
			}
			defer store.Close()

			// Everything stored before now, including entries written a moment ago.
			n, err := store.Sweep(ctx, keyPrefix(c.cfg().Cache), time.Now().Add(time.Second))
			if err != nil {
				return err
			}
			if n == 0 {
				printInfo("Cache is empty")
				return nil
			}
			printSuccess("Cleared %d cached entries", n)
			printDetail("Store: %s", describeStore(c.cfg().Cache))
			return nil
		},
	}
}

// cacheSweepCommand creates the "cache sweep" subcommand.
func (c *CLI) cacheSweepCommand() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove cached images older than the max age",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, c.cfg().Cache)
			if err != nil {
				return err
			}
			defer store.Close()

			opts := c.cfg().Images
			opts.Logger = c.Logger
			if cmd.Flags().Changed("max-age") {
				opts.CacheMaxAgeMinutes = max(1, int(maxAge/time.Minute))
			}
			opts.SetCacheEnabled(true)
			runner, err := pipeline.NewRunner(opts, store)
			if err != nil {
				return err
			}

			prog := newProgress(loggerFromContext(ctx))
			n, err := runner.Layer().Sweep(ctx)
			if err != nil {
				return err
			}
			prog.done("Swept " + describeStore(c.cfg().Cache))
			printSuccess("Removed %d entries older than %s", n, runner.Layer().MaxAge())
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "override the configured max age (e.g. 24h)")
	return cmd
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache location",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(describeStore(c.cfg().Cache))
			return nil
		},
	}
}

// describeStore names where cfg keeps entries: the directory for the file
// store, the server for redis and mongo.
func describeStore(cfg CacheConfig) string {
	switch strings.ToLower(cfg.Store) {
	case "", StoreFile:
		if cfg.Dir != "" {
			return cfg.Dir
		}
		dir, err := cacheDir()
		if err != nil {
			return StoreFile
		}
		return dir
	case StoreRedis:
		return redactURL(cfg.URL)
	case StoreMongo:
		db := cfg.Database
		if db == "" {
			db = cache.DefaultMongoDatabase
		}
		coll := cfg.Collection
		if coll == "" {
			coll = cache.DefaultMongoCollection
		}
		return redactURL(cfg.URI) + " " + db + "." + coll
	}
	return strings.ToLower(cfg.Store)
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

// keyPrefix is the key prefix of the entries owned by this configuration.
func keyPrefix(cfg CacheConfig) string {
	if cfg.Namespace == "" {
		return cache.Namespace + ":"
	}
	return cache.Namespace + ":" + cfg.Namespace + ":"
}
