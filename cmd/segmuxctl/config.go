package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/iamBelugaa/segmux/pkg/options"
)

// fileConfig is the YAML document accepted by --config. Empty fields keep their
// defaults; command line flags win over the file.
type fileConfig struct {
	Service      string `yaml:"service"`
	LogLevel     string `yaml:"logLevel"`
	Limit        *int   `yaml:"limit"`
	Directory    string `yaml:"directory"`
	Prefix       string `yaml:"prefix"`
	ShardSize    string `yaml:"shardSize"`
	Bucket       string `yaml:"bucket"`
	BucketPrefix string `yaml:"bucketPrefix"`
}

type settings struct {
	options      options.Options
	bucket       string
	bucketPrefix string
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *fileConfig) apply(s *settings) error {
	var opts []options.OptionFunc
	if c.Service != "" {
		opts = append(opts, options.WithService(c.Service))
	}
	if c.LogLevel != "" {
		opts = append(opts, options.WithLogLevel(c.LogLevel))
	}
	if c.Limit != nil {
		opts = append(opts, options.WithLimit(*c.Limit))
	}
	if c.Directory != "" {
		opts = append(opts, options.WithSegmentDir(c.Directory))
	}
	if c.Prefix != "" {
		opts = append(opts, options.WithSegmentPrefix(c.Prefix))
	}
	if c.ShardSize != "" {
		size, err := humanize.ParseBytes(c.ShardSize)
		if err != nil {
			return fmt.Errorf("config shardSize %q: %w", c.ShardSize, err)
		}
		opts = append(opts, options.WithSegmentSize(size))
	}
	if c.Bucket != "" {
		s.bucket = c.Bucket
	}
	if c.BucketPrefix != "" {
		s.bucketPrefix = c.BucketPrefix
	}

	for _, opt := range opts {
		opt(&s.options)
	}
	return nil
}

// resolveSettings layers defaults, the config file and the global flags.
func resolveSettings(ctx *cli.Context) (*settings, error) {
	s := &settings{options: options.DefaultOptions()}
	s.options.LogLevel = ctx.GlobalString("log-level")

	if path := ctx.GlobalString("config"); path != "" {
		cfg, err := loadConfig(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.apply(s); err != nil {
			return nil, err
		}
	}

	if ctx.GlobalIsSet("log-level") {
		options.WithLogLevel(ctx.GlobalString("log-level"))(&s.options)
	}
	if ctx.GlobalIsSet("limit") {
		options.WithLimit(ctx.GlobalInt("limit"))(&s.options)
	}
	if ctx.GlobalIsSet("dir") {
		options.WithSegmentDir(ctx.GlobalString("dir"))(&s.options)
	}
	if ctx.GlobalIsSet("prefix") {
		options.WithSegmentPrefix(ctx.GlobalString("prefix"))(&s.options)
	}
	if ctx.GlobalIsSet("shard-size") {
		size, err := humanize.ParseBytes(ctx.GlobalString("shard-size"))
		if err != nil {
			return nil, fmt.Errorf("--shard-size %q: %w", ctx.GlobalString("shard-size"), err)
		}
		options.WithSegmentSize(size)(&s.options)
	}
	if ctx.GlobalIsSet("bucket") {
		s.bucket = ctx.GlobalString("bucket")
	}
	if ctx.GlobalIsSet("bucket-prefix") {
		s.bucketPrefix = ctx.GlobalString("bucket-prefix")
	}

	if err := s.options.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
