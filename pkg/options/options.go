// Package options provides data structures and functions for configuring a segmux router
// and the shard stores it can be backed by.
package options

import (
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iamBelugaa/segmux/pkg/errors"
)

// Defines configurable parameters for fixed-size shards.
type SegmentOptions struct {
	// Defines the number of bytes every shard covers in the address space.
	//
	//  - Default: 64MB
	//  - Maximum: 4GB
	//  - Minimum: 4KB
	Size uint64 `json:"shardSize" yaml:"shardSize"`

	// Specifies where shard files are stored.
	//
	// Default: "/var/lib/segmux/shards"
	Directory string `json:"directory" yaml:"directory"`

	// Defines the filename prefix for shard files.
	// Final filename will be: `prefix_shardId.seg`
	//
	// Default: "shard"
	//
	// Example: If Prefix is "disk", shard 3 is stored as "disk_00000000000000000003.seg".
	Prefix string `json:"prefix" yaml:"prefix"`
}

// Defines the configuration parameters for a router instance.
type Options struct {
	// Names the instance in every log line.
	//
	// Default: "segmux"
	Service string `json:"service" yaml:"service"`

	// Bounds how many resolver-produced segments stay open at once. When exceeded,
	// the least-recently-used unpinned segment is closed.
	//
	// Default: 0 (unbounded)
	Limit int `json:"limit" yaml:"limit"`

	// Minimum level for the default logger. Ignored when Logger is set.
	//
	// Default: "info"
	LogLevel string `json:"logLevel" yaml:"logLevel"`

	// Logger overrides the logger built from Service and LogLevel.
	Logger *zap.SugaredLogger `json:"-" yaml:"-"`

	// Configures the shard stores used by the shard resolvers.
	SegmentOptions *SegmentOptions `json:"segmentOptions" yaml:"segmentOptions"`
}

type OptionFunc func(*Options)

// Applies a predefined set of default configuration values to the Options struct.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = DefaultOptions()
	}
}

// Sets the service name attached to log lines.
func WithService(service string) OptionFunc {
	return func(o *Options) {
		service = strings.TrimSpace(service)
		if service != "" {
			o.Service = service
		}
	}
}

// Sets the maximum number of open resolved segments. Zero disables the bound.
func WithLimit(limit int) OptionFunc {
	return func(o *Options) {
		o.Limit = limit
	}
}

// Sets the minimum level of the default logger ("debug", "info", "warn", "error").
func WithLogLevel(level string) OptionFunc {
	return func(o *Options) {
		level = strings.TrimSpace(level)
		if level != "" {
			o.LogLevel = level
		}
	}
}

// Uses the given logger instead of building one.
func WithLogger(log *zap.SugaredLogger) OptionFunc {
	return func(o *Options) {
		o.Logger = log
	}
}

// Sets the directory specifically for storing shard files.
func WithSegmentDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.SegmentOptions.Directory = directory
		}
	}
}

// Sets the file name prefix for shard files.
func WithSegmentPrefix(prefix string) OptionFunc {
	return func(o *Options) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			o.SegmentOptions.Prefix = prefix
		}
	}
}

// Sets the size of individual shards.
func WithSegmentSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.SegmentOptions.Size = size
		}
	}
}

// Validate reports the first setting that cannot be used.
func (o *Options) Validate() error {
	if o.Limit < 0 {
		return errors.NewValidationError(
			nil, errors.ErrValidationInvalidData, "limit must not be negative",
		).
			WithField("limit").
			WithProvided(o.Limit).
			WithExpected(">= 0")
	}

	if _, err := zapcore.ParseLevel(o.LogLevel); err != nil {
		return errors.NewValidationError(err, errors.ErrValidationInvalidData, "unknown log level").
			WithField("logLevel").
			WithProvided(o.LogLevel)
	}

	if o.SegmentOptions == nil {
		return nil
	}
	return o.SegmentOptions.Validate()
}

// Validate checks the shard size and naming settings.
func (so *SegmentOptions) Validate() error {
	if so.Size < MinSegmentSize || so.Size > MaxSegmentSize {
		return errors.NewFieldRangeError(
			"shardSize", humanize.IBytes(so.Size), humanize.IBytes(MinSegmentSize), humanize.IBytes(MaxSegmentSize),
		).
			WithProvided(so.Size)
	}

	if strings.ContainsAny(so.Prefix, "/\\") || so.Prefix == "" {
		return errors.NewValidationError(
			nil, errors.ErrValidationInvalidData, "shard prefix must be a non-empty file name",
		).
			WithField("prefix").
			WithProvided(so.Prefix)
	}

	return nil
}
