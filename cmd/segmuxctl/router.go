package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iamBelugaa/segmux/pkg/backend/objstore"
	"github.com/iamBelugaa/segmux/pkg/logger"
	"github.com/iamBelugaa/segmux/pkg/options"
	"github.com/iamBelugaa/segmux/pkg/segmux"
	"github.com/iamBelugaa/segmux/pkg/shard"
)

// router is a segmux instance plus the shard store behind it.
type router struct {
	instance *segmux.Instance
	settings *settings
	dir      *shard.DirOpener
	objects  *objstore.Opener
	log      *zap.SugaredLogger
}

func openRouter(ctx context.Context, c *cli.Context) (*router, error) {
	s, err := resolveSettings(c)
	if err != nil {
		return nil, err
	}

	log := logger.New(s.options.Service, s.options.LogLevel)
	r := &router{settings: s, log: log}
	segOpts := s.options.SegmentOptions

	var opener shard.Opener
	if s.bucket != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := objstore.NewS3Client(s3.NewFromConfig(cfg), s.bucket, s.bucketPrefix)
		r.objects = objstore.NewOpener(client, segOpts.Prefix, segOpts.Size)
		opener = r.objects
	} else {
		r.dir, err = shard.OpenDir(segOpts.Directory, segOpts.Prefix, segOpts.Size, log)
		if err != nil {
			return nil, err
		}
		opener = r.dir
	}

	resolver, err := shard.NewResolver(opener, segOpts.Size, log)
	if err != nil {
		return nil, multierr.Append(err, r.closeStore())
	}

	r.instance, err = segmux.New(ctx, resolver,
		options.WithLogger(log),
		options.WithLimit(s.options.Limit),
		options.WithService(s.options.Service),
	)
	if err != nil {
		return nil, multierr.Append(err, r.closeStore())
	}

	return r, nil
}

func (r *router) shards(ctx context.Context) ([]uint64, error) {
	if r.dir != nil {
		return r.dir.Shards(), nil
	}
	return r.objects.Shards(ctx)
}

func (r *router) location() string {
	if r.dir != nil {
		return r.dir.Dir()
	}
	return "s3://" + r.settings.bucket + "/" + r.settings.bucketPrefix
}

// Close shuts the router down before the store and reports every failure.
func (r *router) Close() error {
	err := multierr.Combine(r.instance.Close(), r.closeStore())
	_ = r.log.Sync()
	return err
}

func (r *router) closeStore() error {
	if r.dir != nil {
		return r.dir.Close()
	}
	return nil
}
