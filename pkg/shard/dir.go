package shard

import (
	"context"
	stdErrors "errors"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/iamBelugaa/segmux/pkg/backend/file"
	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/filesys"
	"github.com/iamBelugaa/segmux/pkg/manifest"
	"github.com/iamBelugaa/segmux/pkg/seginfo"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

// DirOpener stores every shard as one file in a directory and records them in
// the directory's manifest.
type DirOpener struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	size     uint64
	manifest *manifest.Manifest
	open     map[*shardFile]struct{}
	closed   bool
	log      *zap.SugaredLogger
}

// shardFile forgets itself in its opener when closed.
type shardFile struct {
	*file.File
	id     uint64
	opener *DirOpener
}

func (sf *shardFile) Close() error {
	sf.opener.forget(sf)
	return sf.File.Close()
}

// OpenDir prepares dir for shards named after prefix and sized size. An existing
// manifest must describe the same prefix and size. Without a manifest, shard files
// already present are adopted into a new one.
func OpenDir(dir, prefix string, size uint64, log *zap.SugaredLogger) (*DirOpener, error) {
	if err := filesys.EnsureDir(dir, 0o755); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrIOOpenFailed, "failed to create shard directory").
			WithPath(dir)
	}

	m, err := manifest.Load(dir)
	switch {
	case err == nil:
		if err := m.Check(prefix, size); err != nil {
			return nil, err
		}
		log.Infow("Loaded shard manifest", "dir", dir, "shards", len(m.Shards))

	case stdErrors.Is(err, fs.ErrNotExist):
		m = manifest.New(prefix, size)
		ids, err := seginfo.ListShards(dir, prefix)
		if err != nil {
			return nil, errors.NewStorageError(err, errors.ErrIOReadFailed, "failed to list shard files").
				WithPath(dir)
		}
		for _, id := range ids {
			m.AddShard(id)
		}
		if err := manifest.Save(dir, m); err != nil {
			return nil, err
		}
		log.Infow("Created shard manifest", "dir", dir, "adopted", len(ids))

	default:
		return nil, err
	}

	return &DirOpener{
		dir:      dir,
		prefix:   prefix,
		size:     size,
		manifest: m,
		open:     make(map[*shardFile]struct{}),
		log:      log,
	}, nil
}

// Open opens, creating if needed, the file of shard id.
func (d *DirOpener) Open(_ context.Context, id uint64) (segment.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.ErrClosed
	}

	name := seginfo.GenerateName(d.prefix, id)
	path := filepath.Join(d.dir, name)

	f, err := file.Open(path, file.WithSize(d.size))
	if err != nil {
		if se, ok := errors.AsStorageError(err); ok {
			se.WithShardID(id)
		}
		return nil, err
	}

	if d.manifest.AddShard(id) {
		if err := manifest.Save(d.dir, d.manifest); err != nil {
			return nil, multierr.Append(err, f.Close())
		}
		d.log.Infow("Shard created", "shardID", id, "path", path)
	}

	sf := &shardFile{File: f, id: id, opener: d}
	d.open[sf] = struct{}{}
	return sf, nil
}

// Shards returns the ids recorded in the manifest, ascending.
func (d *DirOpener) Shards() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.manifest.Shards)
}

// Manifest returns a copy of the directory's manifest.
func (d *DirOpener) Manifest() manifest.Manifest {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := *d.manifest
	m.Shards = slices.Clone(m.Shards)
	return m
}

func (d *DirOpener) Dir() string {
	return d.dir
}

// Close closes every shard file still open and writes the manifest. All failures
// are reported together.
func (d *DirOpener) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true

	files := make([]*shardFile, 0, len(d.open))
	for sf := range d.open {
		files = append(files, sf)
	}
	clear(d.open)
	m := d.manifest
	d.mu.Unlock()

	var err error
	for _, sf := range files {
		if closeErr := sf.File.Close(); closeErr != nil {
			d.log.Errorw("Failed to close shard", "shardID", sf.id, "error", closeErr)
			err = multierr.Append(err, closeErr)
		}
	}
	err = multierr.Append(err, manifest.Save(d.dir, m))

	d.log.Infow("Shard directory closed", "dir", d.dir, "closedShards", len(files), "error", err)
	return err
}

func (d *DirOpener) forget(sf *shardFile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, sf)
}
