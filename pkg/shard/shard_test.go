package shard

import (
	"context"
	stdErrors "errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iamBelugaa/segmux/pkg/backend/memory"
	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/manifest"
	"github.com/iamBelugaa/segmux/pkg/options"
	"github.com/iamBelugaa/segmux/pkg/seginfo"
	"github.com/iamBelugaa/segmux/pkg/segment"
	"github.com/iamBelugaa/segmux/pkg/segmux"
)

func TestResolverBounds(t *testing.T) {
	var opened []uint64
	r, err := NewResolver(OpenerFunc(func(_ context.Context, id uint64) (segment.Handle, error) {
		opened = append(opened, id)
		return memory.NewZeroed(10), nil
	}), 10, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	seg, err := r.Resolve(context.Background(), 37)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), seg.Start)
	assert.Equal(t, uint64(40), seg.End)
	assert.Equal(t, []uint64{3}, opened)

	id, start, end := r.Bounds(math.MaxUint64 - 1)
	assert.Equal(t, uint64(math.MaxUint64/10), id)
	assert.Equal(t, id*10, start)
	assert.Equal(t, uint64(math.MaxUint64), end)
}

func TestResolverRejectsZeroSize(t *testing.T) {
	_, err := NewResolver(nil, 0, zaptest.NewLogger(t).Sugar())
	_, ok := errors.AsValidationError(err)
	assert.True(t, ok)
}

func TestResolverOpenFailure(t *testing.T) {
	boom := stdErrors.New("disk gone")
	r, err := NewResolver(OpenerFunc(func(context.Context, uint64) (segment.Handle, error) {
		return nil, boom
	}), 10, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), 5)
	assert.ErrorIs(t, err, boom)
}

func TestDirOpenerCreatesShards(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "shards")
	d, err := OpenDir(dir, "disk", 4096, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	h, err := d.Open(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, h.Write(ctx, 10, []byte("x")))

	stat, err := os.Stat(filepath.Join(dir, seginfo.GenerateName("disk", 2)))
	require.NoError(t, err)
	assert.Equal(t, int64(4096), stat.Size())
	assert.Equal(t, []uint64{2}, d.Shards())

	m, err := manifest.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, m.Shards)

	require.NoError(t, h.Close())
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err = d.Open(ctx, 3)
	assert.ErrorIs(t, err, errors.ErrClosed)
}

func TestDirOpenerCloseClosesOpenShards(t *testing.T) {
	ctx := context.Background()
	d, err := OpenDir(t.TempDir(), "disk", 4096, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	h, err := d.Open(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = h.Read(ctx, 0, 1)
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestDirOpenerManifestMismatch(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDir(dir, "disk", 4096, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = OpenDir(dir, "disk", 8192, zaptest.NewLogger(t).Sugar())
	assert.True(t, errors.IsCode(err, errors.ErrManifestMismatch))

	_, err = OpenDir(dir, "other", 4096, zaptest.NewLogger(t).Sugar())
	assert.True(t, errors.IsCode(err, errors.ErrManifestMismatch))
}

func TestDirOpenerAdoptsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []uint64{4, 1} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, seginfo.GenerateName("disk", id)), nil, 0o644))
	}

	d, err := OpenDir(dir, "disk", 4096, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, []uint64{1, 4}, d.Shards())
	assert.Equal(t, "disk", d.Manifest().Prefix)
}

func TestRouterOverShardDirectory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	log := zaptest.NewLogger(t).Sugar()

	open := func() (*segmux.Instance, *DirOpener) {
		d, err := OpenDir(dir, "disk", 4096, log)
		require.NoError(t, err)
		r, err := NewResolver(d, 4096, log)
		require.NoError(t, err)
		instance, err := segmux.New(ctx, r, options.WithLogger(log), options.WithLimit(2))
		require.NoError(t, err)
		return instance, d
	}

	instance, d := open()
	data := make([]byte, 3*4096+100)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, instance.Write(ctx, 4000, data))
	assert.LessOrEqual(t, len(instance.Segments()), 2)
	require.NoError(t, instance.Close())
	require.NoError(t, d.Close())

	instance, d = open()
	defer d.Close()
	defer instance.Close()

	buf, err := instance.Read(ctx, 4000, uint64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, buf)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, d.Shards())
}
