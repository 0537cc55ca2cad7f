package objstore

import (
	"context"
	"path"
	"slices"

	"github.com/iamBelugaa/segmux/pkg/seginfo"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

// Opener hands out one object per shard, named like shard files on disk.
type Opener struct {
	client Client
	prefix string
	size   uint64
}

func NewOpener(client Client, prefix string, size uint64) *Opener {
	return &Opener{client: client, prefix: prefix, size: size}
}

func (o *Opener) Open(_ context.Context, id uint64) (segment.Handle, error) {
	return NewHandle(o.client, seginfo.GenerateName(o.prefix, id), o.size), nil
}

// Shards lists the ids of the shard objects present in the store, ascending.
func (o *Opener) Shards(ctx context.Context) ([]uint64, error) {
	keys, err := o.client.List(ctx, o.prefix+"_")
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(keys))
	for _, key := range keys {
		id, err := seginfo.ParseShardID(path.Base(key), o.prefix)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	slices.Sort(ids)
	return ids, nil
}
